// Package agent holds the data model of goal directed agents and the state
// container that owns one agent's queues, goals, plans and interceptors.
//
// A State is driven by exactly one deliberation turn at a time. Only the
// external trigger queue, the message queue, the posted (asynchronous)
// queues and the sleeping flag are touched by other goroutines; everything
// else belongs to the turn.
package agent

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Config carries everything needed to construct a State.
type Config struct {
	ID       ID
	Router   Router
	Contexts *ContextSet
	Schemes  *Schemes
	Plans    []Plan
	// Cycle builds the deliberation steps over the new state.
	Cycle CycleFunc
	// Wake is invoked, outside of any lock, when a producer finds the agent
	// sleeping. It must submit exactly one new turn.
	Wake   func()
	Logger *zap.Logger
}

// State is the state container of a single agent.
type State struct {
	id       ID
	logger   *zap.Logger
	router   Router
	contexts *ContextSet
	schemes  Schemes
	cycle    []Step
	wake     func()

	// Owned by the deliberation turn.
	goals        []Goal
	internal     []Trigger
	plans        []Plan
	interceptors [numCategories][]Interceptor

	// Shared with producers. Lock order: external, messages, posted,
	// postedPlans, then sleepMu.
	external    queue[Trigger]
	messages    queue[Trigger]
	posted      queue[Trigger]
	postedPlans queue[Plan]

	sleepMu  sync.Mutex
	sleeping bool

	forciblyStopped atomic.Bool
	finished        atomic.Bool
	stopOnce        sync.Once
	listeners       deathListeners

	planCtx *planContext
	handle  *externalHandle
}

// New validates cfg and builds the agent's state, including its deliberation
// cycle. The agent starts awake.
func New(cfg Config) (*State, error) {
	switch {
	case cfg.ID.IsZero():
		return nil, fmt.Errorf("%w: agent id is required", ErrInvalidConfig)
	case cfg.Router == nil:
		return nil, fmt.Errorf("%w: router cannot be nil", ErrInvalidConfig)
	case cfg.Cycle == nil:
		return nil, fmt.Errorf("%w: cycle cannot be nil", ErrInvalidConfig)
	case cfg.Wake == nil:
		return nil, fmt.Errorf("%w: wake callback cannot be nil", ErrInvalidConfig)
	case cfg.Logger == nil:
		return nil, fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
	}

	s := &State{
		id:       cfg.ID,
		router:   cfg.Router,
		contexts: cfg.Contexts,
		schemes:  cfg.Schemes.clone(),
		wake:     cfg.Wake,
		logger: cfg.Logger.With(
			zap.Stringer("agent_id", cfg.ID),
			zap.String("agent_type", string(cfg.ID.Type)),
		),
	}
	if s.contexts == nil {
		s.contexts = &ContextSet{}
	}
	for i, p := range cfg.Plans {
		if p == nil {
			return nil, fmt.Errorf("%w: initial plan %d is nil", ErrInvalidConfig, i)
		}
		s.plans = append(s.plans, p)
	}
	s.planCtx = &planContext{s: s}
	s.handle = &externalHandle{s: s}

	s.cycle = cfg.Cycle(s)
	if len(s.cycle) == 0 {
		return nil, fmt.Errorf("%w: deliberation cycle has no steps", ErrInvalidConfig)
	}
	for i, step := range s.cycle {
		if step == nil {
			return nil, fmt.Errorf("%w: deliberation step %d is nil", ErrInvalidConfig, i)
		}
	}
	return s, nil
}

func (s *State) ID() ID { return s.id }

func (s *State) Logger() *zap.Logger { return s.logger }

func (s *State) Contexts() ContextView { return s.contexts }

// PlanContext returns the view plans of this agent run against.
func (s *State) PlanContext() PlanContext { return s.planCtx }

// Handle returns the handle given to external processes.
func (s *State) Handle() ExternalHandle { return s.handle }

// Deliberate runs one full deliberation cycle. The first failing step aborts
// the cycle with a *CycleError.
func (s *State) Deliberate() error {
	for i, step := range s.cycle {
		if err := step.Execute(); err != nil {
			return &CycleError{Step: i, Err: err}
		}
	}
	return nil
}

// -- producer side -----------------------------------------------------------

// DeliverMessage implements Inbox.
func (s *State) DeliverMessage(msg Trigger) {
	s.enqueue(&s.messages, msg)
}

// AddExternalTrigger queues t for the next external step.
func (s *State) AddExternalTrigger(t Trigger) {
	s.enqueue(&s.external, t)
}

// PostInternalTrigger queues t for the internal step from any goroutine.
func (s *State) PostInternalTrigger(t Trigger) {
	s.enqueue(&s.posted, t)
}

// PostPlan adopts p from any goroutine. It runs in the next execute step.
func (s *State) PostPlan(p Plan) {
	if p == nil {
		return
	}
	s.postedPlans.mu.Lock()
	s.postedPlans.items = append(s.postedPlans.items, p)
	wake := s.clearSleeping()
	s.postedPlans.mu.Unlock()
	if wake {
		s.wake()
	}
}

func (s *State) enqueue(q *queue[Trigger], t Trigger) {
	q.mu.Lock()
	q.items = append(q.items, t)
	wake := s.clearSleeping()
	q.mu.Unlock()
	// Only the producer that flips the flag resubmits, so a burst of
	// arrivals produces one turn.
	if wake {
		s.wake()
	}
}

func (s *State) clearSleeping() bool {
	s.sleepMu.Lock()
	defer s.sleepMu.Unlock()
	if !s.sleeping || s.forciblyStopped.Load() {
		return false
	}
	s.sleeping = false
	return true
}

// CheckSleeping puts the agent to sleep and returns true when it has no
// goals, plans or pending triggers of any kind. The check holds every shared
// queue lock, so a concurrent producer either lands before it (and keeps the
// agent awake) or after it (and sees the flag and wakes the agent).
func (s *State) CheckSleeping() bool {
	s.external.mu.Lock()
	defer s.external.mu.Unlock()
	s.messages.mu.Lock()
	defer s.messages.mu.Unlock()
	s.posted.mu.Lock()
	defer s.posted.mu.Unlock()
	s.postedPlans.mu.Lock()
	defer s.postedPlans.mu.Unlock()
	s.sleepMu.Lock()
	defer s.sleepMu.Unlock()

	idle := len(s.external.items) == 0 &&
		len(s.messages.items) == 0 &&
		len(s.posted.items) == 0 &&
		len(s.postedPlans.items) == 0 &&
		len(s.internal) == 0 &&
		len(s.goals) == 0 &&
		len(s.plans) == 0
	if idle {
		s.sleeping = true
	}
	return idle
}

// Sleeping reports whether the agent is parked waiting for input.
func (s *State) Sleeping() bool {
	s.sleepMu.Lock()
	defer s.sleepMu.Unlock()
	return s.sleeping
}

// -- goals -------------------------------------------------------------------

func (s *State) Goals() []Goal { return slices.Clone(s.goals) }

func (s *State) HasGoal(g Goal) bool {
	return slices.Index(s.goals, g) >= 0
}

func (s *State) AdoptGoal(g Goal) {
	if g == nil || s.HasGoal(g) {
		return
	}
	s.goals = append(s.goals, g)
}

func (s *State) DropGoal(g Goal) {
	if i := slices.Index(s.goals, g); i >= 0 {
		s.goals = slices.Delete(s.goals, i, i+1)
	}
}

// ClearAchievedGoals drops every goal whose IsAchieved reports true.
func (s *State) ClearAchievedGoals() {
	for _, g := range slices.Clone(s.goals) {
		if g.IsAchieved(s.contexts) {
			s.DropGoal(g)
		}
	}
}

// -- triggers ----------------------------------------------------------------

// AddInternalTrigger queues t for the next internal step. Only the agent's
// own turn may call it; other goroutines use PostInternalTrigger.
func (s *State) AddInternalTrigger(t Trigger) {
	s.internal = append(s.internal, t)
}

func (s *State) Drain(c Category) []Trigger {
	switch c {
	case External:
		return s.external.drain()
	case Messages:
		return s.messages.drain()
	case Internal:
		out := s.internal
		s.internal = nil
		return append(out, s.posted.drain()...)
	default:
		return nil
	}
}

func (s *State) Schemes(c Category) []PlanScheme {
	return s.schemes.For(c)
}

// -- interceptors ------------------------------------------------------------

func (s *State) AdoptInterceptor(c Category, i Interceptor) {
	if !c.Valid() || i == nil {
		return
	}
	s.interceptors[c] = append(s.interceptors[c], i)
}

func (s *State) RemoveInterceptor(c Category, i Interceptor) {
	if !c.Valid() {
		return
	}
	if idx := slices.Index(s.interceptors[c], i); idx >= 0 {
		s.interceptors[c] = slices.Delete(s.interceptors[c], idx, idx+1)
	}
}

// Interceptors returns a snapshot of the interceptor list of a category.
func (s *State) Interceptors(c Category) []Interceptor {
	if !c.Valid() {
		return nil
	}
	return slices.Clone(s.interceptors[c])
}

// -- plans -------------------------------------------------------------------

func (s *State) TryApplication(t Trigger, scheme PlanScheme) bool {
	p, ok := scheme.Instantiate(t, s.contexts)
	if !ok || p == nil {
		return false
	}
	p.BindTrigger(t)
	s.AdoptPlan(p)
	return true
}

func (s *State) AdoptPlan(p Plan) {
	if p == nil {
		return
	}
	s.plans = append(s.plans, p)
}

func (s *State) RemovePlan(p Plan) {
	if i := slices.Index(s.plans, p); i >= 0 {
		s.plans = slices.Delete(s.plans, i, i+1)
	}
}

// Plans returns a snapshot of the active plans, first adopting any plan
// posted from another goroutine.
func (s *State) Plans() []Plan {
	s.plans = append(s.plans, s.postedPlans.drain()...)
	return slices.Clone(s.plans)
}

func (s *State) ExecutePlan(p Plan) error {
	if !s.goalIsRelevant(p) {
		return nil
	}
	return p.Execute(s.planCtx)
}

// goalIsRelevant abandons a plan whose goal is no longer held.
func (s *State) goalIsRelevant(p Plan) bool {
	g := p.Goal()
	if g == nil || s.HasGoal(g) {
		return true
	}
	p.SetFinished(true)
	return false
}

// -- liveness ----------------------------------------------------------------

// SendMessage routes msg to another agent.
func (s *State) SendMessage(to ID, msg Trigger) error {
	return s.router.Send(to, msg)
}

// Finish marks the agent as done; it is killed at the end of its turn.
func (s *State) Finish() { s.finished.Store(true) }

func (s *State) Finished() bool { return s.finished.Load() }

func (s *State) ForciblyStopped() bool { return s.forciblyStopped.Load() }

// Done reports whether the agent finished or was stopped.
func (s *State) Done() bool {
	return s.forciblyStopped.Load() || s.finished.Load()
}

// ForceStop stops the agent, removes it from the router and tells the death
// listeners. Only the first call has any effect.
func (s *State) ForceStop() {
	s.stopOnce.Do(func() {
		s.forciblyStopped.Store(true)
		s.router.Deregister(s.id)
		s.listeners.notify(s.id, s.logger)
		s.logger.Debug("Agent stopped.")
	})
}

func (s *State) AddDeathListener(l DeathListener) (remove func()) {
	return s.listeners.add(s.id, l)
}
