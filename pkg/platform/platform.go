// Package platform hosts agents: it creates them from registered factories,
// multiplexes their deliberation turns over a bounded worker pool, wakes
// sleeping agents on new input and kills agents that are done.
package platform

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/deliberation"
	"github.com/xkilldash9x/deliberate/pkg/messaging"
)

var (
	ErrUnknownType   = errors.New("no factory registered for agent type")
	ErrFactoryExists = errors.New("factory already registered for agent type")
	ErrHalted        = errors.New("platform is halted")
)

// Platform is the administrative entry point of the runtime.
type Platform struct {
	logger  *zap.Logger
	sched   *Scheduler
	router  agent.Router
	newID   func(agent.Type) agent.ID
	metrics *metrics

	mu           sync.Mutex
	factories    map[agent.Type]Factory
	killSwitches map[agent.ID]func()

	stats struct {
		turns, wakes, created, killed, cycleFailures atomic.Int64
	}
}

type options struct {
	workers       int
	router        agent.Router
	newID         func(agent.Type) agent.ID
	turnRate      rate.Limit
	turnBurst     int
	meterProvider metric.MeterProvider
	factories     []Factory
}

// Option configures a Platform.
type Option func(*options)

// WithWorkers sets the size of the worker pool. Defaults to runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRouter replaces the default in-process message router.
func WithRouter(r agent.Router) Option {
	return func(o *options) { o.router = r }
}

// WithIDGenerator replaces agent.NewID.
func WithIDGenerator(fn func(agent.Type) agent.ID) Option {
	return func(o *options) { o.newID = fn }
}

// WithTurnRate throttles turns agents schedule for themselves while busy.
// Turns triggered by waking a sleeping agent are not throttled. A zero limit
// disables throttling.
func WithTurnRate(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.turnRate = limit
		o.turnBurst = burst
	}
}

// WithMeterProvider sets where platform metrics go. Defaults to the global
// OpenTelemetry provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithFactories registers factories at construction.
func WithFactories(fs ...Factory) Option {
	return func(o *options) { o.factories = append(o.factories, fs...) }
}

// New creates a platform and starts its worker pool.
func New(logger *zap.Logger, opts ...Option) (*Platform, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	o := options{
		workers: runtime.NumCPU(),
		newID:   agent.NewID,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logger.Named("platform")
	if o.router == nil {
		o.router = messaging.NewRouter(logger)
	}
	if o.newID == nil {
		return nil, errors.New("id generator cannot be nil")
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}

	var limiter *rate.Limiter
	if o.turnRate > 0 {
		limiter = rate.NewLimiter(o.turnRate, o.turnBurst)
	}
	sched, err := NewScheduler(o.workers, limiter, logger)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform metrics: %w", err)
	}

	p := &Platform{
		logger:       logger,
		sched:        sched,
		router:       o.router,
		newID:        o.newID,
		metrics:      m,
		factories:    make(map[agent.Type]Factory),
		killSwitches: make(map[agent.ID]func()),
	}
	for _, f := range o.factories {
		if err := p.AddFactory(f); err != nil {
			return nil, err
		}
	}
	sched.Start()
	return p, nil
}

// Router returns the router agents of this platform are registered with.
func (p *Platform) Router() agent.Router { return p.router }

// AddFactory registers f under its type.
func (p *Platform) AddFactory(f Factory) error {
	if f == nil {
		return errors.New("factory cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.factories[f.Type()]; exists {
		return fmt.Errorf("%w: %q", ErrFactoryExists, f.Type())
	}
	p.factories[f.Type()] = f
	return nil
}

// RemoveFactory unregisters the factory of type t. Agents it already created
// are unaffected. It reports whether a factory was removed.
func (p *Platform) RemoveFactory(t agent.Type) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.factories[t]; !exists {
		return false
	}
	delete(p.factories, t)
	return true
}

// NewAgent creates an agent of type t and schedules its first turn. Any
// failure is returned as a *agent.CreationError.
func (p *Platform) NewAgent(t agent.Type, args any) (agent.ExternalHandle, error) {
	p.mu.Lock()
	f, ok := p.factories[t]
	p.mu.Unlock()
	if !ok {
		return nil, &agent.CreationError{Type: t, Err: ErrUnknownType}
	}
	return p.spawn(f, args)
}

// Spawn creates an agent straight from a builder, without registering it.
func (p *Platform) Spawn(b *Builder, args any) (agent.ExternalHandle, error) {
	if b == nil {
		return nil, &agent.CreationError{Err: errors.New("builder cannot be nil")}
	}
	return p.spawn(b, args)
}

func (p *Platform) spawn(f Factory, args any) (agent.ExternalHandle, error) {
	typ := f.Type()
	if p.sched.Halted() {
		return nil, &agent.CreationError{Type: typ, Err: ErrHalted}
	}
	comps, err := f.Produce(args)
	if err != nil {
		return nil, &agent.CreationError{Type: typ, Err: err}
	}
	if comps == nil {
		return nil, &agent.CreationError{Type: typ, Err: fmt.Errorf("%w: factory produced no components", agent.ErrInvalidConfig)}
	}
	cycle := comps.Cycle
	if cycle == nil {
		cycle = deliberation.DefaultCycle
	}

	t := &turn{p: p}
	st, err := agent.New(agent.Config{
		ID:       p.newID(typ),
		Router:   p.router,
		Contexts: comps.Contexts,
		Schemes:  comps.Schemes,
		Plans:    comps.Plans,
		Cycle:    cycle,
		Wake:     t.wake,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, &agent.CreationError{Type: typ, Err: err}
	}
	t.state = st

	id := st.ID()
	if err := p.router.Register(id, st); err != nil {
		return nil, &agent.CreationError{Type: typ, Err: err}
	}
	p.mu.Lock()
	p.killSwitches[id] = st.ForceStop
	p.mu.Unlock()

	p.stats.created.Add(1)
	p.metrics.agentCreated(id)
	st.Logger().Debug("Agent created.")

	p.scheduleForExecution(t)
	return st.Handle(), nil
}

// KillAgent stops the agent with the given ID. Only the first call for an
// agent has an effect, so death listeners are told exactly once. It reports
// whether this call killed the agent.
func (p *Platform) KillAgent(id agent.ID) bool {
	p.mu.Lock()
	kill, ok := p.killSwitches[id]
	delete(p.killSwitches, id)
	p.mu.Unlock()
	if !ok {
		return false
	}
	p.stats.killed.Add(1)
	p.metrics.agentKilled(id)
	kill()
	return true
}

// Alive reports whether the agent has not been killed yet.
func (p *Platform) Alive(id agent.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.killSwitches[id]
	return ok
}

// Halt stops accepting turns and waits, bounded by ctx, for queued turns to
// finish. Agents that are still alive afterwards, typically sleeping ones,
// are killed.
func (p *Platform) Halt(ctx context.Context) error {
	p.logger.Info("Halting platform.")
	p.sched.Halt()
	err := p.sched.Wait(ctx)

	p.mu.Lock()
	remaining := slices.Collect(maps.Keys(p.killSwitches))
	p.mu.Unlock()
	for _, id := range remaining {
		p.KillAgent(id)
	}
	if err != nil {
		return fmt.Errorf("platform halt did not drain: %w", err)
	}
	p.logger.Info("Platform halted.", zap.Int("killed_on_halt", len(remaining)))
	return nil
}

// scheduleForExecution submits the agent's next turn. A halted scheduler
// rejects it and the agent is killed rather than left without turns.
func (p *Platform) scheduleForExecution(t *turn) {
	if p.sched.Submit(t.run) {
		return
	}
	t.state.Logger().Debug("Scheduler closed, killing agent.",
		zap.String("error_code", string(agent.CodeSchedulerClosed)))
	p.KillAgent(t.state.ID())
}

// reschedule submits the follow up turn of a busy agent.
func (p *Platform) reschedule(t *turn) {
	p.sched.SubmitThrottled(t.run, func() {
		t.state.Logger().Debug("Scheduler closed, killing agent.",
			zap.String("error_code", string(agent.CodeSchedulerClosed)))
		p.KillAgent(t.state.ID())
	})
}

// Stats is a snapshot of platform counters.
type Stats struct {
	Agents        int   `json:"agents"`
	Factories     int   `json:"factories"`
	PendingTurns  int   `json:"pending_turns"`
	Created       int64 `json:"created"`
	Killed        int64 `json:"killed"`
	Turns         int64 `json:"turns"`
	Wakes         int64 `json:"wakes"`
	CycleFailures int64 `json:"cycle_failures"`
	Halted        bool  `json:"halted"`
}

func (p *Platform) Stats() Stats {
	p.mu.Lock()
	agents, factories := len(p.killSwitches), len(p.factories)
	p.mu.Unlock()
	return Stats{
		Agents:        agents,
		Factories:     factories,
		PendingTurns:  p.sched.Pending(),
		Created:       p.stats.created.Load(),
		Killed:        p.stats.killed.Load(),
		Turns:         p.stats.turns.Load(),
		Wakes:         p.stats.wakes.Load(),
		CycleFailures: p.stats.cycleFailures.Load(),
		Halted:        p.sched.Halted(),
	}
}
