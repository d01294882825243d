package agent

import "go.uber.org/zap"

// Each collaborator of an agent sees only the slice of its state it needs.
// Plans get a PlanContext, deliberation steps a DeliberationView, external
// processes an ExternalHandle and the message router an Inbox.

// PlanContext is what a running plan may do to its own agent. Everything
// except the Post methods must be called from the plan's Execute, i.e. from
// the agent's own deliberation turn.
type PlanContext interface {
	ID() ID
	Logger() *zap.Logger
	Contexts() ContextView

	HasGoal(g Goal) bool
	// AdoptGoal is a no-op when the goal is already held.
	AdoptGoal(g Goal)
	DropGoal(g Goal)

	AdoptPlan(p Plan)
	AddInternalTrigger(t Trigger)

	AdoptInterceptor(c Category, i Interceptor)
	RemoveInterceptor(c Category, i Interceptor)

	// SendMessage delivers msg to another agent through the router. An
	// unknown receiver is reported as ErrReceiverNotFound.
	SendMessage(to ID, msg Trigger) error

	// Finish ends the agent after the current turn.
	Finish()

	// PostInternalTrigger and PostPlan are safe to call from any goroutine.
	// They wake the agent if it is sleeping.
	PostInternalTrigger(t Trigger)
	PostPlan(p Plan)

	External() ExternalHandle
}

// DeliberationView is the surface deliberation steps operate on.
type DeliberationView interface {
	Logger() *zap.Logger
	Contexts() ContextView

	Goals() []Goal
	ClearAchievedGoals()

	// Drain snapshots and clears the trigger queue of a category. The goal
	// category is not a queue and always drains empty.
	Drain(c Category) []Trigger
	Schemes(c Category) []PlanScheme
	Interceptors(c Category) []Interceptor
	RemoveInterceptor(c Category, i Interceptor)

	// TryApplication instantiates the scheme against t and, when it fires,
	// adopts the plan. It reports whether the scheme fired.
	TryApplication(t Trigger, s PlanScheme) bool

	Plans() []Plan
	// ExecutePlan runs the plan unless its goal has been dropped, in which
	// case the plan is marked finished without running.
	ExecutePlan(p Plan) error
	RemovePlan(p Plan)
	AddInternalTrigger(t Trigger)
}

// ExternalHandle is handed out to code outside the agent. It is safe for
// concurrent use.
type ExternalHandle interface {
	ID() ID
	AddExternalTrigger(t Trigger)
	// AddDeathListener registers l to be told when the agent dies. The
	// returned function unsubscribes it. A listener added to a dead agent is
	// notified immediately.
	AddDeathListener(l DeathListener) (remove func())
}

// Inbox receives messages from the router. DeliverMessage is safe for
// concurrent use.
type Inbox interface {
	DeliverMessage(msg Trigger)
}

// Router delivers messages between agents.
type Router interface {
	Register(id ID, inbox Inbox) error
	Deregister(id ID)
	Send(to ID, msg Trigger) error
}

// Step is one phase of a deliberation cycle. An error is fatal to the agent.
type Step interface {
	Execute() error
}

// StepFunc adapts a function to Step.
type StepFunc func() error

func (f StepFunc) Execute() error { return f() }

// CycleFunc builds the ordered step sequence of an agent over its view.
type CycleFunc func(view DeliberationView) []Step

// DeathListener is told once when an agent dies.
type DeathListener interface {
	AgentDied(id ID)
}

// DeathListenerFunc adapts a function to DeathListener.
type DeathListenerFunc func(id ID)

func (f DeathListenerFunc) AgentDied(id ID) { f(id) }
