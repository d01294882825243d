// Package suspend lets plans wait for events across deliberation cycles
// without blocking a worker. A wait is an interceptor registered with the
// agent; the cycle that sees a matching trigger fires it and runs its body.
package suspend

import (
	"slices"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// Phase is the lifecycle state of a wait.
type Phase int

const (
	// Armed waits are registered and may still fire.
	Armed Phase = iota
	// Fired waits matched a trigger; their body runs in the same cycle.
	Fired
	// Retracted waits were cancelled, either explicitly or because a
	// mutually exclusive sibling fired first.
	Retracted
)

func (p Phase) String() string {
	switch p {
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Retracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// Selector decides whether a trigger satisfies a wait.
type Selector func(t agent.Trigger) bool

// Body runs once, with the trigger that fired the wait.
type Body func(t agent.Trigger, pc agent.PlanContext) error

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithConsuming sets whether the interceptor removes the trigger it fires on.
// Interceptors consume by default.
func WithConsuming(consuming bool) Option {
	return func(i *Interceptor) {
		i.consuming = consuming
	}
}

// Interceptor is a single fire wait. When it fires it retracts every
// interceptor listed through RemoveOnFire, and removes them from their lists
// before its own body runs.
type Interceptor struct {
	selector   Selector
	body       Body
	consuming  bool
	phase      Phase
	onFire     [len(agent.Categories)][]agent.Interceptor
	registered []agent.Category
}

// NewInterceptor builds an armed, consuming interceptor. It is not registered
// with any agent; see Register.
func NewInterceptor(selector Selector, body Body, opts ...Option) *Interceptor {
	i := &Interceptor{
		selector:  selector,
		body:      body,
		consuming: true,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Interceptor) Consuming() bool { return i.consuming }

// Phase reports where the wait is in its lifecycle.
func (i *Interceptor) Phase() Phase { return i.phase }

// RemoveOnFire lists interceptors to drop from the c list when i fires.
// Unknown categories are ignored.
func (i *Interceptor) RemoveOnFire(c agent.Category, others ...agent.Interceptor) {
	if !c.Valid() {
		return
	}
	i.onFire[c] = append(i.onFire[c], others...)
}

// Register adds i to the interceptor lists of the given categories. Unknown
// categories are ignored.
func (i *Interceptor) Register(pc agent.PlanContext, categories ...agent.Category) {
	for _, c := range categories {
		if !c.Valid() || slices.Contains(i.registered, c) {
			continue
		}
		pc.AdoptInterceptor(c, i)
		i.registered = append(i.registered, c)
	}
}

// Registered returns the categories i was added to.
func (i *Interceptor) Registered() []agent.Category {
	return slices.Clone(i.registered)
}

// Retract cancels an armed wait and removes it from every list it was
// registered in. It has no effect once the wait has fired.
func (i *Interceptor) Retract(pc agent.PlanContext) {
	if i.phase != Armed {
		return
	}
	i.phase = Retracted
	for _, c := range i.registered {
		pc.RemoveInterceptor(c, i)
	}
}

func (i *Interceptor) Instantiate(t agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
	if i.phase != Armed || !i.selector(t) {
		return nil, false
	}
	i.phase = Fired
	for _, list := range i.onFire {
		for _, other := range list {
			if o, ok := other.(*Interceptor); ok && o != i && o.phase == Armed {
				o.phase = Retracted
			}
		}
	}
	return &firedPlan{owner: i, trigger: t}, true
}

func (i *Interceptor) removeSiblings(pc agent.PlanContext) {
	for c, list := range i.onFire {
		for _, other := range list {
			pc.RemoveInterceptor(agent.Category(c), other)
		}
	}
}

// firedPlan runs the body of a fired interceptor exactly once.
type firedPlan struct {
	agent.PlanBase
	owner   *Interceptor
	trigger agent.Trigger
	cleaned bool
}

// BindTrigger leaves the plan unbound even when a goal fired the wait. A wait
// observes the goal; it does not pursue it, and dropping the goal must not
// cancel the body.
func (p *firedPlan) BindTrigger(agent.Trigger) {}

func (p *firedPlan) Execute(pc agent.PlanContext) error {
	if !p.cleaned {
		p.owner.removeSiblings(pc)
		p.cleaned = true
	}
	if err := p.owner.body(p.trigger, pc); err != nil {
		return err
	}
	p.SetFinished(true)
	return nil
}
