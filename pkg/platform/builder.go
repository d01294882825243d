package platform

import (
	"fmt"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// Builder assembles the rule set of an agent type piece by piece and acts as
// its Factory. Contexts added with AddContext are shared by every agent the
// builder produces; AddContextFunc and AddPlan create fresh values per agent.
type Builder struct {
	typ          agent.Type
	contexts     []any
	contextFuncs []func(args any) (any, error)
	schemes      agent.Schemes
	plans        []func() agent.Plan
	cycle        agent.CycleFunc
}

var _ Factory = (*Builder)(nil)

// NewBuilder starts a builder for agents of type t.
func NewBuilder(t agent.Type) *Builder {
	return &Builder{typ: t}
}

func (b *Builder) AddContext(values ...any) *Builder {
	b.contexts = append(b.contexts, values...)
	return b
}

func (b *Builder) AddContextFunc(fn func(args any) (any, error)) *Builder {
	b.contextFuncs = append(b.contextFuncs, fn)
	return b
}

func (b *Builder) AddScheme(c agent.Category, schemes ...agent.PlanScheme) *Builder {
	b.schemes.Add(c, schemes...)
	return b
}

func (b *Builder) AddGoalScheme(schemes ...agent.PlanScheme) *Builder {
	return b.AddScheme(agent.Goals, schemes...)
}

func (b *Builder) AddExternalScheme(schemes ...agent.PlanScheme) *Builder {
	return b.AddScheme(agent.External, schemes...)
}

func (b *Builder) AddInternalScheme(schemes ...agent.PlanScheme) *Builder {
	return b.AddScheme(agent.Internal, schemes...)
}

func (b *Builder) AddMessageScheme(schemes ...agent.PlanScheme) *Builder {
	return b.AddScheme(agent.Messages, schemes...)
}

// AddPlan registers a constructor for an initial plan.
func (b *Builder) AddPlan(newPlan func() agent.Plan) *Builder {
	b.plans = append(b.plans, newPlan)
	return b
}

// WithCycle replaces the default deliberation cycle.
func (b *Builder) WithCycle(cycle agent.CycleFunc) *Builder {
	b.cycle = cycle
	return b
}

// Include copies everything other holds into b, after what b already has.
func (b *Builder) Include(other *Builder) *Builder {
	if other == nil {
		return b
	}
	b.contexts = append(b.contexts, other.contexts...)
	b.contextFuncs = append(b.contextFuncs, other.contextFuncs...)
	b.schemes.Merge(&other.schemes)
	b.plans = append(b.plans, other.plans...)
	if b.cycle == nil {
		b.cycle = other.cycle
	}
	return b
}

func (b *Builder) Type() agent.Type { return b.typ }

func (b *Builder) Produce(args any) (*Components, error) {
	values := append([]any(nil), b.contexts...)
	for i, fn := range b.contextFuncs {
		v, err := fn(args)
		if err != nil {
			return nil, fmt.Errorf("context constructor %d: %w", i, err)
		}
		values = append(values, v)
	}
	contexts, err := agent.NewContextSet(values...)
	if err != nil {
		return nil, err
	}

	plans := make([]agent.Plan, 0, len(b.plans))
	for i, newPlan := range b.plans {
		p := newPlan()
		if p == nil {
			return nil, fmt.Errorf("%w: plan constructor %d returned nil", agent.ErrInvalidConfig, i)
		}
		plans = append(plans, p)
	}

	schemes := b.schemes
	return &Components{
		Contexts: contexts,
		Schemes:  &schemes,
		Plans:    plans,
		Cycle:    b.cycle,
	}, nil
}
