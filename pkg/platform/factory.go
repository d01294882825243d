package platform

import (
	"errors"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// Components is what a factory produces for one new agent.
type Components struct {
	Contexts *agent.ContextSet
	Schemes  *agent.Schemes
	Plans    []agent.Plan
	// Cycle overrides the default five step deliberation cycle when set.
	Cycle agent.CycleFunc
}

// Factory produces the components of agents of one type. Produce is called
// once per agent with the arguments given to Platform.NewAgent.
type Factory interface {
	Type() agent.Type
	Produce(args any) (*Components, error)
}

type funcFactory struct {
	typ     agent.Type
	produce func(args any) (*Components, error)
}

// NewFactory adapts a function to Factory.
func NewFactory(t agent.Type, produce func(args any) (*Components, error)) Factory {
	return &funcFactory{typ: t, produce: produce}
}

func (f *funcFactory) Type() agent.Type { return f.typ }

func (f *funcFactory) Produce(args any) (*Components, error) {
	if f.produce == nil {
		return nil, errors.New("factory has no produce function")
	}
	return f.produce(args)
}
