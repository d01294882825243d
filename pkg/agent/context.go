package agent

import (
	"fmt"
	"reflect"
)

// ContextView is the read-only face of an agent's contexts handed to plan
// schemes and goals.
type ContextView interface {
	// Lookup returns the context of the given kind. An interface kind matches
	// the first registered context implementing it.
	Lookup(kind reflect.Type) (any, bool)
}

// ContextSet holds at most one context per concrete type. It is populated at
// agent construction and never changes afterwards, although the contexts
// themselves may be mutable.
type ContextSet struct {
	byKind map[reflect.Type]any
	order  []reflect.Type
}

// NewContextSet builds a set from the given values. Nil values and two values
// of the same type are rejected.
func NewContextSet(values ...any) (*ContextSet, error) {
	cs := &ContextSet{byKind: make(map[reflect.Type]any, len(values))}
	for _, v := range values {
		if v == nil {
			return nil, fmt.Errorf("%w: nil context", ErrInvalidConfig)
		}
		kind := reflect.TypeOf(v)
		if _, dup := cs.byKind[kind]; dup {
			return nil, fmt.Errorf("%w: duplicate context of kind %s", ErrInvalidConfig, kind)
		}
		cs.byKind[kind] = v
		cs.order = append(cs.order, kind)
	}
	return cs, nil
}

func (cs *ContextSet) Lookup(kind reflect.Type) (any, bool) {
	if cs == nil || kind == nil {
		return nil, false
	}
	if v, ok := cs.byKind[kind]; ok {
		return v, true
	}
	if kind.Kind() != reflect.Interface {
		return nil, false
	}
	for _, k := range cs.order {
		if k.Implements(kind) {
			return cs.byKind[k], true
		}
	}
	return nil, false
}

// Len returns the number of contexts in the set.
func (cs *ContextSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.order)
}

// ContextOf fetches the context of kind C from the view.
func ContextOf[C any](v ContextView) (C, error) {
	var zero C
	kind := reflect.TypeFor[C]()
	if v == nil {
		return zero, &ContextError{Kind: kind}
	}
	raw, ok := v.Lookup(kind)
	if !ok {
		return zero, &ContextError{Kind: kind}
	}
	c, ok := raw.(C)
	if !ok {
		return zero, &ContextError{Kind: kind}
	}
	return c, nil
}

// MustContext is ContextOf for contexts the rule set cannot work without. A
// missing context panics, which the turn runner treats as fatal to the agent.
func MustContext[C any](v ContextView) C {
	c, err := ContextOf[C](v)
	if err != nil {
		panic(err)
	}
	return c
}
