package agent

// PlanScheme is a stateless rule matching a trigger against the agent's
// contexts. It returns the instantiated plan and true when it fires, or
// (nil, false) when it does not.
type PlanScheme interface {
	Instantiate(t Trigger, ctx ContextView) (Plan, bool)
}

// SchemeFunc adapts a function to PlanScheme.
type SchemeFunc func(t Trigger, ctx ContextView) (Plan, bool)

func (f SchemeFunc) Instantiate(t Trigger, ctx ContextView) (Plan, bool) {
	return f(t, ctx)
}

// Interceptor is a transient plan scheme. It is removed from its list the
// cycle it fires. A consuming interceptor also removes the trigger it fired
// on, unless that trigger is a Goal.
//
// Interceptors are removed by identity, so implementations must be
// comparable (pointer types in practice).
type Interceptor interface {
	PlanScheme
	Consuming() bool
}

// Category names one of the four trigger queues and its parallel interceptor
// and plan scheme lists.
type Category int

const (
	Goals Category = iota
	External
	Internal
	Messages
)

const numCategories = 4

// Categories lists every category in deliberation order.
var Categories = [numCategories]Category{Goals, External, Internal, Messages}

func (c Category) String() string {
	switch c {
	case Goals:
		return "goal"
	case External:
		return "external"
	case Internal:
		return "internal"
	case Messages:
		return "message"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the four trigger categories.
func (c Category) Valid() bool {
	return c >= Goals && c < numCategories
}

// Schemes is an agent's rule set: one ordered plan scheme list per category.
// Within a list the first scheme that fires wins.
type Schemes struct {
	lists [numCategories][]PlanScheme
}

// Add appends schemes to the list of the given category.
func (s *Schemes) Add(c Category, schemes ...PlanScheme) {
	if !c.Valid() {
		return
	}
	s.lists[c] = append(s.lists[c], schemes...)
}

// For returns the list of the given category. Callers must not modify it.
func (s *Schemes) For(c Category) []PlanScheme {
	if !c.Valid() {
		return nil
	}
	return s.lists[c]
}

// Merge appends every list of other to the corresponding list of s.
func (s *Schemes) Merge(other *Schemes) {
	if other == nil {
		return
	}
	for _, c := range Categories {
		s.lists[c] = append(s.lists[c], other.lists[c]...)
	}
}

// Len counts schemes across all categories.
func (s *Schemes) Len() int {
	n := 0
	for _, l := range s.lists {
		n += len(l)
	}
	return n
}

func (s *Schemes) clone() Schemes {
	var out Schemes
	if s == nil {
		return out
	}
	for _, c := range Categories {
		if len(s.lists[c]) > 0 {
			out.lists[c] = append([]PlanScheme(nil), s.lists[c]...)
		}
	}
	return out
}
