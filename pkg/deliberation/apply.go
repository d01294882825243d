package deliberation

import (
	"slices"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

// ApplyInterceptors offers the triggers to the interceptors of category c.
// Each interceptor, in list order, fires on at most one trigger: the first one
// it matches. A fired interceptor is removed from its list and its plan is
// adopted; if it is consuming, the trigger it fired on is removed from the
// returned slice, unless that trigger is a goal. Goals already pursued by a
// plan are not offered, as with plan schemes.
func ApplyInterceptors(view agent.DeliberationView, c agent.Category, triggers []agent.Trigger) []agent.Trigger {
	for _, ic := range view.Interceptors(c) {
		for i, t := range triggers {
			if g, ok := agent.AsGoal(t); ok && g.Pursued() {
				continue
			}
			if !view.TryApplication(t, ic) {
				continue
			}
			view.RemoveInterceptor(c, ic)
			if _, isGoal := agent.AsGoal(t); ic.Consuming() && !isGoal {
				triggers = slices.Delete(triggers, i, i+1)
			}
			break
		}
	}
	return triggers
}

// ApplySchemes instantiates at most one plan per trigger: the first scheme
// that fires wins. Goals that are already pursued are skipped.
func ApplySchemes(view agent.DeliberationView, triggers []agent.Trigger, schemes []agent.PlanScheme) {
	for _, t := range triggers {
		if g, ok := agent.AsGoal(t); ok && g.Pursued() {
			continue
		}
		for _, s := range schemes {
			if view.TryApplication(t, s) {
				break
			}
		}
	}
}
