package suspend

import "github.com/xkilldash9x/deliberate/pkg/agent"

// WaitForGoal runs body once, the first cycle a goal matches selector.
func WaitForGoal(pc agent.PlanContext, selector Selector, body Body) *Interceptor {
	return waitFor(pc, agent.Goals, selector, body)
}

// WaitForExternal runs body once, on the first matching external trigger,
// and consumes it.
func WaitForExternal(pc agent.PlanContext, selector Selector, body Body) *Interceptor {
	return waitFor(pc, agent.External, selector, body)
}

// WaitForInternal runs body once, on the first matching internal trigger,
// and consumes it.
func WaitForInternal(pc agent.PlanContext, selector Selector, body Body) *Interceptor {
	return waitFor(pc, agent.Internal, selector, body)
}

// WaitForMessage runs body once, on the first matching message, and consumes
// it.
func WaitForMessage(pc agent.PlanContext, selector Selector, body Body) *Interceptor {
	return waitFor(pc, agent.Messages, selector, body)
}

func waitFor(pc agent.PlanContext, c agent.Category, selector Selector, body Body) *Interceptor {
	i := NewInterceptor(selector, body)
	i.Register(pc, c)
	return i
}

// MutuallyExclusive wires the waits so that the first one to fire retracts
// all the others from every category before its body runs.
func MutuallyExclusive(waits ...*Interceptor) {
	for _, a := range waits {
		for _, b := range waits {
			if a == b {
				continue
			}
			for _, c := range agent.Categories {
				a.RemoveOnFire(c, b)
			}
		}
	}
}

// resumeSignal is the internal trigger that releases one suspended plan. Each
// suspension gets its own signal so concurrent suspensions never share one.
type resumeSignal struct {
	plan agent.Plan
}

type resumeInterceptor struct {
	signal *resumeSignal
}

func (r *resumeInterceptor) Instantiate(t agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
	if s, ok := t.(*resumeSignal); ok && s == r.signal {
		return s.plan, true
	}
	return nil, false
}

func (r *resumeInterceptor) Consuming() bool { return true }

// SuspendToNextCycle adopts p one full cycle from now: it runs in the execute
// step of the next cycle instead of this one.
func SuspendToNextCycle(pc agent.PlanContext, p agent.Plan) {
	signal := &resumeSignal{plan: p}
	pc.AdoptInterceptor(agent.Internal, &resumeInterceptor{signal: signal})
	pc.AddInternalTrigger(signal)
}

// RepeatWhile runs body once per cycle for as long as cond holds. It checks
// cond and possibly runs body right away, then returns; later iterations run
// in later cycles. A failing iteration stops the loop and surfaces as a plan
// execution failure.
func RepeatWhile(pc agent.PlanContext, cond func(pc agent.PlanContext) bool, body func(pc agent.PlanContext) error) error {
	if !cond(pc) {
		return nil
	}
	if err := body(pc); err != nil {
		return err
	}
	SuspendToNextCycle(pc, agent.RunOnce(func(pc agent.PlanContext) error {
		return RepeatWhile(pc, cond, body)
	}))
	return nil
}

// SuspendGoalUntil drops g and adopts it again once a trigger of any category
// matches cond. The matching trigger is left in place for other consumers.
func SuspendGoalUntil(pc agent.PlanContext, g agent.Goal, cond Selector) *Interceptor {
	pc.DropGoal(g)
	i := NewInterceptor(cond, func(_ agent.Trigger, pc agent.PlanContext) error {
		pc.AdoptGoal(g)
		return nil
	}, WithConsuming(false))
	for _, c := range agent.Categories {
		i.RemoveOnFire(c, i)
	}
	i.Register(pc, agent.Categories[:]...)
	return i
}
