// Package deliberation implements the default five step deliberation cycle:
// goals, external triggers, internal triggers, messages and plan execution.
package deliberation

import (
	"fmt"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"go.uber.org/zap"
)

// DefaultCycle returns the standard step sequence for an agent.
func DefaultCycle(view agent.DeliberationView) []agent.Step {
	return []agent.Step{
		NewGoalStep(view),
		NewTriggerStep(view, agent.External),
		NewTriggerStep(view, agent.Internal),
		NewTriggerStep(view, agent.Messages),
		NewExecuteStep(view),
	}
}

// GoalStep clears achieved goals, then offers the remaining goals to the goal
// interceptors and to the goal plan schemes.
type GoalStep struct {
	view agent.DeliberationView
}

func NewGoalStep(view agent.DeliberationView) *GoalStep {
	return &GoalStep{view: view}
}

func (s *GoalStep) Execute() error {
	s.view.ClearAchievedGoals()
	goals := s.view.Goals()
	if len(goals) == 0 {
		return nil
	}
	triggers := make([]agent.Trigger, len(goals))
	for i, g := range goals {
		triggers[i] = g
	}
	triggers = ApplyInterceptors(s.view, agent.Goals, triggers)
	ApplySchemes(s.view, triggers, s.view.Schemes(agent.Goals))
	return nil
}

// TriggerStep drains one trigger queue and offers the snapshot to the
// interceptors of that category, then to its plan schemes. Triggers nobody
// claims are dropped.
type TriggerStep struct {
	view     agent.DeliberationView
	category agent.Category
}

func NewTriggerStep(view agent.DeliberationView, c agent.Category) *TriggerStep {
	return &TriggerStep{view: view, category: c}
}

func (s *TriggerStep) Execute() error {
	triggers := s.view.Drain(s.category)
	if len(triggers) == 0 {
		return nil
	}
	triggers = ApplyInterceptors(s.view, s.category, triggers)
	ApplySchemes(s.view, triggers, s.view.Schemes(s.category))
	return nil
}

// ExecuteStep runs every active plan once. Finished and abandoned plans are
// removed. A failing plan is removed and its error queued as an internal
// trigger for the next cycle; the remaining plans still run.
type ExecuteStep struct {
	view agent.DeliberationView
}

func NewExecuteStep(view agent.DeliberationView) *ExecuteStep {
	return &ExecuteStep{view: view}
}

func (s *ExecuteStep) Execute() error {
	for _, p := range s.view.Plans() {
		if err := s.view.ExecutePlan(p); err != nil {
			s.view.RemovePlan(p)
			s.view.Logger().Debug("Plan execution failed.",
				zap.String("plan", planName(p)),
				zap.Error(err))
			s.view.AddInternalTrigger(&agent.PlanExecutionError{Plan: p, Err: err})
			continue
		}
		if p.Finished() {
			s.view.RemovePlan(p)
		}
	}
	return nil
}

func planName(p agent.Plan) string {
	if s, ok := p.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", p)
}
