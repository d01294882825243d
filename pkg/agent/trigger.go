package agent

// Trigger is any value that can drive a plan scheme match: an external event,
// an internal signal, a message from another agent or a Goal.
type Trigger = any

// Goal is a persistent Trigger that stays with the agent until it is achieved
// or dropped. At most one active plan pursues a goal at a time; the pursued
// flag records whether such a plan exists.
//
// Goals are compared by identity, so implementations should be pointer types
// that embed GoalBase.
type Goal interface {
	// IsAchieved is evaluated at the start of every goal step. Returning true
	// removes the goal from the agent.
	IsAchieved(ctx ContextView) bool
	Pursued() bool
	SetPursued(pursued bool)
}

// GoalBase carries the pursued flag. Embed it to implement Goal.
type GoalBase struct {
	pursued bool
}

func (g *GoalBase) Pursued() bool { return g.pursued }

func (g *GoalBase) SetPursued(pursued bool) { g.pursued = pursued }

// AsGoal reports whether the trigger is a Goal.
func AsGoal(t Trigger) (Goal, bool) {
	g, ok := t.(Goal)
	return g, ok && g != nil
}
