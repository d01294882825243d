package agent

// Plan is a resumable unit of behavior. It is executed once per deliberation
// cycle until it reports itself finished, and may be bound to the Goal whose
// trigger instantiated it.
//
// Implementations embed PlanBase and provide Execute. An error returned from
// Execute is a plan execution failure: the plan is removed and the error is
// handed back to the agent as a *PlanExecutionError internal trigger.
type Plan interface {
	Execute(pc PlanContext) error
	Finished() bool
	SetFinished(finished bool)
	// BindTrigger is called with the trigger that instantiated the plan. A
	// Goal is bound and marked pursued; other triggers leave any existing
	// binding untouched.
	BindTrigger(t Trigger)
	Goal() Goal
}

// PlanBase holds the finished flag and the goal binding of a Plan.
type PlanBase struct {
	finished bool
	goal     Goal
}

func (b *PlanBase) Finished() bool { return b.finished }

// SetFinished marks the plan finished (or resumes it). A bound goal is
// released when the plan finishes and claimed again when it resumes.
func (b *PlanBase) SetFinished(finished bool) {
	b.finished = finished
	if b.goal != nil {
		b.goal.SetPursued(!finished)
	}
}

func (b *PlanBase) BindTrigger(t Trigger) {
	if g, ok := AsGoal(t); ok {
		b.goal = g
		g.SetPursued(true)
	}
}

func (b *PlanBase) Goal() Goal { return b.goal }

type runOncePlan struct {
	PlanBase
	body func(pc PlanContext) error
}

// RunOnce wraps body in a plan that finishes after one successful execution.
// A failing body leaves the plan unfinished so its goal stays pursued.
func RunOnce(body func(pc PlanContext) error) Plan {
	return &runOncePlan{body: body}
}

func (p *runOncePlan) Execute(pc PlanContext) error {
	if err := p.body(pc); err != nil {
		return err
	}
	p.SetFinished(true)
	return nil
}

type funcPlan struct {
	PlanBase
	step func(pc PlanContext) (done bool, err error)
}

// NewPlan builds a multi-cycle plan. step runs once per cycle until it
// reports done.
func NewPlan(step func(pc PlanContext) (done bool, err error)) Plan {
	return &funcPlan{step: step}
}

func (p *funcPlan) Execute(pc PlanContext) error {
	done, err := p.step(pc)
	if err != nil {
		return err
	}
	if done {
		p.SetFinished(true)
	}
	return nil
}
