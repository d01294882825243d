package agent

import "go.uber.org/zap"

// planContext exposes the plan facing subset of a State.
type planContext struct {
	s *State
}

func (pc *planContext) ID() ID                                      { return pc.s.id }
func (pc *planContext) Logger() *zap.Logger                         { return pc.s.logger }
func (pc *planContext) Contexts() ContextView                       { return pc.s.contexts }
func (pc *planContext) HasGoal(g Goal) bool                         { return pc.s.HasGoal(g) }
func (pc *planContext) AdoptGoal(g Goal)                            { pc.s.AdoptGoal(g) }
func (pc *planContext) DropGoal(g Goal)                             { pc.s.DropGoal(g) }
func (pc *planContext) AdoptPlan(p Plan)                            { pc.s.AdoptPlan(p) }
func (pc *planContext) AddInternalTrigger(t Trigger)                { pc.s.AddInternalTrigger(t) }
func (pc *planContext) SendMessage(to ID, msg Trigger) error        { return pc.s.SendMessage(to, msg) }
func (pc *planContext) Finish()                                     { pc.s.Finish() }
func (pc *planContext) PostInternalTrigger(t Trigger)               { pc.s.PostInternalTrigger(t) }
func (pc *planContext) PostPlan(p Plan)                             { pc.s.PostPlan(p) }
func (pc *planContext) External() ExternalHandle                    { return pc.s.handle }
func (pc *planContext) AdoptInterceptor(c Category, i Interceptor)  { pc.s.AdoptInterceptor(c, i) }
func (pc *planContext) RemoveInterceptor(c Category, i Interceptor) { pc.s.RemoveInterceptor(c, i) }

// externalHandle exposes the thread safe subset of a State to external
// processes.
type externalHandle struct {
	s *State
}

func (h *externalHandle) ID() ID { return h.s.id }

func (h *externalHandle) AddExternalTrigger(t Trigger) { h.s.AddExternalTrigger(t) }

func (h *externalHandle) AddDeathListener(l DeathListener) (remove func()) {
	return h.s.AddDeathListener(l)
}
