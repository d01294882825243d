package platform

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

var errTurnPanicked = errors.New("deliberation panicked")

// turn runs the deliberation cycle of one agent. The platform builds it
// together with the agent so the agent's wake callback is bound from the
// start.
type turn struct {
	p     *Platform
	state *agent.State
}

func (t *turn) run() {
	p, id := t.p, t.state.ID()
	if t.state.Done() {
		p.KillAgent(id)
		return
	}

	p.stats.turns.Add(1)
	p.metrics.turn(id)
	if err := t.deliberate(); err != nil {
		t.state.Logger().Error("Deliberation failed, killing agent.",
			zap.String("error_code", string(agent.CodeOf(err))),
			zap.Error(err))
		p.stats.cycleFailures.Add(1)
		p.metrics.cycleFailure(id)
		p.KillAgent(id)
		return
	}

	switch {
	case t.state.Done():
		p.KillAgent(id)
	case !t.state.CheckSleeping():
		p.reschedule(t)
	}
}

func (t *turn) deliberate() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &agent.CycleError{Step: -1, Err: fmt.Errorf("%w: %v", errTurnPanicked, r)}
		}
	}()
	return t.state.Deliberate()
}

func (t *turn) wake() {
	t.p.stats.wakes.Add(1)
	t.p.metrics.wake(t.state.ID())
	t.p.scheduleForExecution(t)
}
