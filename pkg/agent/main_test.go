package agent_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/deliberation"
	"github.com/xkilldash9x/deliberate/pkg/messaging"
)

// harness builds a State wired to a real router and a counting wake hook.
type harness struct {
	state  *agent.State
	router *messaging.Router
	wakes  atomic.Int32
}

func newHarness(t *testing.T, mutate ...func(*agent.Config)) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{router: messaging.NewRouter(logger)}
	cfg := agent.Config{
		ID:     agent.NewID("tester"),
		Router: h.router,
		Cycle:  deliberation.DefaultCycle,
		Wake:   func() { h.wakes.Add(1) },
		Logger: logger,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := agent.New(cfg)
	require.NoError(t, err)
	require.NoError(t, h.router.Register(s.ID(), s))
	h.state = s
	return h
}

// asleep parks the harness agent, failing the test if it has work.
func (h *harness) asleep(t *testing.T) {
	t.Helper()
	require.True(t, h.state.CheckSleeping(), "agent should have nothing to do")
	require.True(t, h.state.Sleeping())
}

type testGoal struct {
	agent.GoalBase
	name     string
	achieved bool
}

func (g *testGoal) IsAchieved(agent.ContextView) bool { return g.achieved }

type stubInterceptor struct {
	consuming bool
}

func (s *stubInterceptor) Instantiate(agent.Trigger, agent.ContextView) (agent.Plan, bool) {
	return nil, false
}

func (s *stubInterceptor) Consuming() bool { return s.consuming }
