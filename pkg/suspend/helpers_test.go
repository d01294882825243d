package suspend_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/deliberation"
	"github.com/xkilldash9x/deliberate/pkg/messaging"
)

type testAgent struct {
	*agent.State
	woke chan struct{}
}

func newTestAgent(t *testing.T, schemes *agent.Schemes, contexts []any, plans ...agent.Plan) *testAgent {
	t.Helper()
	cs, err := agent.NewContextSet(contexts...)
	require.NoError(t, err)
	ta := &testAgent{woke: make(chan struct{}, 1)}
	s, err := agent.New(agent.Config{
		ID:       agent.NewID("waiter"),
		Router:   messaging.NewRouter(zaptest.NewLogger(t)),
		Contexts: cs,
		Schemes:  schemes,
		Plans:    plans,
		Cycle:    deliberation.DefaultCycle,
		Wake: func() {
			select {
			case ta.woke <- struct{}{}:
			default:
			}
		},
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	ta.State = s
	return ta
}

func (a *testAgent) cycles(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, a.Deliberate())
	}
}

// awaitWake parks the agent, runs fn and waits for a producer to wake it.
func (a *testAgent) awaitWake(t *testing.T, fn func()) {
	t.Helper()
	require.True(t, a.CheckSleeping())
	fn()
	select {
	case <-a.woke:
	case <-time.After(2 * time.Second):
		t.Fatal("agent was not woken")
	}
}

// once wraps body in an initial plan.
func once(body func(pc agent.PlanContext) error) agent.Plan {
	return agent.RunOnce(body)
}

func is(want agent.Trigger) func(agent.Trigger) bool {
	return func(t agent.Trigger) bool { return t == want }
}

type recorder struct {
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// scheme records every trigger of its category that reaches the plan schemes.
func (r *recorder) scheme(name string) agent.PlanScheme {
	return agent.SchemeFunc(func(t agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
		return once(func(agent.PlanContext) error {
			r.add("%s:%v", name, t)
			return nil
		}), true
	})
}

type goal struct {
	agent.GoalBase
}

func (g *goal) IsAchieved(agent.ContextView) bool { return false }
