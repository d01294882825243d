package deliberation_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/deliberation"
	"github.com/xkilldash9x/deliberate/pkg/messaging"
)

func newAgent(t *testing.T, schemes *agent.Schemes, plans ...agent.Plan) *agent.State {
	t.Helper()
	s, err := agent.New(agent.Config{
		ID:      agent.NewID("deliberator"),
		Router:  messaging.NewRouter(zaptest.NewLogger(t)),
		Schemes: schemes,
		Plans:   plans,
		Cycle:   deliberation.DefaultCycle,
		Wake:    func() {},
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

type goal struct {
	agent.GoalBase
	name     string
	achieved bool
}

func (g *goal) IsAchieved(agent.ContextView) bool { return g.achieved }

// journal records which plans ran, in order.
type journal struct {
	entries []string
}

// scheme fires on triggers accepted by match and instantiates a run once plan
// that writes name:trigger to the journal.
func (j *journal) scheme(name string, match func(agent.Trigger) bool) agent.PlanScheme {
	return agent.SchemeFunc(func(t agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
		if !match(t) {
			return nil, false
		}
		return agent.RunOnce(func(agent.PlanContext) error {
			j.entries = append(j.entries, fmt.Sprintf("%s:%v", name, label(t)))
			return nil
		}), true
	})
}

func label(t agent.Trigger) any {
	if g, ok := t.(*goal); ok {
		return g.name
	}
	return t
}

func always(agent.Trigger) bool { return true }

func equals(want agent.Trigger) func(agent.Trigger) bool {
	return func(t agent.Trigger) bool { return t == want }
}

// catcher is a test interceptor.
type catcher struct {
	match     func(agent.Trigger) bool
	consuming bool
	caught    []agent.Trigger
}

func (c *catcher) Instantiate(t agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
	if !c.match(t) {
		return nil, false
	}
	c.caught = append(c.caught, t)
	return agent.RunOnce(func(agent.PlanContext) error { return nil }), true
}

func (c *catcher) Consuming() bool { return c.consuming }
