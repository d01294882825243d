package deliberation_test

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/deliberation"
)

func TestApplyInterceptors_ConsumingRemovesTrigger(t *testing.T) {
	j := &journal{}
	var schemes agent.Schemes
	schemes.Add(agent.Messages, j.scheme("scheme", always))
	s := newAgent(t, &schemes)

	ic := &catcher{match: equals("accept"), consuming: true}
	s.AdoptInterceptor(agent.Messages, ic)
	s.DeliverMessage("accept")
	s.DeliverMessage("other")

	require.NoError(t, s.Deliberate())
	assert.Equal(t, []agent.Trigger{"accept"}, ic.caught)
	assert.Equal(t, []string{"scheme:other"}, j.entries, "the consumed trigger never reaches the schemes")
	assert.Empty(t, s.Interceptors(agent.Messages), "a fired interceptor is removed")
}

func TestApplyInterceptors_NonConsumingLeavesTrigger(t *testing.T) {
	j := &journal{}
	var schemes agent.Schemes
	schemes.Add(agent.External, j.scheme("scheme", always))
	s := newAgent(t, &schemes)

	ic := &catcher{match: equals("tick")}
	s.AdoptInterceptor(agent.External, ic)
	s.AddExternalTrigger("tick")

	require.NoError(t, s.Deliberate())
	assert.Len(t, ic.caught, 1)
	assert.Equal(t, []string{"scheme:tick"}, j.entries)
}

func TestApplyInterceptors_FiresOnFirstMatchOnly(t *testing.T) {
	s := newAgent(t, nil)
	ic := &catcher{match: always, consuming: true}
	s.AdoptInterceptor(agent.External, ic)

	left := deliberation.ApplyInterceptors(s, agent.External, []agent.Trigger{"a", "b", "c"})
	assert.Equal(t, []agent.Trigger{"a"}, ic.caught)
	assert.Equal(t, []agent.Trigger{"b", "c"}, left)
}

func TestApplyInterceptors_UnmatchedInterceptorStays(t *testing.T) {
	s := newAgent(t, nil)
	ic := &catcher{match: equals("never")}
	s.AdoptInterceptor(agent.Messages, ic)
	s.DeliverMessage("something else")

	require.NoError(t, s.Deliberate())
	assert.Equal(t, []agent.Interceptor{ic}, s.Interceptors(agent.Messages))
}

func TestApplyInterceptors_GoalsAreNeverConsumed(t *testing.T) {
	s := newAgent(t, nil)
	g := &goal{name: "g"}
	s.AdoptGoal(g)
	ic := &catcher{match: always, consuming: true}
	s.AdoptInterceptor(agent.Goals, ic)

	left := deliberation.ApplyInterceptors(s, agent.Goals, []agent.Trigger{g})
	assert.Equal(t, []agent.Trigger{g}, left)
	assert.True(t, g.Pursued(), "the interceptor's plan pursues the unpursued goal")
	assert.True(t, s.HasGoal(g))
}

func TestApplyInterceptors_SkipsPursuedGoals(t *testing.T) {
	s := newAgent(t, nil)
	g := &goal{name: "g"}
	s.AdoptGoal(g)
	g.SetPursued(true)
	ic := &catcher{match: always, consuming: true}
	s.AdoptInterceptor(agent.Goals, ic)

	require.NoError(t, s.Deliberate())
	assert.Empty(t, ic.caught, "a pursued goal is not offered to interceptors")
	assert.Equal(t, []agent.Interceptor{ic}, s.Interceptors(agent.Goals))
	assert.Empty(t, s.Plans())
	assert.True(t, g.Pursued())
}

// FuzzApplySchemes checks that every trigger yields at most one plan and that
// a trigger yields one exactly when some scheme accepts it.
func FuzzApplySchemes(f *testing.F) {
	f.Add([]byte{3, 1, 2, 3, 4, 5, 6})
	f.Add([]byte{0})
	f.Add([]byte{7, 0, 0, 0, 255, 128, 9, 9, 9, 9})

	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		var moduli []uint8
		if err := c.CreateSlice(&moduli); err != nil || len(moduli) > 8 {
			t.Skip()
		}
		var values []uint8
		if err := c.CreateSlice(&values); err != nil || len(values) > 64 {
			t.Skip()
		}

		schemes := make([]agent.PlanScheme, 0, len(moduli))
		for _, m := range moduli {
			m := m%7 + 1
			schemes = append(schemes, agent.SchemeFunc(func(tr agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
				if tr.(uint8)%m != 0 {
					return nil, false
				}
				return agent.RunOnce(func(agent.PlanContext) error { return nil }), true
			}))
		}
		triggers := make([]agent.Trigger, len(values))
		want := 0
		for i, v := range values {
			triggers[i] = v
			for _, m := range moduli {
				if v%(m%7+1) == 0 {
					want++
					break
				}
			}
		}

		s := newAgent(t, nil)
		deliberation.ApplySchemes(s, triggers, schemes)
		if got := len(s.Plans()); got != want {
			t.Fatalf("got %d plans for %d accepted triggers", got, want)
		}
	})
}
