package platform_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/deliberate/pkg/agent"
	"github.com/xkilldash9x/deliberate/pkg/platform"
)

const waitFor = 2 * time.Second

func newPlatform(t *testing.T, opts ...platform.Option) *platform.Platform {
	t.Helper()
	p, err := platform.New(zaptest.NewLogger(t), append([]platform.Option{platform.WithWorkers(4)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { halt(t, p) })
	return p
}

func halt(t *testing.T, p *platform.Platform) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Halt(ctx))
}

// deathOf returns a channel closed when the agent dies.
func deathOf(h agent.ExternalHandle) <-chan struct{} {
	died := make(chan struct{})
	var once sync.Once
	h.AddDeathListener(agent.DeathListenerFunc(func(agent.ID) { once.Do(func() { close(died) }) }))
	return died
}

func await(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitFor):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNewAgent_UnknownType(t *testing.T) {
	p := newPlatform(t)
	h, err := p.NewAgent("nobody", nil)
	assert.Nil(t, h)

	var creationErr *agent.CreationError
	require.ErrorAs(t, err, &creationErr)
	assert.Equal(t, agent.Type("nobody"), creationErr.Type)
	assert.ErrorIs(t, err, platform.ErrUnknownType)
	assert.ErrorIs(t, err, agent.ErrAgentCreationFailed)
}

func TestNewAgent_FactoryFailure(t *testing.T) {
	cause := errors.New("bad args")
	p := newPlatform(t, platform.WithFactories(
		platform.NewFactory("broken", func(any) (*platform.Components, error) { return nil, cause }),
		platform.NewFactory("empty", func(any) (*platform.Components, error) { return nil, nil }),
		platform.NewFactory("nil", nil),
	))

	_, err := p.NewAgent("broken", nil)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, agent.ErrAgentCreationFailed)

	_, err = p.NewAgent("empty", nil)
	assert.ErrorIs(t, err, agent.ErrInvalidConfig)

	_, err = p.NewAgent("nil", nil)
	assert.ErrorIs(t, err, agent.ErrAgentCreationFailed)
	assert.Zero(t, p.Stats().Created)
}

func TestFactories(t *testing.T) {
	p := newPlatform(t)
	b := platform.NewBuilder("worker")

	require.NoError(t, p.AddFactory(b))
	assert.ErrorIs(t, p.AddFactory(platform.NewBuilder("worker")), platform.ErrFactoryExists)
	assert.Error(t, p.AddFactory(nil))
	assert.Equal(t, 1, p.Stats().Factories)

	assert.True(t, p.RemoveFactory("worker"))
	assert.False(t, p.RemoveFactory("worker"))
	_, err := p.NewAgent("worker", nil)
	assert.ErrorIs(t, err, platform.ErrUnknownType)
}

func TestAgent_FinishesAndDies(t *testing.T) {
	p := newPlatform(t)
	ran := make(chan struct{})
	b := platform.NewBuilder("oneshot").AddPlan(func() agent.Plan {
		return agent.RunOnce(func(pc agent.PlanContext) error {
			close(ran)
			pc.Finish()
			return nil
		})
	})

	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	died := deathOf(h)
	await(t, ran, "initial plan")
	await(t, died, "agent death")

	assert.False(t, p.Alive(h.ID()))
	assert.False(t, p.KillAgent(h.ID()), "already dead")
	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Created)
	assert.EqualValues(t, 1, stats.Killed)
	assert.Zero(t, stats.Agents)
}

func TestAgent_SleepsAndWakesOnExternalTrigger(t *testing.T) {
	p := newPlatform(t)
	got := make(chan agent.Trigger, 4)
	b := platform.NewBuilder("listener").AddExternalScheme(agent.SchemeFunc(
		func(tr agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
			return agent.RunOnce(func(agent.PlanContext) error {
				got <- tr
				return nil
			}), true
		}))

	h, err := p.Spawn(b, nil)
	require.NoError(t, err)

	for _, want := range []string{"ping", "pong"} {
		// Let the agent park between triggers.
		require.Eventually(t, func() bool { return p.Stats().PendingTurns == 0 }, waitFor, time.Millisecond)
		h.AddExternalTrigger(want)
		select {
		case tr := <-got:
			assert.Equal(t, want, tr)
		case <-time.After(waitFor):
			t.Fatalf("trigger %q never handled", want)
		}
	}
	assert.True(t, p.Alive(h.ID()), "a sleeping agent stays alive")
}

type ball struct {
	from agent.ID
	hits int
}

func TestAgents_PingPongOverMessages(t *testing.T) {
	const rally = 20
	p := newPlatform(t)
	b := platform.NewBuilder("player").AddMessageScheme(agent.SchemeFunc(
		func(tr agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
			in, ok := tr.(*ball)
			if !ok {
				return nil, false
			}
			return agent.RunOnce(func(pc agent.PlanContext) error {
				next := &ball{from: pc.ID(), hits: in.hits + 1}
				if in.hits >= rally {
					// Tell the other player the rally is over.
					_ = pc.SendMessage(in.from, next)
					pc.Finish()
					return nil
				}
				return pc.SendMessage(in.from, next)
			}), true
		}))
	require.NoError(t, p.AddFactory(b))

	a, err := p.NewAgent("player", nil)
	require.NoError(t, err)
	c, err := p.NewAgent("player", nil)
	require.NoError(t, err)
	aDied, cDied := deathOf(a), deathOf(c)

	require.NoError(t, p.Router().Send(a.ID(), &ball{from: c.ID()}))
	await(t, aDied, "first player")
	await(t, cDied, "second player")
	assert.GreaterOrEqual(t, p.Stats().Turns, int64(rally))
}

func TestKillAgent_ConcurrentKillsNotifyOnce(t *testing.T) {
	p := newPlatform(t)
	h, err := p.Spawn(platform.NewBuilder("idle"), nil)
	require.NoError(t, err)

	var notified atomic.Int32
	h.AddDeathListener(agent.DeathListenerFunc(func(agent.ID) { notified.Add(1) }))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.KillAgent(h.ID()) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 1, notified.Load())
	assert.EqualValues(t, 1, p.Stats().Killed)
	assert.ErrorIs(t, p.Router().Send(h.ID(), "hello?"), agent.ErrReceiverNotFound)
}

func TestAgent_CycleFailureKillsAgent(t *testing.T) {
	p := newPlatform(t)
	b := platform.NewBuilder("fragile").WithCycle(func(agent.DeliberationView) []agent.Step {
		return []agent.Step{agent.StepFunc(func() error { return errors.New("step broke") })}
	})

	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	await(t, deathOf(h), "agent death")
	assert.EqualValues(t, 1, p.Stats().CycleFailures)
}

func TestAgent_PanickingPlanKillsAgent(t *testing.T) {
	p := newPlatform(t)
	b := platform.NewBuilder("panicky").AddPlan(func() agent.Plan {
		return agent.RunOnce(func(pc agent.PlanContext) error {
			agent.MustContext[*struct{ missing bool }](pc.Contexts())
			return nil
		})
	})

	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	await(t, deathOf(h), "agent death")
	assert.EqualValues(t, 1, p.Stats().CycleFailures)
}

func TestAgent_PlanErrorIsNotFatal(t *testing.T) {
	p := newPlatform(t)
	repaired := make(chan struct{})
	b := platform.NewBuilder("resilient").
		AddPlan(func() agent.Plan {
			return agent.RunOnce(func(agent.PlanContext) error { return errors.New("flaky") })
		}).
		AddInternalScheme(agent.SchemeFunc(func(tr agent.Trigger, _ agent.ContextView) (agent.Plan, bool) {
			if _, ok := tr.(*agent.PlanExecutionError); !ok {
				return nil, false
			}
			return agent.RunOnce(func(agent.PlanContext) error {
				close(repaired)
				return nil
			}), true
		}))

	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	await(t, repaired, "repair plan")
	assert.True(t, p.Alive(h.ID()))
	assert.Zero(t, p.Stats().CycleFailures)
}

func TestHalt_KillsSleepingAgentsAndRejectsNewOnes(t *testing.T) {
	defer goleak.VerifyNone(t)

	p, err := platform.New(zaptest.NewLogger(t), platform.WithWorkers(2))
	require.NoError(t, err)
	b := platform.NewBuilder("sleeper")

	var deaths []<-chan struct{}
	for i := 0; i < 5; i++ {
		h, err := p.Spawn(b, nil)
		require.NoError(t, err)
		deaths = append(deaths, deathOf(h))
	}
	require.Eventually(t, func() bool { return p.Stats().PendingTurns == 0 }, waitFor, time.Millisecond)

	halt(t, p)
	for i, d := range deaths {
		await(t, d, "sleeper "+string(rune('a'+i)))
	}
	stats := p.Stats()
	assert.True(t, stats.Halted)
	assert.Zero(t, stats.Agents)
	assert.EqualValues(t, 5, stats.Killed)

	_, err = p.Spawn(b, nil)
	assert.ErrorIs(t, err, platform.ErrHalted)
}

func TestHalt_BusyAgentsFailClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	p, err := platform.New(zaptest.NewLogger(t), platform.WithWorkers(1))
	require.NoError(t, err)
	spinning := make(chan struct{})
	var once sync.Once
	b := platform.NewBuilder("busy").AddPlan(func() agent.Plan {
		return agent.NewPlan(func(agent.PlanContext) (bool, error) {
			once.Do(func() { close(spinning) })
			return false, nil
		})
	})
	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	died := deathOf(h)
	await(t, spinning, "busy plan")

	halt(t, p)
	await(t, died, "busy agent")
}

func TestPlatform_TurnRateThrottlesBusyAgents(t *testing.T) {
	p := newPlatform(t, platform.WithTurnRate(rate.Every(5*time.Millisecond), 1))
	finished := make(chan struct{})
	steps := 0
	b := platform.NewBuilder("counter").AddPlan(func() agent.Plan {
		return agent.NewPlan(func(pc agent.PlanContext) (bool, error) {
			steps++
			if steps == 5 {
				close(finished)
				pc.Finish()
			}
			return steps == 5, nil
		})
	})

	start := time.Now()
	_, err := p.Spawn(b, nil)
	require.NoError(t, err)
	await(t, finished, "throttled plan")
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPlatform_IDGenerator(t *testing.T) {
	fixed := agent.ID{Type: "fixed", Instance: agent.NewID("x").Instance}
	p := newPlatform(t, platform.WithIDGenerator(func(agent.Type) agent.ID { return fixed }))

	h, err := p.Spawn(platform.NewBuilder("fixed"), nil)
	require.NoError(t, err)
	assert.Equal(t, fixed, h.ID())

	_, err = p.Spawn(platform.NewBuilder("fixed"), nil)
	assert.ErrorIs(t, err, agent.ErrAgentCreationFailed, "a duplicate ID cannot register with the router")
}

func TestPlatform_Metrics(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	p := newPlatform(t, platform.WithMeterProvider(mp))
	b := platform.NewBuilder("metered").AddPlan(func() agent.Plan {
		return agent.RunOnce(func(pc agent.PlanContext) error {
			pc.Finish()
			return nil
		})
	})
	h, err := p.Spawn(b, nil)
	require.NoError(t, err)
	await(t, deathOf(h), "agent death")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.EqualValues(t, 1, sums["deliberate.agents.created"])
	assert.EqualValues(t, 1, sums["deliberate.agents.killed"])
	assert.EqualValues(t, 0, sums["deliberate.agents.active"])
	assert.GreaterOrEqual(t, sums["deliberate.turns"], int64(1))
}
