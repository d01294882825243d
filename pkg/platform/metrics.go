package platform

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xkilldash9x/deliberate/pkg/agent"
)

const meterName = "github.com/xkilldash9x/deliberate/pkg/platform"

// metrics publishes platform counters through OpenTelemetry. With the default
// global provider and no SDK installed every instrument is a no-op.
type metrics struct {
	turns         metric.Int64Counter
	wakes         metric.Int64Counter
	created       metric.Int64Counter
	killed        metric.Int64Counter
	cycleFailures metric.Int64Counter
	active        metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(meterName)
	m := &metrics{}
	var err error

	if m.turns, err = meter.Int64Counter("deliberate.turns",
		metric.WithDescription("Deliberation turns executed")); err != nil {
		return nil, err
	}
	if m.wakes, err = meter.Int64Counter("deliberate.wakes",
		metric.WithDescription("Sleeping agents woken by new input")); err != nil {
		return nil, err
	}
	if m.created, err = meter.Int64Counter("deliberate.agents.created",
		metric.WithDescription("Agents created")); err != nil {
		return nil, err
	}
	if m.killed, err = meter.Int64Counter("deliberate.agents.killed",
		metric.WithDescription("Agents killed, whether finished, stopped or failed")); err != nil {
		return nil, err
	}
	if m.cycleFailures, err = meter.Int64Counter("deliberate.cycle.failures",
		metric.WithDescription("Turns aborted by a fatal deliberation failure")); err != nil {
		return nil, err
	}
	if m.active, err = meter.Int64UpDownCounter("deliberate.agents.active",
		metric.WithDescription("Agents currently alive")); err != nil {
		return nil, err
	}
	return m, nil
}

func typeAttr(id agent.ID) metric.AddOption {
	return metric.WithAttributes(attribute.String("agent.type", string(id.Type)))
}

func (m *metrics) turn(id agent.ID)         { m.turns.Add(context.Background(), 1, typeAttr(id)) }
func (m *metrics) wake(id agent.ID)         { m.wakes.Add(context.Background(), 1, typeAttr(id)) }
func (m *metrics) cycleFailure(id agent.ID) { m.cycleFailures.Add(context.Background(), 1, typeAttr(id)) }

func (m *metrics) agentCreated(id agent.ID) {
	m.created.Add(context.Background(), 1, typeAttr(id))
	m.active.Add(context.Background(), 1, typeAttr(id))
}

func (m *metrics) agentKilled(id agent.ID) {
	m.killed.Add(context.Background(), 1, typeAttr(id))
	m.active.Add(context.Background(), -1, typeAttr(id))
}
