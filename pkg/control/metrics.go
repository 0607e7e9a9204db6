package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/teslashibe/go-fintrack/pkg/control"

type metrics struct {
	frames     metric.Int64Counter
	commands   metric.Int64Counter
	lost       metric.Int64Counter
	selections metric.Int64Counter
}

// newMetrics registers the loop counters on the global meter provider.
// Registration failures fall back to no-op counters.
func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	fallback := noop.Meter{}

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &metrics{
		frames:     counter("fintrack.frames", "Frames processed by the control loop"),
		commands:   counter("fintrack.commands.sent", "Fin commands written to the serial link"),
		lost:       counter("fintrack.tracking.lost", "Times the tracker lost its target"),
		selections: counter("fintrack.selections.confirmed", "Selections that started a tracker"),
	}
}

func (m *metrics) add(ctx context.Context, c metric.Int64Counter) {
	c.Add(ctx, 1)
}
