package health

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/openrag/opsconsole/internal/probe"
)

const meterName = "github.com/openrag/opsconsole/internal/health"

// Metrics holds the instruments recorded for every health cycle.
// A nil *Metrics records nothing.
type Metrics struct {
	probeDuration metric.Float64Histogram
	probeTotal    metric.Int64Counter
	cycleDuration metric.Float64Histogram
	superseded    metric.Int64Counter
}

// NewMetrics creates health instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	probeDuration, err := meter.Float64Histogram(
		"health.probe.duration",
		metric.WithDescription("Duration of individual service probes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	probeTotal, err := meter.Int64Counter(
		"health.probe.total",
		metric.WithDescription("Total number of settled service probes"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"health.cycle.duration",
		metric.WithDescription("Duration of complete health cycles in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	superseded, err := meter.Int64Counter(
		"health.cycle.superseded",
		metric.WithDescription("Health cycles discarded because a newer cycle was already published"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		probeDuration: probeDuration,
		probeTotal:    probeTotal,
		cycleDuration: cycleDuration,
		superseded:    superseded,
	}, nil
}

// RecordProbe records one settled probe.
func (m *Metrics) RecordProbe(ctx context.Context, status probe.ServiceStatus) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("probe.name", status.Name),
		attribute.String("probe.state", string(status.State)),
	)
	m.probeDuration.Record(ctx, (time.Duration(status.LatencyMs) * time.Millisecond).Seconds(), attrs)
	m.probeTotal.Add(ctx, 1, attrs)
}

// RecordCycle records a finished cycle and whether it was published.
func (m *Metrics) RecordCycle(ctx context.Context, duration time.Duration, published bool) {
	if m == nil {
		return
	}
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("published", published)))
	if !published {
		m.superseded.Add(ctx, 1)
	}
}
