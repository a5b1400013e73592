package compute

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// metrics are the conversion instruments. They report to the global OTel
// meter provider, which is a no-op unless the host application installs one.
type metrics struct {
	conversions metric.Int64Counter
	slots       metric.Int64Counter
	generated   metric.Int64Counter
	duration    metric.Float64Histogram
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		ms  metrics
		err error
	)

	ms.conversions, err = m.Int64Counter(
		"compute.conversions",
		metric.WithDescription("Heightmap conversions by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating conversions counter: %w", err)
	}

	ms.slots, err = m.Int64Counter(
		"compute.voxel_slots",
		metric.WithDescription("Voxel slots allocated for conversions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating voxel slots counter: %w", err)
	}

	ms.generated, err = m.Int64Counter(
		"compute.voxels.generated",
		metric.WithDescription("Valid voxels produced after compaction"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating generated counter: %w", err)
	}

	ms.duration, err = m.Float64Histogram(
		"compute.conversion.duration",
		metric.WithDescription("Conversion wall time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	return &ms, nil
}

func noopMetrics() *metrics {
	ms, _ := newMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	return ms
}

func (m *metrics) recordConversion(start time.Time, slots int, err error) {
	ctx := context.Background()
	result := "ok"
	if err != nil {
		result = Kind(err)
		if result == "" {
			result = "error"
		}
	}
	attrs := metric.WithAttributes(attribute.String("result", result))

	m.conversions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if err == nil && slots > 0 {
		m.slots.Add(ctx, int64(slots))
	}
}

func (m *metrics) recordGenerated(n int) {
	m.generated.Add(context.Background(), int64(n))
}
