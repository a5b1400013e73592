package compute

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Faultbox/brickterrain/internal/compute"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
