// Package adapter wires queues into the process-wide observability stack.
package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/spsc-shm/pkg/shm"
	"github.com/srediag/spsc-shm/pkg/transport"
)

const instrumentationName = "github.com/srediag/spsc-shm"

// ApplyOTel sets the meter and tracer of opts from the global OpenTelemetry
// providers, leaving the ones already set alone.
func ApplyOTel(opts *shm.OpenOptions) {
	if opts.Meter == nil {
		opts.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
}

// ApplyOTelConfig is ApplyOTel for channel configs.
func ApplyOTelConfig(cfg *transport.Config) {
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
}
