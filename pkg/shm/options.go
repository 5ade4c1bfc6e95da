package shm

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/spsc-shm/pkg/shm"

// OpenOptions configures [Open].
type OpenOptions struct {
	// Name is the segment name, a single path element.
	Name string

	// Size is the requested data region capacity in bytes.
	//
	// On create it is rounded with [RoundPowerOfTwo]. On attach a non-zero
	// Size must round to the stored capacity; zero adopts the stored one.
	Size uint64

	// Create creates the segment when it does not exist yet. An existing
	// segment is attached either way.
	Create bool

	// Dir overrides the directory of the default provider.
	Dir string

	// Provider maps segments, DevShm{Dir: Dir} when nil.
	Provider SegmentProvider

	// Meter and Tracer default to no-op implementations.
	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultOpenOptions returns options that create a DefaultCapacity queue.
// Name must still be set.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{
		Size:   DefaultCapacity,
		Create: true,
	}
}

// VerifyOpenOptions checks opts and fills in defaults.
func VerifyOpenOptions(opts *OpenOptions) error {
	if opts == nil {
		return fmt.Errorf("options are nil: %w", ErrInvalidInput)
	}
	if opts.Name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if strings.ContainsRune(opts.Name, '/') || opts.Name == "." || opts.Name == ".." {
		return fmt.Errorf("name %q must be a single path element: %w", opts.Name, ErrInvalidInput)
	}
	if opts.Size > MaxCapacity {
		return fmt.Errorf("size %d exceeds %d: %w", opts.Size, uint64(MaxCapacity), ErrInvalidCapacity)
	}
	if opts.Provider == nil {
		opts.Provider = DevShm{Dir: opts.Dir}
	}
	if opts.Meter == nil {
		opts.Meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if opts.Tracer == nil {
		opts.Tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	return nil
}

// Option configures [NewQueue].
type Option func(*queueOptions)

type queueOptions struct {
	name   string
	meter  metric.Meter
	tracer trace.Tracer
}

// WithName sets the name reported in logs and telemetry.
func WithName(name string) Option {
	return func(o *queueOptions) {
		o.name = name
	}
}

// WithMeter records queue metrics with m.
func WithMeter(m metric.Meter) Option {
	return func(o *queueOptions) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithTracer traces Unmap with t.
func WithTracer(t trace.Tracer) Option {
	return func(o *queueOptions) {
		if t != nil {
			o.tracer = t
		}
	}
}

func newQueueOptions(opts []Option) queueOptions {
	o := queueOptions{
		meter:  metricnoop.NewMeterProvider().Meter(instrumentationName),
		tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
