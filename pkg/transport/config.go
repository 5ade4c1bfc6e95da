package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/spsc-shm/pkg/shm"
)

const (
	defaultWorkers      = 8
	defaultBacklog      = 4096
	defaultCloseTimeout = 3 * time.Second
	flushBatch          = 64
)

// Config describes a duplex channel.
type Config struct {
	// Name is the channel name. The two queues are "<Name>.tx", produced by
	// the non-initiating side, and "<Name>.rx", produced by the initiator.
	Name string

	// Capacity of each queue in bytes.
	Capacity uint64

	// Initiator creates both queues and removes them on Close. The other
	// side waits for them in Dial.
	Initiator bool

	// Dir and Provider are passed to shm.Open.
	Dir      string
	Provider shm.SegmentProvider

	// Workers is the goroutine pool size of Serve.
	Workers int

	// Backlog bounds the number of messages queued by Post.
	Backlog int64

	// NewBackOff returns the retry policy of blocking calls. Retries stop
	// when the caller's context is done.
	NewBackOff func() backoff.BackOff

	// CloseTimeout bounds how long Close keeps flushing the Post backlog.
	CloseTimeout time.Duration

	Meter  metric.Meter
	Tracer trace.Tracer
}

// DefaultConfig returns the default config. Name must still be set.
func DefaultConfig() *Config {
	return &Config{
		Capacity:     shm.DefaultCapacity,
		Workers:      defaultWorkers,
		Backlog:      defaultBacklog,
		NewBackOff:   defaultBackOff,
		CloseTimeout: defaultCloseTimeout,
	}
}

// VerifyConfig checks c and fills in zero values with defaults.
func VerifyConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Name == "" {
		return errors.New("config.Name is required")
	}
	if c.Capacity == 0 {
		c.Capacity = shm.DefaultCapacity
	}
	if c.Capacity > shm.MaxCapacity {
		return fmt.Errorf("config.Capacity %d exceeds %d", c.Capacity, uint64(shm.MaxCapacity))
	}
	if c.Workers < 0 {
		return fmt.Errorf("config.Workers %d must not be negative", c.Workers)
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Backlog < 0 {
		return fmt.Errorf("config.Backlog %d must not be negative", c.Backlog)
	}
	if c.Backlog == 0 {
		c.Backlog = defaultBacklog
	}
	if c.NewBackOff == nil {
		c.NewBackOff = defaultBackOff
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
	return nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// txName is the queue the non-initiating side produces into.
func (c *Config) txName() string {
	return c.Name + ".tx"
}

// rxName is the queue the initiator produces into.
func (c *Config) rxName() string {
	return c.Name + ".rx"
}
