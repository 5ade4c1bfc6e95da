package api

import "github.com/srediag/spsc-shm/pkg/health"

// Health reports whether a queue is usable.
type Health interface {
	Liveness() error
	Readiness() error
}

var _ Health = (*health.Checker)(nil)
