package api

import (
	"context"

	"github.com/srediag/spsc-shm/pkg/lifecycle"
	"github.com/srediag/spsc-shm/pkg/shm"
)

// Lifecycle tracks the queues a process has mapped.
type Lifecycle interface {
	Open(ctx context.Context, opts shm.OpenOptions) (*shm.Queue, error)
	Get(name string) (*shm.Queue, bool)
	State(name string) lifecycle.State
	Close(name string) error
	CloseAll() error
}

var _ Lifecycle = (*lifecycle.Manager)(nil)
