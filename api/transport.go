// Package api defines the public contracts of spsc-shm.
package api

import (
	"context"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/spsc-shm/pkg/transport"
)

// Transport is a duplex message channel between two processes.
type Transport interface {
	// Send blocks until p is in the outgoing queue or ctx is done.
	Send(ctx context.Context, p []byte) error
	// Post queues a copy of p for sending without blocking.
	Post(p []byte) error
	// Receive blocks for the next incoming message. The buffer goes back
	// with Release.
	Receive(ctx context.Context) (*bytebufferpool.ByteBuffer, error)
	Release(buf *bytebufferpool.ByteBuffer)
	Close() error
}

var _ Transport = (*transport.Channel)(nil)
