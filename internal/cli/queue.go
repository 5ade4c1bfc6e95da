package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/srediag/spsc-shm/adapter"
	"github.com/srediag/spsc-shm/pkg/shm"
)

// openOptions describes queue name. Only a create carries the configured
// capacity; an attach adopts whatever capacity the segment holds.
func (s *session) openOptions(name string, create bool) shm.OpenOptions {
	opts := shm.OpenOptions{
		Name:   name,
		Create: create,
		Dir:    s.cfg.Dir,
	}
	if create {
		opts.Size = s.cfg.Capacity
	}
	adapter.ApplyOTel(&opts)
	return opts
}

func pollBackOff(maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// open maps the queue described by opts. While the segment is missing or
// its creator has not finished initializing it, open retries for up to the
// configured attach_wait. With opts.Create an existing queue is attached
// as is, whatever its capacity, and only a missing one is created.
func (s *session) open(ctx context.Context, opts shm.OpenOptions) (*shm.Queue, error) {
	if opts.Create {
		attach := opts
		attach.Create = false
		attach.Size = 0
		q, err := shm.Open(ctx, attach)
		switch {
		case err == nil:
			return q, nil
		case errors.Is(err, fs.ErrNotExist):
			return shm.Open(ctx, opts)
		case errors.Is(err, shm.ErrNotReady):
			opts = attach
		default:
			return nil, err
		}
	}
	wait := s.cfg.attachWait()
	if wait <= 0 {
		return shm.Open(ctx, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var (
		q       *shm.Queue
		lastErr error
	)
	op := func() error {
		var err error
		if q, err = shm.Open(ctx, opts); err == nil {
			return nil
		}
		if errors.Is(err, shm.ErrNotReady) || errors.Is(err, fs.ErrNotExist) {
			lastErr = err
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, backoff.WithContext(pollBackOff(50*time.Millisecond), ctx))
	if err != nil {
		if lastErr != nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("waited %s: %w", wait, lastErr)
		}
		return nil, err
	}
	return q, nil
}

// sleep waits for the next interval of b or until ctx is done.
func sleep(ctx context.Context, b backoff.BackOff) error {
	t := time.NewTimer(b.NextBackOff())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
