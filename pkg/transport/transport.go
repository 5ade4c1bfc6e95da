// Package transport provides a duplex message channel between two processes
// built from a pair of shared memory queues.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/spsc-shm/internal/logger"
	"github.com/srediag/spsc-shm/pkg/shm"
)

var internalLogger = logger.New("transport", nil)

var (
	// ErrClosed is returned by calls on a closed Channel.
	ErrClosed = errors.New("transport: channel closed")
	// ErrBacklogFull is returned by Post when Config.Backlog messages are
	// already waiting.
	ErrBacklogFull = errors.New("transport: backlog full")
)

// Handler processes one received message. buf is only valid during the call.
type Handler func(buf []byte)

// Channel sends into one queue and receives from the other. Send and Post
// may be called from any goroutine, as may Receive and Serve; each side is
// serialized internally so the queues keep a single producer and consumer.
type Channel struct {
	cfg Config

	tx   *shm.Queue
	rx   *shm.Queue
	prod *shm.Producer
	cons *shm.Consumer

	sendMu sync.Mutex
	recvMu sync.Mutex

	backlog *queuepkg.Queue
	pool    *ants.Pool

	// ctx ends blocking calls on Close, flushCtx ends the backlog flush.
	ctx         context.Context
	cancel      context.CancelFunc
	flushCtx    context.Context
	flushCancel context.CancelFunc
	wg          sync.WaitGroup
	closed      atomic.Bool
}

// Dial opens both queues of the channel. The initiator creates them; the
// other side retries until the initiator has initialized them or ctx is done.
func Dial(ctx context.Context, cfg *Config) (*Channel, error) {
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}
	c := &Channel{cfg: *cfg}

	sendName, recvName := cfg.txName(), cfg.rxName()
	if cfg.Initiator {
		sendName, recvName = recvName, sendName
	}
	var err error
	if c.tx, err = c.open(ctx, sendName); err != nil {
		return nil, err
	}
	if c.rx, err = c.open(ctx, recvName); err != nil {
		c.unmap(c.tx)
		return nil, err
	}
	if c.prod, err = c.tx.Producer(); err != nil {
		c.unmapAll()
		return nil, err
	}
	if c.cons, err = c.rx.Consumer(); err != nil {
		c.unmapAll()
		return nil, err
	}

	c.pool, err = ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(p interface{}) {
		internalLogger.Errorf("channel %s handler panic: %v", cfg.Name, p)
	}))
	if err != nil {
		c.unmapAll()
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	c.backlog = queuepkg.New(flushBatch)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.flushCtx, c.flushCancel = context.WithCancel(context.Background())
	c.wg.Add(1)
	go c.flushLoop()

	internalLogger.Infof("channel %s dialed initiator:%v send:%s recv:%s", cfg.Name, cfg.Initiator, sendName, recvName)
	return c, nil
}

func (c *Channel) open(ctx context.Context, name string) (*shm.Queue, error) {
	opts := shm.OpenOptions{
		Name:     name,
		Size:     c.cfg.Capacity,
		Create:   c.cfg.Initiator,
		Dir:      c.cfg.Dir,
		Provider: c.cfg.Provider,
		Meter:    c.cfg.Meter,
		Tracer:   c.cfg.Tracer,
	}
	if c.cfg.Initiator {
		return shm.Open(ctx, opts)
	}
	var q *shm.Queue
	op := func() error {
		var err error
		q, err = shm.Open(ctx, opts)
		if err == nil {
			return nil
		}
		if errors.Is(err, shm.ErrNotReady) || errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(op, backoff.WithContext(c.cfg.NewBackOff(), ctx)); err != nil {
		return nil, fmt.Errorf("wait for queue %s: %w", name, err)
	}
	return q, nil
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.cfg.Name
}

// withChannel returns ctx cancelled also when the channel closes.
func (c *Channel) withChannel(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Send produces p, retrying while the queue is full until ctx is done.
func (c *Channel) Send(ctx context.Context, p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	ctx, done := c.withChannel(ctx)
	defer done()
	return c.send(ctx, p)
}

func (c *Channel) send(ctx context.Context, p []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	op := func() error {
		err := c.prod.Produce(p)
		if err == nil || errors.Is(err, shm.ErrQueueFull) {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(op, backoff.WithContext(c.cfg.NewBackOff(), ctx))
}

// Receive consumes the next message into a pooled buffer, retrying while the
// queue is empty until ctx is done. Return the buffer with Release.
func (c *Channel) Receive(ctx context.Context) (*bytebufferpool.ByteBuffer, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	ctx, done := c.withChannel(ctx)
	defer done()

	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	var buf *bytebufferpool.ByteBuffer
	op := func() error {
		m, err := c.cons.GetOne()
		if errors.Is(err, shm.ErrQueueEmpty) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		buf = bytebufferpool.Get()
		_, _ = buf.Write(m.Bytes())
		if err := c.cons.Commit(m); err != nil {
			bytebufferpool.Put(buf)
			buf = nil
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(c.cfg.NewBackOff(), ctx)); err != nil {
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, err
	}
	return buf, nil
}

// Release returns a buffer obtained from Receive to the pool.
func (c *Channel) Release(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		bytebufferpool.Put(buf)
	}
}

// Post queues a copy of p and returns without waiting for queue space. A
// background goroutine moves posted messages into the queue in order.
func (c *Channel) Post(p []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.backlog.Len() >= c.cfg.Backlog {
		return ErrBacklogFull
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	if err := c.backlog.Put(cp); err != nil {
		return ErrClosed
	}
	return nil
}

// Pending returns the number of posted messages not yet in the queue.
func (c *Channel) Pending() int64 {
	return c.backlog.Len()
}

func (c *Channel) flushLoop() {
	defer c.wg.Done()
	for {
		items, err := c.backlog.Get(flushBatch)
		if err != nil {
			// disposed by Close
			return
		}
		for i, item := range items {
			if err := c.send(c.flushCtx, item.([]byte)); err != nil {
				internalLogger.Warnf("channel %s dropped %d posted messages: %v", c.cfg.Name, len(items)-i, err)
				break
			}
		}
	}
}

// Serve receives messages and runs handler for each of them on the worker
// pool until ctx is done or the channel is closed. Handler panics are logged.
func (c *Channel) Serve(ctx context.Context, handler Handler) error {
	for {
		buf, err := c.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := c.pool.Submit(func() {
			defer c.Release(buf)
			handler(buf.B)
		}); err != nil {
			c.Release(buf)
			if errors.Is(err, ants.ErrPoolClosed) {
				return ErrClosed
			}
			return fmt.Errorf("submit: %w", err)
		}
	}
}

// Close flushes the Post backlog for up to Config.CloseTimeout, waits for
// running handlers and unmaps both queues. The initiator also removes them.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	remaining := c.backlog.Dispose()
	c.cancel()
	timer := time.AfterFunc(c.cfg.CloseTimeout, c.flushCancel)
	c.wg.Wait()
	for i, item := range remaining {
		if err := c.send(c.flushCtx, item.([]byte)); err != nil {
			internalLogger.Warnf("channel %s dropped %d posted messages on close: %v", c.cfg.Name, len(remaining)-i, err)
			break
		}
	}
	timer.Stop()
	c.flushCancel()

	if err := c.pool.ReleaseTimeout(c.cfg.CloseTimeout); err != nil {
		internalLogger.Warnf("channel %s handlers still running: %v", c.cfg.Name, err)
	}
	c.sendMu.Lock()
	c.recvMu.Lock()
	defer c.sendMu.Unlock()
	defer c.recvMu.Unlock()
	return c.unmapAll()
}

func (c *Channel) unmapAll() error {
	return errors.Join(c.unmap(c.tx), c.unmap(c.rx))
}

func (c *Channel) unmap(q *shm.Queue) error {
	if q == nil {
		return nil
	}
	err := q.Unmap()
	if c.cfg.Initiator && c.cfg.Provider == nil {
		if rerr := shm.Remove(c.cfg.Dir, q.Name()); rerr != nil {
			internalLogger.Warnf("channel %s remove %s failed: %v", c.cfg.Name, q.Name(), rerr)
		} else {
			internalLogger.Infof("channel %s removed %s", c.cfg.Name, q.Name())
		}
	}
	return err
}
