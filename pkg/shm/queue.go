package shm

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/spsc-shm/internal/logger"
)

var internalLogger = logger.New("shm queue", nil)

const cacheLineSize = 64

// producerState is owned by the producing side of a handle.
type producerState struct {
	tail      uint64 // last committed tail
	headCache uint64 // last observed head
	seq       uint64 // id of the latest reservation
	_         [cacheLineSize - 24]byte
}

// consumerState is owned by the consuming side of a handle.
type consumerState struct {
	head      uint64 // last committed head
	tailCache uint64 // last observed tail
	seq       uint64 // id of the latest message
	_         [cacheLineSize - 24]byte
}

// Queue is a process-local handle on a single-producer single-consumer byte
// queue living in a Segment.
//
// Exactly one goroutine in one process may produce and exactly one may
// consume over the lifetime of a segment. Both sides may be driven through
// the same handle or through handles in different processes. The queue never
// blocks: would-block conditions are returned as ErrQueueFull and
// ErrQueueEmpty and retrying is up to the caller.
//
// The handle must be released with Unmap; nothing else releases the mapping.
type Queue struct {
	prod producerState
	cons consumerState

	name     string
	seg      Segment
	hdr      *header
	ring     []byte
	capacity uint64
	mask     uint64
	maxMsg   uint64

	closed          atomic.Bool
	producerClaimed atomic.Bool
	consumerClaimed atomic.Bool

	inst   *instruments
	tracer trace.Tracer
}

// NewQueue builds a queue over seg.
//
// With isCreate, size is rounded with RoundPowerOfTwo and a fresh header is
// written, discarding whatever the segment held. Otherwise the existing
// header is validated: a non-zero size must round to the stored capacity,
// zero adopts it, and the cursors are left untouched.
//
// The caller keeps ownership of seg when NewQueue fails.
func NewQueue(seg Segment, size uint64, isCreate bool, opts ...Option) (*Queue, error) {
	if !is64Bit || !isLittleEndian {
		return nil, fmt.Errorf("queue requires a 64-bit little-endian CPU: %w", ErrIncompatible)
	}
	if seg == nil {
		return nil, fmt.Errorf("segment is nil: %w", ErrInvalidInput)
	}
	o := newQueueOptions(opts)

	mem := seg.Bytes()
	hdr, err := mapHeader(mem)
	if err != nil {
		return nil, err
	}
	dataLen := uint64(len(mem) - HeaderSize)

	var capacity uint64
	if isCreate {
		capacity = RoundPowerOfTwo(size)
		if capacity == 0 || capacity > MaxCapacity {
			return nil, fmt.Errorf("size %d: %w", size, ErrInvalidCapacity)
		}
		if capacity > dataLen {
			return nil, fmt.Errorf("%w: capacity %d needs %d bytes, segment has %d",
				ErrSegment, capacity, SegmentSize(capacity), len(mem))
		}
		hdr.init(capacity)
	} else {
		capacity, err = hdr.validate(dataLen)
		if err != nil {
			return nil, err
		}
		if size != 0 && RoundPowerOfTwo(size) != capacity {
			return nil, fmt.Errorf("expected capacity %d, segment holds %d: %w",
				RoundPowerOfTwo(size), capacity, ErrInvalidCapacity)
		}
	}

	q := &Queue{
		name:     o.name,
		seg:      seg,
		hdr:      hdr,
		ring:     mem[HeaderSize : HeaderSize+capacity : HeaderSize+capacity],
		capacity: capacity,
		mask:     capacity - 1,
		maxMsg:   maxMessageSize(capacity),
		tracer:   o.tracer,
	}
	head, tail := hdr.head.Load(), hdr.tail.Load()
	if tail-head > capacity {
		return nil, fmt.Errorf("cursors head:%d tail:%d exceed capacity %d: %w", head, tail, capacity, ErrCorrupt)
	}
	q.prod.tail, q.prod.headCache = tail, head
	q.cons.head, q.cons.tailCache = head, tail

	if q.inst, err = newInstruments(o.meter, q); err != nil {
		return nil, fmt.Errorf("instruments: %w", err)
	}
	return q, nil
}

// Open maps the segment described by opts and builds a queue over it.
func Open(ctx context.Context, opts OpenOptions) (q *Queue, err error) {
	if err := VerifyOpenOptions(&opts); err != nil {
		return nil, err
	}
	ctx, span := opts.Tracer.Start(ctx, "shm.Open", trace.WithAttributes(
		attribute.String("shm.queue", opts.Name),
		attribute.Bool("shm.create", opts.Create),
		attribute.Int64("shm.size", int64(opts.Size)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	size := 0
	if opts.Create {
		size = int(SegmentSize(RoundPowerOfTwo(opts.Size)))
	}
	seg, created, err := opts.Provider.Map(ctx, opts.Name, size, opts.Create)
	if err != nil {
		if !errors.Is(err, ErrSegment) {
			err = fmt.Errorf("%w: %w", ErrSegment, err)
		}
		return nil, err
	}
	q, err = NewQueue(seg, opts.Size, created,
		WithName(opts.Name), WithMeter(opts.Meter), WithTracer(opts.Tracer))
	if err != nil {
		if cerr := seg.Close(); cerr != nil {
			internalLogger.Warnf("close segment %s error: %v", opts.Name, cerr)
		}
		return nil, err
	}
	span.SetAttributes(attribute.Bool("shm.created", created), attribute.Int64("shm.capacity", int64(q.capacity)))
	if created {
		internalLogger.Infof("created queue %s capacity:%d", opts.Name, q.capacity)
	} else {
		internalLogger.Infof("attached queue %s capacity:%d head:%d tail:%d",
			opts.Name, q.capacity, q.cons.head, q.prod.tail)
	}
	return q, nil
}

// Name returns the name given with WithName or Open.
func (q *Queue) Name() string {
	return q.name
}

// Cap returns the capacity of the data region in bytes.
func (q *Queue) Cap() uint64 {
	return q.capacity
}

// MaxMessageSize returns the largest payload Alloc accepts.
func (q *Queue) MaxMessageSize() int {
	return int(q.maxMsg)
}

// Len returns the number of bytes between the consumer and producer cursors,
// framing and padding included. It is a snapshot that may be stale as soon
// as it returns. Len of an unmapped handle is 0.
func (q *Queue) Len() uint64 {
	if q.closed.Load() {
		return 0
	}
	head := q.hdr.head.Load()
	tail := q.hdr.tail.Load()
	used := tail - head
	if used > q.capacity {
		// head was read before tail and is stale; the producer has since
		// reused space the consumer freed after that read.
		used = q.capacity
	}
	return used
}

// IsEmpty reports whether Len is 0. Advisory only: GetOne may still fail
// with ErrQueueEmpty or succeed right after.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether Len equals the capacity. Advisory only.
func (q *Queue) IsFull() bool {
	return !q.closed.Load() && q.Len() == q.capacity
}

// Closed reports whether Unmap was called.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Validate re-reads the shared header and checks it still describes this
// queue.
func (q *Queue) Validate() error {
	if q.closed.Load() {
		return ErrClosed
	}
	c, err := q.hdr.validate(q.capacity)
	if err != nil {
		return err
	}
	if c != q.capacity {
		return fmt.Errorf("capacity changed from %d to %d: %w", q.capacity, c, ErrCorrupt)
	}
	if used := q.hdr.tail.Load() - q.hdr.head.Load(); used > q.capacity {
		return fmt.Errorf("%d used bytes exceed capacity %d: %w", used, q.capacity, ErrCorrupt)
	}
	return nil
}

// Unmap releases this process's mapping. The segment itself stays, see
// Remove. Every later call on the handle or its role handles fails with
// ErrClosed; a second Unmap too.
func (q *Queue) Unmap() (err error) {
	if !q.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	_, span := q.tracer.Start(context.Background(), "shm.Unmap",
		trace.WithAttributes(attribute.String("shm.queue", q.name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if ierr := q.inst.close(); ierr != nil {
		internalLogger.Warnf("unregister instruments of %s error: %v", q.name, ierr)
	}
	q.ring = nil
	if err = q.seg.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSegment, err)
	}
	internalLogger.Debugf("unmapped queue %s", q.name)
	return nil
}
