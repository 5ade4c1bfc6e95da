package shm

import (
	"encoding/binary"
	"fmt"
)

// Reservation is space handed out by Alloc. Write the payload into Bytes and
// publish it with CommitProduce. A reservation that is never committed is
// simply dropped; the next Alloc reuses its space.
type Reservation struct {
	q     *Queue
	seq   uint64
	start uint64 // tail before the reservation
	end   uint64 // tail after commit
	buf   []byte
}

// Bytes returns the payload area inside the data region. It is only valid
// until CommitProduce.
func (r Reservation) Bytes() []byte {
	return r.buf
}

// Len returns the payload size that was requested.
func (r Reservation) Len() int {
	return len(r.buf)
}

// Alloc reserves a frame for an n byte payload and writes its length prefix.
// Nothing is visible to the consumer until CommitProduce.
//
// When the payload would cross the end of the data region, the rest of the
// region is turned into padding and the frame starts at offset 0. Padding
// counts against the free space.
func (q *Queue) Alloc(n int) (Reservation, error) {
	if q.closed.Load() {
		return Reservation{}, ErrClosed
	}
	if n < 0 {
		return Reservation{}, fmt.Errorf("negative size %d: %w", n, ErrInvalidInput)
	}
	if uint64(n) > q.maxMsg {
		return Reservation{}, fmt.Errorf("%d byte payload exceeds %d: %w", n, q.maxMsg, ErrMessageTooLarge)
	}

	frame := uint64(n) + FrameHeaderSize
	tail := q.prod.tail
	off := tail & q.mask
	var pad uint64
	if span := q.capacity - off; span < frame {
		pad = span
	}
	need := pad + frame
	if q.capacity-(tail-q.prod.headCache) < need {
		q.prod.headCache = q.hdr.head.Load()
		if q.capacity-(tail-q.prod.headCache) < need {
			q.inst.recordFull()
			return Reservation{}, ErrQueueFull
		}
	}

	if pad > 0 {
		if pad >= FrameHeaderSize {
			binary.LittleEndian.PutUint32(q.ring[off:], padMarker)
		}
		off = 0
	}
	binary.LittleEndian.PutUint32(q.ring[off:], uint32(n))
	payload := off + FrameHeaderSize

	q.prod.seq++
	return Reservation{
		q:     q,
		seq:   q.prod.seq,
		start: tail,
		end:   tail + need,
		buf:   q.ring[payload : payload+uint64(n) : payload+uint64(n)],
	}, nil
}

// CommitProduce publishes the frame of r to the consumer.
//
// It fails with ErrMisuse when r comes from another handle, was already
// committed, or was superseded by a later Alloc.
func (q *Queue) CommitProduce(r Reservation) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if r.q != q {
		return fmt.Errorf("reservation belongs to another queue: %w", ErrMisuse)
	}
	if r.seq != q.prod.seq || r.start != q.prod.tail || r.end <= r.start {
		return fmt.Errorf("stale reservation [%d,%d), tail is %d: %w", r.start, r.end, q.prod.tail, ErrMisuse)
	}
	q.hdr.tail.Store(r.end)
	q.prod.tail = r.end
	q.inst.recordProduced(len(r.buf))
	return nil
}

// Produce copies p into the queue as one message.
func (q *Queue) Produce(p []byte) error {
	r, err := q.Alloc(len(p))
	if err != nil {
		return err
	}
	copy(r.buf, p)
	return q.CommitProduce(r)
}
