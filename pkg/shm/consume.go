package shm

import (
	"encoding/binary"
	"fmt"
)

// Message is a committed frame returned by GetOne. Its bytes alias the data
// region and are only valid until CommitConsume, after which the producer
// may overwrite them.
type Message struct {
	q     *Queue
	seq   uint64
	start uint64 // head before the message, padding included
	end   uint64 // head after commit
	data  []byte
}

// Bytes returns the payload.
func (m Message) Bytes() []byte {
	return m.data
}

// Len returns the payload length.
func (m Message) Len() int {
	return len(m.data)
}

// GetOne returns the oldest committed message without releasing it. Padding
// in front of the message is skipped.
func (q *Queue) GetOne() (Message, error) {
	if q.closed.Load() {
		return Message{}, ErrClosed
	}
	head := q.cons.head
	if head == q.cons.tailCache {
		q.cons.tailCache = q.hdr.tail.Load()
		if head == q.cons.tailCache {
			q.inst.recordEmpty()
			return Message{}, ErrQueueEmpty
		}
	}

	off := head & q.mask
	if span := q.capacity - off; span < FrameHeaderSize ||
		binary.LittleEndian.Uint32(q.ring[off:]) == padMarker {
		head += span
		off = 0
	}
	avail := q.cons.tailCache - head
	if avail < FrameHeaderSize || avail > q.capacity {
		return Message{}, q.corrupt("frame at %d: %d committed bytes left", head, avail)
	}
	n := uint64(binary.LittleEndian.Uint32(q.ring[off:]))
	frame := n + FrameHeaderSize
	if frame > avail || off+frame > q.capacity {
		return Message{}, q.corrupt("frame at %d: length %d with %d committed bytes left", head, n, avail)
	}

	payload := off + FrameHeaderSize
	q.cons.seq++
	return Message{
		q:     q,
		seq:   q.cons.seq,
		start: q.cons.head,
		end:   head + frame,
		data:  q.ring[payload : payload+n : payload+n],
	}, nil
}

func (q *Queue) corrupt(format string, a ...interface{}) error {
	err := fmt.Errorf(format+": %w", append(a, ErrCorrupt)...)
	internalLogger.Errorf("queue %s: %v", q.name, err)
	return err
}

// CommitConsume releases m back to the producer, together with the padding
// in front of it.
//
// It fails with ErrMisuse when m comes from another handle, was already
// committed, or was superseded by a later GetOne.
func (q *Queue) CommitConsume(m Message) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if m.q != q {
		return fmt.Errorf("message belongs to another queue: %w", ErrMisuse)
	}
	if m.seq != q.cons.seq || m.start != q.cons.head || m.end <= m.start {
		return fmt.Errorf("stale message [%d,%d), head is %d: %w", m.start, m.end, q.cons.head, ErrMisuse)
	}
	q.hdr.head.Store(m.end)
	q.cons.head = m.end
	q.inst.recordConsumed(len(m.data))
	return nil
}

// Consume copies the oldest message into buf and releases it. It returns the
// message length.
//
// When buf is too short it fails with ErrBufferTooSmall and the needed
// length, leaving the message in the queue.
func (q *Queue) Consume(buf []byte) (int, error) {
	m, err := q.GetOne()
	if err != nil {
		return 0, err
	}
	if len(m.data) > len(buf) {
		return len(m.data), fmt.Errorf("message of %d bytes, buffer of %d: %w", len(m.data), len(buf), ErrBufferTooSmall)
	}
	n := copy(buf, m.data)
	return n, q.CommitConsume(m)
}

// ConsumeAppend appends the oldest message to dst and releases it. An empty
// message leaves dst unchanged, so a nil dst stays nil.
func (q *Queue) ConsumeAppend(dst []byte) ([]byte, error) {
	m, err := q.GetOne()
	if err != nil {
		return dst, err
	}
	dst = append(dst, m.data...)
	return dst, q.CommitConsume(m)
}
