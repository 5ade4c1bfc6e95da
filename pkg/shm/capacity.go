package shm

import "math/bits"

const (
	// MinCapacity is the smallest data region a queue will use.
	MinCapacity = 16
	// MaxCapacity is the largest data region a queue will use.
	MaxCapacity = 1 << 40
	// DefaultCapacity is the data region size used by DefaultOpenOptions.
	DefaultCapacity = 1 << 16

	// HeaderSize is the size of the control block in front of the data region.
	HeaderSize = 4096
	// FrameHeaderSize is the length prefix in front of every payload.
	FrameHeaderSize = 4

	// padMarker in a length prefix means the rest of the region up to the
	// wrap point is padding.
	padMarker = 0xFFFFFFFF
)

// IsPowerOfTwo reports whether n is a non-zero power of two.
func IsPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}

// RoundPowerOfTwo returns the smallest power of two that is >= n and >=
// MinCapacity. Zero rounds to MinCapacity. It returns 0 when the result does
// not fit in 64 bits.
//
// The same rounding is applied when creating a segment and when checking the
// expected size of an attached one.
func RoundPowerOfTwo(n uint64) uint64 {
	if n <= MinCapacity {
		return MinCapacity
	}
	if IsPowerOfTwo(n) {
		return n
	}
	shift := bits.Len64(n)
	if shift >= 64 {
		return 0
	}
	return 1 << shift
}

// SegmentSize returns the number of bytes a segment needs for a data region
// of capacity bytes.
func SegmentSize(capacity uint64) uint64 {
	return HeaderSize + capacity
}

// maxMessageSize returns the largest payload a queue of capacity bytes
// accepts.
//
// Payloads are never split at the wrap point, so a frame may need up to its
// own size of padding in front of it. Limiting frames to half the capacity
// keeps every accepted frame placeable in an empty queue from any cursor.
func maxMessageSize(capacity uint64) uint64 {
	limit := capacity/2 - FrameHeaderSize
	if limit >= padMarker {
		limit = padMarker - 1
	}
	return limit
}
