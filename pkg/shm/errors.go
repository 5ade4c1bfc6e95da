package shm

import "errors"

// Sentinel errors returned by queue operations.
//
// Callers should use [errors.Is] to check error kinds:
//
//	if errors.Is(err, shm.ErrQueueFull) {
//	    // retry later
//	}
var (
	// ErrSegment indicates the shared memory segment could not be created,
	// opened, mapped or unmapped. The underlying OS error is wrapped too.
	//
	// The handle is unusable afterwards.
	ErrSegment = errors.New("shm: segment error")

	// ErrInvalidCapacity indicates a requested or stored capacity is zero,
	// not a power of two, out of range, or differs from the expected one.
	//
	// The handle is unusable afterwards.
	ErrInvalidCapacity = errors.New("shm: invalid capacity")

	// ErrNotReady indicates the segment exists but its creator has not
	// finished initializing it. Always wrapped together with
	// [ErrInvalidCapacity] or [ErrSegment].
	//
	// Recovery: retry the attach after a short delay.
	ErrNotReady = errors.New("shm: segment not initialized")

	// ErrQueueFull indicates there is not enough free space for the frame
	// at this instant.
	//
	// Recovery: retry after the consumer made progress.
	ErrQueueFull = errors.New("shm: queue full")

	// ErrQueueEmpty indicates there is no committed message to read.
	//
	// Recovery: retry after the producer made progress.
	ErrQueueEmpty = errors.New("shm: queue empty")

	// ErrMessageTooLarge indicates the payload can never fit, even in an
	// empty queue. See [Queue.MaxMessageSize].
	ErrMessageTooLarge = errors.New("shm: message too large")

	// ErrBufferTooSmall indicates the caller's buffer is shorter than the
	// next message. The message is left in the queue.
	ErrBufferTooSmall = errors.New("shm: buffer too small")

	// ErrMisuse indicates a commit with a stale, foreign or already committed
	// token.
	//
	// This is a programming error and must not be retried.
	ErrMisuse = errors.New("shm: misuse")

	// ErrIncompatible indicates the segment was written by a different
	// format (magic, version or header size), or the CPU cannot share the
	// layout (not 64-bit little-endian).
	ErrIncompatible = errors.New("shm: incompatible")

	// ErrCorrupt indicates a frame length that is inconsistent with the
	// cursors. The peer process wrote garbage or the segment was damaged.
	ErrCorrupt = errors.New("shm: corrupt")

	// ErrClosed indicates the handle has already been unmapped.
	//
	// This is a programming error.
	ErrClosed = errors.New("shm: closed")

	// ErrInvalidInput indicates invalid arguments or options.
	//
	// This is a programming error.
	ErrInvalidInput = errors.New("shm: invalid input")

	// ErrRoleClaimed indicates the producer or consumer side of a handle was
	// already handed out.
	ErrRoleClaimed = errors.New("shm: role already claimed")
)
