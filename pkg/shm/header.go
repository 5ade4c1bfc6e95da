package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	internalshm "github.com/srediag/spsc-shm/internal/shm"
)

// Header layout. All integers are little-endian; head, tail and state are
// only accessed atomically.
const (
	offMagic      = 0x000
	offVersion    = 0x008
	offHeaderSize = 0x00C
	offCapacity   = 0x010
	offState      = 0x018
	offFlags      = 0x01C
	offHead       = 0x080
	offTail       = 0x100

	formatVersion = 1

	stateUninitialized = 0
	stateReady         = 1
)

var magic = [8]byte{'S', 'P', 'S', 'C', 'S', 'H', 'M', 0}

// isLittleEndian is true if the CPU uses little-endian byte order. The
// cursors are accessed with native atomics, so the byte order must match
// the one written by encoding/binary.
var isLittleEndian = func() bool {
	var x uint32 = 0x04030201

	return *(*byte)(unsafe.Pointer(&x)) == 0x01
}()

// is64Bit is true if the architecture has 64-bit pointers. Required for
// lock-free 64-bit atomics shared across processes.
var is64Bit = unsafe.Sizeof(uintptr(0)) >= 8

// header is a view over the control block of a mapped segment.
type header struct {
	mem   []byte
	state *atomic.Uint32
	head  *atomic.Uint64
	tail  *atomic.Uint64
}

func mapHeader(mem []byte) (*header, error) {
	if len(mem) < HeaderSize {
		return nil, fmt.Errorf("%w: segment of %d bytes is smaller than the %d byte header",
			ErrSegment, len(mem), HeaderSize)
	}
	mem = mem[:HeaderSize:HeaderSize]
	state, err := internalshm.Uint32At(mem, offState)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegment, err)
	}
	head, err := internalshm.Uint64At(mem, offHead)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegment, err)
	}
	tail, err := internalshm.Uint64At(mem, offTail)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSegment, err)
	}
	return &header{mem: mem, state: state, head: head, tail: tail}, nil
}

// init writes a fresh header. The state is stored last so attachers never
// see a ready header with stale fields.
func (h *header) init(capacity uint64) {
	h.state.Store(stateUninitialized)
	copy(h.mem[offMagic:], magic[:])
	binary.LittleEndian.PutUint32(h.mem[offVersion:], formatVersion)
	binary.LittleEndian.PutUint32(h.mem[offHeaderSize:], HeaderSize)
	binary.LittleEndian.PutUint64(h.mem[offCapacity:], capacity)
	binary.LittleEndian.PutUint32(h.mem[offFlags:], 0)
	h.head.Store(0)
	h.tail.Store(0)
	h.state.Store(stateReady)
}

func (h *header) capacity() uint64 {
	return binary.LittleEndian.Uint64(h.mem[offCapacity:])
}

// validate checks an attached header and returns its capacity. dataLen is
// the number of bytes mapped after the header.
func (h *header) validate(dataLen uint64) (uint64, error) {
	if h.state.Load() != stateReady {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCapacity, ErrNotReady)
	}
	if !bytes.Equal(h.mem[offMagic:offMagic+len(magic)], magic[:]) {
		return 0, fmt.Errorf("bad magic %q: %w", h.mem[offMagic:offMagic+len(magic)], ErrIncompatible)
	}
	if v := binary.LittleEndian.Uint32(h.mem[offVersion:]); v != formatVersion {
		return 0, fmt.Errorf("format version %d, want %d: %w", v, formatVersion, ErrIncompatible)
	}
	if hs := binary.LittleEndian.Uint32(h.mem[offHeaderSize:]); hs != HeaderSize {
		return 0, fmt.Errorf("header size %d, want %d: %w", hs, HeaderSize, ErrIncompatible)
	}
	c := h.capacity()
	if !IsPowerOfTwo(c) || c < MinCapacity || c > MaxCapacity {
		return 0, fmt.Errorf("stored capacity %d: %w", c, ErrInvalidCapacity)
	}
	if c > dataLen {
		return 0, fmt.Errorf("stored capacity %d exceeds the %d mapped data bytes: %w", c, dataLen, ErrInvalidCapacity)
	}
	return c, nil
}
