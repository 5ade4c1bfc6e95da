package shm

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Uint64At returns an atomic view of the 8 bytes at off in mem.
//
// Every cross-process cursor goes through this view: Go's sync/atomic
// operations are sequentially consistent, which covers the acquire loads and
// release stores the ring protocol needs. off must be 8-byte aligned relative
// to an 8-byte aligned mem (mmap returns page-aligned memory).
func Uint64At(mem []byte, off int) (*atomic.Uint64, error) {
	if off < 0 || off+8 > len(mem) {
		return nil, fmt.Errorf("uint64 at %d out of range for %d bytes", off, len(mem))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%8 != 0 {
		return nil, fmt.Errorf("uint64 at %d is not 8-byte aligned", off)
	}
	return (*atomic.Uint64)(p), nil
}

// Uint32At returns an atomic view of the 4 bytes at off in mem.
func Uint32At(mem []byte, off int) (*atomic.Uint32, error) {
	if off < 0 || off+4 > len(mem) {
		return nil, fmt.Errorf("uint32 at %d out of range for %d bytes", off, len(mem))
	}
	p := unsafe.Pointer(&mem[off])
	if uintptr(p)%4 != 0 {
		return nil, fmt.Errorf("uint32 at %d is not 4-byte aligned", off)
	}
	return (*atomic.Uint32)(p), nil
}
