// Package shm contains platform-specific helpers that create, map and remove
// the shared memory segments backing a queue.
package shm

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/srediag/spsc-shm/internal/logger"
)

var internalLogger = logger.New("shm segment", nil)

// ErrUnsupported is returned by the mapping functions on platforms without a
// shared memory implementation.
var ErrUnsupported = errors.New("shared memory segments are not supported on this platform")

// ErrNotSized is returned when attaching to a file whose creator has not
// truncated it to its final size yet. Attachers may retry.
var ErrNotSized = errors.New("segment file is not sized yet")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	// Path is the backing file, empty for heap regions.
	Path string
	// Created is true when this call created the backing file.
	Created bool

	heap bool
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name string
	// Dir holds the backing files, DefaultDir() when empty.
	Dir string
	// Size is only used when the segment gets created. Attaching maps the
	// whole existing file.
	Size   int
	Create bool
	// Mode is the permission of a created file, 0600 when zero.
	Mode uint32
}

func (o MapOptions) validate() error {
	if o.Name == "" {
		return errors.New("segment name is empty")
	}
	if strings.ContainsRune(o.Name, '/') || o.Name == "." || o.Name == ".." {
		return fmt.Errorf("segment name %q must be a single path element", o.Name)
	}
	if o.Create && o.Size <= 0 {
		return fmt.Errorf("segment size %d must be positive", o.Size)
	}
	return nil
}

// NewHeapRegion returns a process-local region of size bytes. The backing
// array is allocated as uint64 words so the region is 8-byte aligned, which
// the atomic cursor views require.
func NewHeapRegion(size int) (*MappedRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("heap region size %d must be positive", size)
	}
	words := make([]uint64, (size+7)/8)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	return &MappedRegion{Addr: mem, Created: true, heap: true}, nil
}
