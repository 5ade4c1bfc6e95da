package shm

import (
	"context"
	"errors"
	"fmt"

	internalshm "github.com/srediag/spsc-shm/internal/shm"
)

// Segment is a mapped memory region a queue lives in.
//
// Bytes must return the same 8-byte aligned slice on every call until Close.
// On create the region must be zero-filled and at least SegmentSize(capacity)
// bytes long.
type Segment interface {
	Bytes() []byte
	Close() error
}

// SegmentProvider creates or opens named segments.
//
// Map attaches to an existing segment called name, or creates one of size
// bytes when it does not exist and create is set. created reports which of
// the two happened. Attaching maps the whole existing segment and ignores
// size.
type SegmentProvider interface {
	Map(ctx context.Context, name string, size int, create bool) (seg Segment, created bool, err error)
}

// DevShm is the default SegmentProvider. Segments are files in Dir, which
// defaults to /dev/shm on Linux.
type DevShm struct {
	Dir string
	// Mode is the permission of created files, 0600 when zero.
	Mode uint32
}

// Map implements SegmentProvider.
func (p DevShm) Map(ctx context.Context, name string, size int, create bool) (Segment, bool, error) {
	region, err := internalshm.MapRegion(ctx, internalshm.MapOptions{
		Name:   name,
		Dir:    p.Dir,
		Size:   size,
		Create: create,
		Mode:   p.Mode,
	})
	if err != nil {
		if errors.Is(err, internalshm.ErrNotSized) {
			return nil, false, fmt.Errorf("%w: %w: %w", ErrSegment, ErrNotReady, err)
		}
		return nil, false, fmt.Errorf("%w: %w", ErrSegment, err)
	}
	return &regionSegment{region: region}, region.Created, nil
}

// Remove unlinks the named segment file from dir, /dev/shm when dir is
// empty. Processes that still map it keep working; the memory is released
// once the last one unmaps. Removing a missing segment is not an error.
func Remove(dir, name string) error {
	if err := internalshm.RemoveRegion(dir, name); err != nil {
		return fmt.Errorf("%w: %w", ErrSegment, err)
	}
	return nil
}

// SegmentPath returns the file backing the named segment in dir.
func SegmentPath(dir, name string) string {
	return internalshm.SegmentPath(dir, name)
}

// NewHeapSegment returns a zeroed, process-local segment of size bytes for
// queues shared between goroutines.
func NewHeapSegment(size int) (Segment, error) {
	region, err := internalshm.NewHeapRegion(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return &regionSegment{region: region}, nil
}

type regionSegment struct {
	region *internalshm.MappedRegion
}

func (s *regionSegment) Bytes() []byte {
	return s.region.Addr
}

func (s *regionSegment) Close() error {
	return internalshm.UnmapRegion(context.Background(), s.region)
}
