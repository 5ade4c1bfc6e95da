//go:build windows

package shm

import (
	"context"
	"os"
	"path/filepath"
)

// DefaultDir returns the temp dir, kept for API parity with Unix.
func DefaultDir() string {
	return os.TempDir()
}

// SegmentPath returns the backing file of the named segment.
func SegmentPath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, name)
}

// MapRegion maps or creates a shared memory region (Windows implementation).
// TODO: implement using CreateFileMapping and MapViewOfFile.
func MapRegion(_ context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

// UnmapRegion releases heap regions; mapped regions cannot exist on Windows yet.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if !region.heap {
		return ErrUnsupported
	}
	region.Addr = nil
	return nil
}

// RemoveRegion is not supported on Windows yet.
func RemoveRegion(_, _ string) error {
	return ErrUnsupported
}
