//go:build unix

package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/unix"
)

// DefaultDir returns the directory holding segment files: the tmpfs at
// /dev/shm on Linux, the temp dir elsewhere.
func DefaultDir() string {
	if runtime.GOOS == "linux" {
		return "/dev/shm"
	}
	return os.TempDir()
}

// SegmentPath returns the backing file of the named segment.
func SegmentPath(dir, name string) string {
	if dir == "" {
		dir = DefaultDir()
	}
	return filepath.Join(dir, name)
}

// MapRegion maps or creates a shared memory region (Unix implementation).
//
// An existing file is always attached, whatever opts.Create says; the region
// is only created when the file does not exist yet and opts.Create is set.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := opts.Mode
	if mode == 0 {
		mode = 0600
	}
	shmPath := SegmentPath(opts.Dir, opts.Name)

	created := false
	fd, err := unix.Open(shmPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if !errors.Is(err, unix.ENOENT) || !opts.Create {
			return nil, fmt.Errorf("open %s: %w", shmPath, err)
		}
		if !canCreateOnDevShm(uint64(opts.Size), shmPath) {
			return nil, fmt.Errorf("create %s: %d bytes exceed free space: %w", shmPath, opts.Size, unix.ENOSPC)
		}
		fd, err = unix.Open(shmPath, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, mode)
		switch {
		case errors.Is(err, unix.EEXIST):
			// Lost the creation race, attach to the winner's file.
			fd, err = unix.Open(shmPath, unix.O_RDWR|unix.O_CLOEXEC, 0)
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", shmPath, err)
			}
		case err != nil:
			return nil, fmt.Errorf("create %s: %w", shmPath, err)
		default:
			if err := unix.Ftruncate(fd, int64(opts.Size)); err != nil {
				_ = unix.Close(fd)
				_ = unix.Unlink(shmPath)
				return nil, fmt.Errorf("ftruncate: %w", err)
			}
			created = true
		}
	}
	defer func() {
		if cerr := unix.Close(fd); cerr != nil {
			internalLogger.Warnf("close %s fd:%d error: %v", shmPath, fd, cerr)
		}
	}()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size <= 0 {
		return nil, fmt.Errorf("%s: %w", shmPath, ErrNotSized)
	}
	addr, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if created {
			_ = unix.Unlink(shmPath)
		}
		return nil, fmt.Errorf("mmap: %w", err)
	}
	internalLogger.Debugf("mapped %s size:%d created:%v", shmPath, st.Size, created)
	return &MappedRegion{
		Addr:    addr,
		Path:    shmPath,
		Created: created,
	}, nil
}

// UnmapRegion unmaps the shared memory region (Unix implementation). The
// backing file stays in place for other processes.
func UnmapRegion(_ context.Context, region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if region.heap {
		region.Addr = nil
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	return nil
}

// RemoveRegion unlinks the backing file of the named segment. Existing
// mappings stay valid until they are unmapped. A missing file is not an error.
func RemoveRegion(dir, name string) error {
	if err := (MapOptions{Name: name}).validate(); err != nil {
		return err
	}
	shmPath := SegmentPath(dir, name)
	if err := unix.Unlink(shmPath); err != nil && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("unlink %s: %w", shmPath, err)
	}
	return nil
}
