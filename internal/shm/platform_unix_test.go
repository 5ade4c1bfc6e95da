//go:build unix

package shm

import (
	"context"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"unsafe"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRegion_CreateAndAttach(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	r1, err := MapRegion(ctx, MapOptions{Name: "q1", Dir: dir, Size: 8192, Create: true})
	require.NoError(t, err)
	assert.True(t, r1.Created)
	assert.Equal(t, 8192, len(r1.Addr))
	assert.Equal(t, filepath.Join(dir, "q1"), r1.Path)

	// existing file is attached even when create is set
	r2, err := MapRegion(ctx, MapOptions{Name: "q1", Dir: dir, Size: 4096, Create: true})
	require.NoError(t, err)
	assert.False(t, r2.Created)
	assert.Equal(t, 8192, len(r2.Addr))

	r1.Addr[100] = 42
	assert.Equal(t, byte(42), r2.Addr[100])

	assert.NoError(t, UnmapRegion(ctx, r1))
	assert.Nil(t, r1.Addr)
	assert.NoError(t, UnmapRegion(ctx, r1))
	assert.NoError(t, UnmapRegion(ctx, r2))

	assert.NoError(t, RemoveRegion(dir, "q1"))
	assert.NoError(t, RemoveRegion(dir, "q1"))
	_, err = os.Stat(filepath.Join(dir, "q1"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMapRegion_AttachMissing(t *testing.T) {
	_, err := MapRegion(context.Background(), MapOptions{Name: "missing", Dir: t.TempDir()})
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)
}

func TestMapRegion_NotSized(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), nil, 0600))

	_, err := MapRegion(context.Background(), MapOptions{Name: "empty", Dir: dir})
	assert.True(t, errors.Is(err, ErrNotSized), "got %v", err)
}

func TestMapRegion_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	for _, opts := range []MapOptions{
		{},
		{Name: "a/b"},
		{Name: ".."},
		{Name: "ok", Create: true},
		{Name: "ok", Create: true, Size: -1},
	} {
		_, err := MapRegion(ctx, opts)
		assert.Error(t, err, "%+v", opts)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := MapRegion(cancelled, MapOptions{Name: "ok", Dir: t.TempDir(), Size: 64, Create: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewHeapRegion(t *testing.T) {
	r, err := NewHeapRegion(4099)
	require.NoError(t, err)
	assert.Equal(t, 4099, len(r.Addr))
	assert.Zero(t, uintptr(unsafe.Pointer(&r.Addr[0]))%8)
	assert.True(t, r.Created)
	assert.NoError(t, UnmapRegion(context.Background(), r))

	_, err = NewHeapRegion(0)
	assert.Error(t, err)
}

func TestAtomicViews(t *testing.T) {
	r, err := NewHeapRegion(64)
	require.NoError(t, err)

	u64, err := Uint64At(r.Addr, 8)
	require.NoError(t, err)
	u64.Store(0x0102030405060708)
	assert.Equal(t, byte(0x08), r.Addr[8])

	u32, err := Uint32At(r.Addr, 4)
	require.NoError(t, err)
	u32.Store(7)
	assert.Equal(t, uint32(7), u32.Load())

	_, err = Uint64At(r.Addr, 4)
	assert.Error(t, err)
	_, err = Uint64At(r.Addr, 60)
	assert.Error(t, err)
	_, err = Uint32At(r.Addr, 2)
	assert.Error(t, err)
	_, err = Uint32At(r.Addr, -4)
	assert.Error(t, err)
}

func TestCanCreateOnDevShm(t *testing.T) {
	switch runtime.GOOS {
	case "linux":
		//just on /dev/shm, other always return true
		assert.Equal(t, true, canCreateOnDevShm(math.MaxUint64, "sdffafds"))
		stat, err := disk.Usage("/dev/shm")
		if err != nil {
			t.Skipf("/dev/shm unavailable: %v", err)
		}
		assert.Equal(t, true, canCreateOnDevShm(stat.Free, "/dev/shm/xxx"))
		assert.Equal(t, false, canCreateOnDevShm(math.MaxUint64, "/dev/shm/yyy"))
	case "darwin":
		//always return true
		assert.Equal(t, true, canCreateOnDevShm(33333, "sdffafds"))
	}
}
