//go:build unix

package shm

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_TwoMappings(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	creator, err := Open(ctx, OpenOptions{Name: "pair", Size: 1000, Create: true, Dir: dir})
	require.NoError(t, err)
	defer creator.Unmap()
	assert.Equal(t, "pair", creator.Name())
	assert.Equal(t, uint64(1024), creator.Cap())

	st, err := os.Stat(filepath.Join(dir, "pair"))
	require.NoError(t, err)
	assert.Equal(t, int64(SegmentSize(1024)), st.Size())

	client, err := Open(ctx, OpenOptions{Name: "pair", Dir: dir})
	require.NoError(t, err)
	defer client.Unmap()
	assert.Equal(t, uint64(1024), client.Cap())

	require.NoError(t, creator.Produce([]byte("it's a test\x00")))
	buf := make([]byte, 32)
	n, err := client.Consume(buf)
	require.NoError(t, err)
	assert.Equal(t, "it's a test\x00", string(buf[:n]))
	assert.True(t, creator.IsEmpty())

	info, err := ReadSegmentInfo(SegmentPath(dir, "pair"))
	require.NoError(t, err)
	assert.True(t, info.MagicOK)
	assert.True(t, info.Ready)
	assert.Equal(t, uint32(formatVersion), info.Version)
	assert.Equal(t, uint64(1024), info.Capacity)
	assert.Equal(t, uint64(16), info.Head)
	assert.Equal(t, uint64(16), info.Tail)
	assert.Equal(t, uint64(0), info.Used())

	DebugSegment(SegmentPath(dir, "pair"))
}

func TestOpen_CreateKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(ctx, OpenOptions{Name: "q", Size: 64, Create: true, Dir: dir})
	require.NoError(t, err)
	defer first.Unmap()
	require.NoError(t, first.Produce([]byte("kept")))

	second, err := Open(ctx, OpenOptions{Name: "q", Size: 64, Create: true, Dir: dir})
	require.NoError(t, err)
	defer second.Unmap()
	out, err := second.ConsumeAppend(nil)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(out))

	_, err = Open(ctx, OpenOptions{Name: "q", Size: 128, Create: true, Dir: dir})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	_, err := Open(ctx, OpenOptions{Name: "missing", Dir: dir})
	assert.ErrorIs(t, err, ErrSegment)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "got %v", err)

	_, err = Open(ctx, OpenOptions{Dir: dir})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Open(ctx, OpenOptions{Name: "a/b", Dir: dir})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Open(ctx, OpenOptions{Name: "huge", Size: MaxCapacity + 1, Create: true, Dir: dir})
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), nil, 0600))
	_, err = Open(ctx, OpenOptions{Name: "empty", Dir: dir})
	assert.ErrorIs(t, err, ErrSegment)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "zeros"), make([]byte, SegmentSize(64)), 0600))
	_, err = Open(ctx, OpenOptions{Name: "zeros", Dir: dir})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	q, err := Open(ctx, OpenOptions{Name: "gone", Size: 64, Create: true, Dir: dir})
	require.NoError(t, err)
	require.NoError(t, Remove(dir, "gone"))
	require.NoError(t, Remove(dir, "gone"))

	// the mapping outlives the file
	require.NoError(t, q.Produce([]byte("still here")))
	out, err := q.ConsumeAppend(nil)
	require.NoError(t, err)
	assert.Equal(t, "still here", string(out))
	require.NoError(t, q.Unmap())

	_, err = Open(ctx, OpenOptions{Name: "gone", Dir: dir})
	assert.ErrorIs(t, err, ErrSegment)
}

type countingProvider struct {
	DevShm
	maps int
}

func (p *countingProvider) Map(ctx context.Context, name string, size int, create bool) (Segment, bool, error) {
	p.maps++
	return p.DevShm.Map(ctx, name, size, create)
}

func TestOpen_CustomProvider(t *testing.T) {
	p := &countingProvider{DevShm: DevShm{Dir: t.TempDir()}}
	opts := DefaultOpenOptions()
	opts.Name = "custom"
	opts.Provider = p

	q, err := Open(context.Background(), opts)
	require.NoError(t, err)
	defer q.Unmap()
	assert.Equal(t, 1, p.maps)
	assert.Equal(t, uint64(DefaultCapacity), q.Cap())
}

func TestReadSegmentInfo_Missing(t *testing.T) {
	_, err := ReadSegmentInfo(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
