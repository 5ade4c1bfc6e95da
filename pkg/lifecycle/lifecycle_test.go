//go:build unix

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/spsc-shm/pkg/shm"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) QueueOpened(name string, q *shm.Queue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf("open %s %d", name, q.Cap()))
}

func (o *recordingObserver) QueueClosed(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "close "+name)
}

func openOptions(dir, name string) shm.OpenOptions {
	return shm.OpenOptions{Name: name, Size: 256, Create: true, Dir: dir}
}

func TestManager_OpenCloseState(t *testing.T) {
	dir := t.TempDir()
	obs := &recordingObserver{}
	m := NewManager(WithObserver(obs))
	ctx := context.Background()

	assert.Equal(t, StateUnknown, m.State("a"))

	q, err := m.Open(ctx, openOptions(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, StateOpen, m.State("a"))
	assert.Equal(t, "open", m.State("a").String())

	got, ok := m.Get("a")
	assert.True(t, ok)
	assert.Same(t, q, got)

	_, err = m.Open(ctx, openOptions(dir, "a"))
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	require.NoError(t, m.Close("a"))
	assert.Equal(t, StateClosed, m.State("a"))
	assert.True(t, q.Closed())
	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.ErrorIs(t, m.Close("a"), ErrNotOpen)
	assert.ErrorIs(t, m.Close("never"), ErrNotOpen)

	// reopening attaches to the segment left behind
	q, err = m.Open(ctx, openOptions(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, StateOpen, m.State("a"))
	require.NoError(t, m.Close("a"))

	assert.Equal(t, []string{"open a 256", "close a", "open a 256", "close a"}, obs.events)
}

func TestManager_NamesAndCloseAll(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		_, err := m.Open(ctx, openOptions(dir, name))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, m.Names())

	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.Names())
	for _, name := range []string{"a", "b", "c"} {
		assert.Equal(t, StateClosed, m.State(name))
	}
}

func TestManager_OpenError(t *testing.T) {
	boom := errors.New("boom")
	m := NewManager(WithOpenFunc(func(context.Context, shm.OpenOptions) (*shm.Queue, error) {
		return nil, boom
	}))
	_, err := m.Open(context.Background(), shm.OpenOptions{Name: "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUnknown, m.State("x"))
}

func TestManager_ConcurrentOpen(t *testing.T) {
	dir := t.TempDir()
	m := NewManager()
	ctx := context.Background()

	// create the segment up front so every goroutine attaches
	seed, err := shm.Open(ctx, openOptions(dir, "shared"))
	require.NoError(t, err)
	require.NoError(t, seed.Unmap())

	var wg sync.WaitGroup
	var mu sync.Mutex
	opened, rejected := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Open(ctx, openOptions(dir, "shared"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, ErrAlreadyOpen):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 7, rejected)
	require.NoError(t, m.CloseAll())
}
