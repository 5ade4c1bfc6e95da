package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/heptiolabs/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srediag/spsc-shm/pkg/shm"
)

func newHeapQueue(t *testing.T, name string, size uint64) *shm.Queue {
	t.Helper()
	seg, err := shm.NewHeapSegment(int(shm.SegmentSize(size)))
	require.NoError(t, err)
	q, err := shm.NewQueue(seg, size, true, shm.WithName(name))
	require.NoError(t, err)
	return q
}

func status(h http.Handler, path string) int {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestChecker(t *testing.T) {
	q := newHeapQueue(t, "orders", 16)
	c := NewChecker(q)

	assert.NoError(t, c.Liveness())
	assert.NoError(t, c.Readiness())

	require.NoError(t, q.Produce([]byte("aaaa")))
	require.NoError(t, q.Produce([]byte("bbbb")))
	assert.True(t, q.IsFull())
	assert.NoError(t, c.Liveness())
	assert.ErrorContains(t, c.Readiness(), "full")

	require.NoError(t, q.Unmap())
	assert.ErrorContains(t, c.Liveness(), "unmapped")
	assert.Error(t, c.Readiness())
}

func TestRegister(t *testing.T) {
	q := newHeapQueue(t, "events", 16)
	h := healthcheck.NewHandler()
	Register(h, NewChecker(q))

	assert.Equal(t, http.StatusOK, status(h, "/live"))
	assert.Equal(t, http.StatusOK, status(h, "/ready"))

	require.NoError(t, q.Produce([]byte("aaaa")))
	require.NoError(t, q.Produce([]byte("bbbb")))
	assert.Equal(t, http.StatusOK, status(h, "/live"))
	assert.Equal(t, http.StatusServiceUnavailable, status(h, "/ready"))

	require.NoError(t, q.Unmap())
	assert.Equal(t, http.StatusServiceUnavailable, status(h, "/live"))
}
