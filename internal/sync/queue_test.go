package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueLoadPreservesInsertionOrder(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "pending"))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(1000, []byte("first")))
	require.NoError(t, q.Enqueue(2000, []byte("second")))
	require.NoError(t, q.Enqueue(3000, []byte("third")))

	got, err := q.Load()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "first", string(got[0]))
	assert.Equal(t, "second", string(got[1]))
	assert.Equal(t, "third", string(got[2]))
}

func TestQueueEnqueueSameMillisecondDoesNotOverwrite(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "pending"))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(5000, []byte("a")))
	require.NoError(t, q.Enqueue(5000, []byte("b")))

	got, err := q.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestQueueLoadEmptyDirIsEmpty(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "pending"))
	require.NoError(t, err)

	got, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClearPendingEmptiesQueue(t *testing.T) {
	q, err := NewQueue(filepath.Join(t.TempDir(), "pending"))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(1000, []byte("x")))
	require.NoError(t, q.ClearPending())

	got, err := q.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	// The directory is recreated, so enqueueing still works afterwards.
	require.NoError(t, q.Enqueue(2000, []byte("y")))
	got, err = q.Load()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCompressConcatenates(t *testing.T) {
	out := Compress([][]byte{[]byte("ab"), []byte("cd"), []byte("ef")})
	assert.Equal(t, "abcdef", string(out))
}

func TestNeedsFullResync(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	maxOffline := 7 * 24 * time.Hour

	assert.False(t, NeedsFullResync(now, now.Add(-24*time.Hour), maxOffline))
	assert.False(t, NeedsFullResync(now, now.Add(-maxOffline), maxOffline))
	assert.True(t, NeedsFullResync(now, now.Add(-maxOffline-time.Second), maxOffline))
}
