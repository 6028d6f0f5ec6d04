package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := LocalEmbedder{}
	v1, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := e.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], Dim)
}

func TestLocalEmbedderDifferentTextsDiffer(t *testing.T) {
	e := LocalEmbedder{}
	v1, _ := e.Embed(context.Background(), []string{"alpha"})
	v2, _ := e.Embed(context.Background(), []string{"beta"})
	assert.NotEqual(t, v1[0], v2[0])
}

func TestLocalEmbedderTokenOverlapRaisesSimilarity(t *testing.T) {
	e := LocalEmbedder{}
	vecs, err := e.Embed(context.Background(), []string{
		"concurrent execution of tasks",
		"concurrent execution model",
		"cooking recipes with butter",
	})
	require.NoError(t, err)

	related := CosineSimilarity(vecs[0], vecs[1])
	unrelated := CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 0.0001)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, CosineSimilarity(a, b), 0.0001)
}

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestGetOrComputeCachesAndCountsAccess(t *testing.T) {
	c := New(t.TempDir(), 10, LocalEmbedder{})
	v1, err := c.GetOrCompute(context.Background(), "hash-a", "content a")
	require.NoError(t, err)
	v2, err := c.GetOrCompute(context.Background(), "hash-a", "content a")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestGetOrComputeEvictsLRUAtCapacity(t *testing.T) {
	c := New(t.TempDir(), 2, LocalEmbedder{})
	ctx := context.Background()
	_, err := c.GetOrCompute(ctx, "a", "content a")
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "b", "content b")
	require.NoError(t, err)
	// touch a so b becomes the least-recently-accessed
	_, err = c.GetOrCompute(ctx, "a", "content a")
	require.NoError(t, err)
	_, err = c.GetOrCompute(ctx, "c", "content c")
	require.NoError(t, err)

	assert.Len(t, c.entries, 2)
	_, hasB := c.entries["b"]
	assert.False(t, hasB, "b should have been evicted as least-recently-accessed")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 10, LocalEmbedder{})
	_, err := c.GetOrCompute(context.Background(), "hash-a", "content a")
	require.NoError(t, err)
	require.NoError(t, c.Save())

	c2 := New(dir, 10, LocalEmbedder{})
	require.NoError(t, c2.Load())
	assert.Len(t, c2.entries, 1)
}

func TestSaveNoopWhenNotDirty(t *testing.T) {
	c := New(t.TempDir(), 10, LocalEmbedder{})
	require.NoError(t, c.Save())
}

func TestSafeTruncateRespectsUTF8Boundary(t *testing.T) {
	s := "héllo" // 'é' is 2 bytes in UTF-8
	got := safeTruncate(s, 2)
	assert.True(t, len(got) <= 2)
}
