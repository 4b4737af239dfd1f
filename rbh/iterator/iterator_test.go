package iterator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayAndOne(t *testing.T) {
	ctx := context.Background()
	s := Array([]int{1, 2, 3, 4}, 1, 4)
	got, err := ToSlice(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	strided := Array([]int{1, 2, 3, 4, 5, 6}, 2, 3)
	got, err = ToSlice(ctx, strided)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 5}, got)

	one := One(42)
	got, err = ToSlice(ctx, one)
	require.NoError(t, err)
	assert.Equal(t, []int{42}, got)
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	a := Array([]int{1, 2}, 1, 2)
	b := Array([]int{3, 4, 5}, 1, 3)
	got, err := ToSlice(ctx, Chain(a, b))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestFilter(t *testing.T) {
	ctx := context.Background()
	s := Array([]int{1, 2, 3, 4, 5, 6}, 1, 6)
	even := Filter(s, func(x int) bool { return x%2 == 0 })
	got, err := ToSlice(ctx, even)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)
}

func TestMapAndConstify(t *testing.T) {
	ctx := context.Background()
	s := Array([]int{1, 2, 3}, 1, 3)
	doubled := Map(s, func(x int) (int, error) { return x * 2, nil })
	ro := Constify[int](doubled)
	got, err := ToSlice(ctx, ro)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, got)
}

// TestChunkifySizes mirrors spec.md scenario 6: 10 000 elements chunked by
// 4096 yields chunks of sizes {4096, 4096, 1808}.
func TestChunkifySizes(t *testing.T) {
	ctx := context.Background()
	items := make([]int, 10000)
	for i := range items {
		items[i] = i
	}
	upstream := Array(items, 1, len(items))
	chunks := Chunkify[int](upstream, 4096)

	var sizes []int
	var flat []int
	for chunks.Next(ctx) {
		c := chunks.Item()
		n := 0
		for c.Next(ctx) {
			flat = append(flat, c.Item())
			n++
		}
		require.NoError(t, c.Err())
		sizes = append(sizes, n)
	}
	require.NoError(t, chunks.Err())
	assert.Equal(t, []int{4096, 4096, 1808}, sizes)
	assert.Equal(t, items, flat)
}

// TestChunkifyPartialDrain checks that a chunk whose caller stops early is
// still fully drained once the next chunk is requested, so items are never
// skipped or duplicated across a chunk boundary.
func TestChunkifyPartialDrain(t *testing.T) {
	ctx := context.Background()
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	upstream := Array(items, 1, len(items))
	chunks := Chunkify[int](upstream, 3)

	require.True(t, chunks.Next(ctx))
	first := chunks.Item()
	require.True(t, first.Next(ctx))
	assert.Equal(t, 0, first.Item())
	// Caller stops after one item; the remaining two in this chunk must be
	// silently drained when the next chunk starts.

	require.True(t, chunks.Next(ctx))
	second := chunks.Item()
	got, err := ToSlice(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, got)
}

func TestChunkifyClosePropagates(t *testing.T) {
	ctx := context.Background()
	items := []int{1, 2, 3, 4, 5}
	upstream := Array(items, 1, len(items))
	chunks := Chunkify[int](upstream, 2)

	require.True(t, chunks.Next(ctx))
	c := chunks.Item()
	require.True(t, c.Next(ctx)) // consume one of two

	require.NoError(t, chunks.Close())
}
