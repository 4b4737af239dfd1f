package iterator

import (
	"context"
	"fmt"
)

// chunk is one inner sequence produced by Chunkify: it pulls from the
// shared upstream up to n times, then reports exhaustion even if upstream
// still has more (the next chunk picks up where this one left off).
//
// The chunker must know, before it can decide whether to yield a chunk at
// all, whether upstream still has an item — so it eagerly pulls that first
// item and hands it to the chunk as a preloaded value the chunk's first
// Next() call replays instead of pulling twice.
type chunk[T any] struct {
	parent    *chunker[T]
	remaining int // pulls still owed to upstream, excluding the preloaded item

	preloadedValid bool
	preloaded      T

	cur  T
	done bool
}

func (c *chunk[T]) Next(ctx context.Context) bool {
	if c.done {
		return false
	}
	if c.preloadedValid {
		c.cur = c.preloaded
		c.preloadedValid = false
		return true
	}
	if c.remaining <= 0 {
		c.done = true
		return false
	}
	if !c.parent.upstream.Next(ctx) {
		c.done = true
		c.parent.err = c.parent.upstream.Err()
		return false
	}
	c.cur = c.parent.upstream.Item()
	c.remaining--
	return true
}

func (c *chunk[T]) Item() T    { return c.cur }
func (c *chunk[T]) Err() error { return c.parent.err }

// Close drains any items this chunk's caller chose not to consume, so the
// next chunk (or the outer chunker) always starts from a clean boundary —
// "inner iterators share the upstream so they must be fully drained in
// order" (spec.md §4.3).
func (c *chunk[T]) Close() error {
	if c.done {
		return nil
	}
	c.preloadedValid = false
	for c.remaining > 0 && c.parent.upstream.Next(context.Background()) {
		c.remaining--
	}
	c.done = true
	return nil
}

// chunker is the outer MutableSeq[Seq[T]] Chunkify returns.
type chunker[T any] struct {
	upstream  Seq[T]
	size      int
	err       error
	cur       Seq[T]
	lastChunk *chunk[T]
	exhausted bool
}

// Chunkify splits upstream into non-overlapping sub-sequences of up to n
// items each.
func Chunkify[T any](upstream Seq[T], n int) MutableSeq[Seq[T]] {
	if n <= 0 {
		panic(fmt.Sprintf("iterator: Chunkify requires n > 0, got %d", n))
	}
	return &chunker[T]{upstream: upstream, size: n}
}

func (c *chunker[T]) Next(ctx context.Context) bool {
	if c.exhausted {
		return false
	}
	if c.lastChunk != nil {
		_ = c.lastChunk.Close()
	}
	if !c.upstream.Next(ctx) {
		c.exhausted = true
		c.err = c.upstream.Err()
		return false
	}
	nc := &chunk[T]{
		parent:         c,
		remaining:      c.size - 1,
		preloadedValid: true,
		preloaded:      c.upstream.Item(),
	}
	c.lastChunk = nc
	c.cur = nc
	return true
}

func (c *chunker[T]) Item() Seq[T]  { return c.cur }
func (c *chunker[T]) Err() error    { return c.err }
func (c *chunker[T]) Set(s Seq[T])  { c.cur = s }

// Close propagates to the upstream sequence, including whatever remains of
// the last (possibly partially-drained) chunk — "Destroy on an outer
// iterator must propagate to all upstreams, including partially-drained
// chunks" (spec.md §4.3).
func (c *chunker[T]) Close() error {
	if c.lastChunk != nil {
		_ = c.lastChunk.Close()
	}
	return c.upstream.Close()
}
