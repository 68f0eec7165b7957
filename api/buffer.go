// File: api/buffer.go
// Package api defines the wire-level data model shared by every layer of the
// LibOS: buffers, scatter-gather arrays, queue descriptors/tokens, errors and
// completion records.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// BufferKind distinguishes a pool-owned buffer from one the caller owns.
type BufferKind int

const (
	// KindPooled buffers are backed by a fixed-capacity region in a BufferPool,
	// reference counted and released back to the pool when the last handle drops.
	KindPooled BufferKind = iota
	// KindExternal buffers are an immutable byte range owned by the caller,
	// promoted to shared ownership on entry to the stack.
	KindExternal
)

// Releaser decouples Buffer from any one pool implementation.
type Releaser interface {
	Put(Buffer)
}

// Buffer is a zero-copy, reference-counted memory window. It unifies
// pool-allocated DMA-capable segments with externally-owned byte ranges.
//
// Trimming (Slice) only ever shrinks the window; the underlying region is
// released only when the last handle drops (Release, once refcount hits 0).
// A chained buffer (Next != nil) forms a list of segments, each with exactly
// one predecessor — never a tree.
type Buffer struct {
	Kind  BufferKind
	Data  []byte
	Pool  Releaser
	refs  *int32
	Next  *Buffer
}

// NewExternal wraps a caller-owned byte range as an External buffer.
// The caller must keep the backing array alive until Release is called.
func NewExternal(data []byte) Buffer {
	n := int32(1)
	return Buffer{Kind: KindExternal, Data: data, refs: &n}
}

// NewPooled wraps a pool-owned region as a Pooled buffer with refcount 1.
func NewPooled(data []byte, pool Releaser) Buffer {
	n := int32(1)
	return Buffer{Kind: KindPooled, Data: data, Pool: pool, refs: &n}
}

// Bytes returns the byte slice backing just this segment (head of the chain).
func (b Buffer) Bytes() []byte { return b.Data }

// Retain increments the shared refcount and returns the same logical buffer.
// Used when handing a buffer to a second owner (e.g. clone_sga).
func (b Buffer) Retain() Buffer {
	if b.refs != nil {
		addRef(b.refs, 1)
	}
	return b
}

// Release drops one reference; when the count reaches zero the region is
// returned to its owning pool (no-op for External buffers). Release is
// synchronous and idempotent-safe as long as each Retain is matched once.
func (b Buffer) Release() {
	if b.refs == nil {
		return
	}
	if addRef(b.refs, -1) == 0 && b.Pool != nil {
		b.Pool.Put(b)
	}
	if b.Next != nil {
		b.Next.Release()
	}
}

// Slice trims the window; it can only shrink, never grow, past [0,len(Data)].
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		return Buffer{Kind: b.Kind, Pool: b.Pool, refs: b.refs}
	}
	out := b
	out.Data = b.Data[from:to]
	return out
}

// Chain appends next as this buffer's successor, forming a header+body pair.
func (b Buffer) Chain(next Buffer) Buffer {
	nb := next
	b.Next = &nb
	return b
}

// Len returns the total byte length across the whole chain.
func (b Buffer) Len() int {
	n := len(b.Data)
	if b.Next != nil {
		n += b.Next.Len()
	}
	return n
}

// Capacity returns the capacity of just this segment's backing slice.
func (b Buffer) Capacity() int { return cap(b.Data) }

// BufferPool allocates fixed-size, DMA-capable regions for header and body
// classes and reports utilization.
type BufferPool interface {
	AllocHeader() Buffer
	AllocBody() Buffer
	Put(Buffer)
	Stats() BufferPoolStats
}

// BufferPoolStats summarizes pool usage; capacity == in-use + free.
type BufferPoolStats struct {
	Capacity int64
	InUse    int64
	Free     int64
}

func addRef(p *int32, delta int32) int32 {
	// Only the executor thread ever mutates protocol buffers (spec.md §5),
	// so a plain, non-atomic add is the correct primitive here.
	*p += delta
	return *p
}
