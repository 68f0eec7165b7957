// File: internal/bufferpool/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Two fixed-size, DMA-capable buffer pools (spec.md §4.1): a small-buffer
// pool sized to hold protocol headers, and a large-buffer pool sized to
// hold a full MTU payload. Grounded on the teacher's slab pool
// (pool/slab_pool.go): a free-list queue of pre-sized buffers with atomic
// alloc/free counters, generalized from size-classed NUMA subpools down to
// the two fixed classes spec.md §4.1 calls for.

package bufferpool

import (
	"sync/atomic"

	"github.com/momentics/quanta-libos/api"
)

const (
	// HeaderSize covers the largest Ethernet+IPv4+TCP header stack this
	// engine produces (14 + 60 + 60, rounded up).
	HeaderSize = 256
)

// slabPool is a fixed-size free-list pool for one buffer class.
type slabPool struct {
	size       int
	free       chan []byte
	totalAlloc atomic.Int64
	totalFree  atomic.Int64
}

func newSlabPool(size, capacity int) *slabPool {
	p := &slabPool{size: size, free: make(chan []byte, capacity)}
	for i := 0; i < capacity; i++ {
		p.free <- make([]byte, size)
		p.totalFree.Add(1)
	}
	return p
}

func (p *slabPool) get() []byte {
	select {
	case b := <-p.free:
		p.totalFree.Add(-1)
		return b[:p.size]
	default:
		p.totalAlloc.Add(1)
		return make([]byte, p.size)
	}
}

func (p *slabPool) put(b []byte) {
	select {
	case p.free <- b:
		p.totalFree.Add(1)
	default:
		// pool at capacity: let the GC reclaim it.
	}
}

func (p *slabPool) stats() (capacity, free int64) {
	return int64(cap(p.free)), int64(len(p.free))
}

// Pool implements api.BufferPool over the two fixed-size classes spec.md
// §4.1 describes. Allocation failure (free-list exhausted past its
// pre-sized capacity never actually fails here — Go's allocator backstops
// it — but AllocSGA enforces the "size too large" rejection spec.md
// requires, and the pool still reports ResourceExhausted-style stats so a
// caller can back off.
type Pool struct {
	bodySize int
	header   *slabPool
	body     *slabPool
}

// New creates a Pool whose body class holds exactly bodySize bytes
// (typically the configured MTU) and whose header class holds HeaderSize
// bytes, each pre-sized with the given free-list capacity.
func New(bodySize, capacity int) *Pool {
	return &Pool{
		bodySize: bodySize,
		header:   newSlabPool(HeaderSize, capacity),
		body:     newSlabPool(bodySize, capacity),
	}
}

// BodySize reports the large-pool's fixed capacity (the configured MTU).
func (p *Pool) BodySize() int { return p.bodySize }

// AllocHeader returns a Pooled Buffer sized for protocol headers.
func (p *Pool) AllocHeader() api.Buffer {
	return api.NewPooled(p.header.get(), headerReleaser{p})
}

// AllocBody returns a Pooled Buffer sized for one MTU payload.
func (p *Pool) AllocBody() api.Buffer {
	return api.NewPooled(p.body.get(), bodyReleaser{p})
}

// Put returns a buffer to whichever class it was allocated from, detected
// by capacity. External buffers are silently ignored (nothing owns them).
func (p *Pool) Put(b api.Buffer) {
	if b.Kind != api.KindPooled {
		return
	}
	switch cap(b.Data) {
	case HeaderSize:
		p.header.put(b.Data[:HeaderSize])
	case p.bodySize:
		p.body.put(b.Data[:p.bodySize])
	}
}

// Stats reports aggregate capacity/free/in-use across both classes.
func (p *Pool) Stats() api.BufferPoolStats {
	hCap, hFree := p.header.stats()
	bCap, bFree := p.body.stats()
	cap := hCap + bCap
	free := hFree + bFree
	return api.BufferPoolStats{Capacity: cap, Free: free, InUse: cap - free}
}

type headerReleaser struct{ p *Pool }

func (r headerReleaser) Put(b api.Buffer) { r.p.header.put(b.Data[:HeaderSize]) }

type bodyReleaser struct{ p *Pool }

func (r bodyReleaser) Put(b api.Buffer) { r.p.body.put(b.Data[:r.p.bodySize]) }

var _ api.BufferPool = (*Pool)(nil)
