// File: api/sga.go
// Package api: scatter-gather arrays exposed across the queue-layer boundary.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// PoolCookie identifies the allocator that owns an SGA's segments, so that
// free_sga routes back to the correct pool. CookieExternal marks bytes the
// SGA references but does not own.
type PoolCookie int32

const (
	CookieExternal PoolCookie = -1
)

// SGASegment is one contiguous (base, length) range within an SGA.
type SGASegment struct {
	Base []byte
}

// ScatterGather is a small ordered sequence of segments plus a cookie
// identifying the owning buffer pool (or CookieExternal).
//
// Round-trip law: pool -> sga -> pool yields the same byte content; Free
// must be called exactly once against the allocator identified by Cookie.
type ScatterGather struct {
	Segments []SGASegment
	Cookie   PoolCookie
	// buf retains the underlying Buffer chain so refcounts stay correct
	// across the user-visible SGA boundary.
	buf *Buffer
}

// TotalLen sums the length of every segment.
func (s ScatterGather) TotalLen() int {
	n := 0
	for _, seg := range s.Segments {
		n += len(seg.Base)
	}
	return n
}

// Bytes copies every segment into one contiguous slice. Used by callers that
// need a single []byte view; the zero-copy path instead walks Segments.
func (s ScatterGather) Bytes() []byte {
	out := make([]byte, 0, s.TotalLen())
	for _, seg := range s.Segments {
		out = append(out, seg.Base...)
	}
	return out
}

// NewSGA builds an SGA over buf's chain without copying, recording buf so
// FreeSGA can release the right refcounts later.
func NewSGA(buf Buffer, cookie PoolCookie) ScatterGather {
	segs := make([]SGASegment, 0, 2)
	for cur := &buf; cur != nil; cur = cur.Next {
		if len(cur.Data) > 0 {
			segs = append(segs, SGASegment{Base: cur.Data})
		}
	}
	b := buf
	return ScatterGather{Segments: segs, Cookie: cookie, buf: &b}
}

// Buf returns the Buffer chain backing this SGA, or nil if it was built
// without one (e.g. a bare external byte range).
func (s ScatterGather) Buf() *Buffer { return s.buf }

// FreeSGA releases the SGA's backing buffer chain exactly once.
func FreeSGA(s ScatterGather) {
	if s.buf != nil {
		s.buf.Release()
	}
}
