// File: internal/bufferpool/sgabridge.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scatter-Gather Bridge (spec.md §2, §4.1): converts between
// externally-allocated byte ranges and pool buffers without copying when
// possible.

package bufferpool

import "github.com/momentics/quanta-libos/api"

// cookieHeader / cookieBody identify which of this Pool's two classes an
// SGA's bytes came from, so FreeSGA/CloneSGA can route back correctly.
const (
	cookieHeader api.PoolCookie = 1
	cookieBody   api.PoolCookie = 2
)

// AllocSGA returns a single-segment SGA backed by whichever class fits
// size. Sizes larger than one body buffer are rejected — spec.md §4.1
// requires "sizes larger than one body buffer are rejected", not
// chaining, for this allocation entry point.
func (p *Pool) AllocSGA(size int) (api.ScatterGather, *api.Error) {
	switch {
	case size < 0:
		return api.ScatterGather{}, api.ErrInvalidArgument
	case size <= HeaderSize:
		buf := p.AllocHeader().Slice(0, size)
		return api.NewSGA(buf, cookieHeader), nil
	case size <= p.bodySize:
		buf := p.AllocBody().Slice(0, size)
		return api.NewSGA(buf, cookieBody), nil
	default:
		return api.ScatterGather{}, api.ErrResourceExhausted.WithContext("requested", size)
	}
}

// FreeSGA releases an SGA's backing buffer exactly once, per the
// round-trip law in spec.md §3 and §8.
func FreeSGA(s api.ScatterGather) {
	api.FreeSGA(s)
}

// IntoSGA consumes buf and emits an SGA still referring to the same
// region — no copy when buf is Pooled; its cookie then identifies the
// owning pool. An External buffer is copied into a freshly allocated pool
// segment, since no cookie exists yet for caller-owned memory.
func (p *Pool) IntoSGA(buf api.Buffer) api.ScatterGather {
	if buf.Kind == api.KindExternal {
		total := buf.Len()
		var dst api.Buffer
		var cookie api.PoolCookie
		if total <= HeaderSize {
			dst, cookie = p.AllocHeader(), cookieHeader
		} else {
			dst, cookie = p.AllocBody(), cookieBody
		}
		dst = dst.Slice(0, total)
		copyChain(dst.Data, buf)
		return api.NewSGA(dst, cookie)
	}
	cookie := cookieBody
	if cap(buf.Data) == HeaderSize {
		cookie = cookieHeader
	}
	return api.NewSGA(buf, cookie)
}

// CloneSGA takes an SGA received from user code and produces a buffer
// chain suitable for the transmit path. If the cookie identifies one of
// this pool's classes, ownership transfers (refcount incremented);
// otherwise an External buffer is created referencing the user's bytes —
// the caller must keep them alive until FreeSGA.
func (p *Pool) CloneSGA(s api.ScatterGather) api.Buffer {
	if s.Cookie == cookieHeader || s.Cookie == cookieBody {
		if buf := s.Buf(); buf != nil {
			return buf.Retain()
		}
	}
	return api.NewExternal(s.Bytes())
}

func copyChain(dst []byte, src api.Buffer) {
	off := 0
	for cur := &src; cur != nil; cur = cur.Next {
		off += copy(dst[off:], cur.Data)
	}
}
