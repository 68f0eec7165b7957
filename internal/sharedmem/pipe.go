// File: internal/sharedmem/pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipe is the external transport collaborator spec.md §4.6 describes:
// an opaque duplex byte pipe with push/pop. The real backing transport
// is explicitly out of scope (spec.md §1); this package only specifies
// the MAGIC_CONNECT handshake protocol that runs over it, plus an
// in-memory double for tests, grounded on the teacher's tests/fake
// convention of hand-written fakes standing in for unavailable
// backends.

package sharedmem

import "sync"

// Pipe is a non-blocking, opaque duplex byte stream.
type Pipe interface {
	// Push appends data to the pipe's outbound side.
	Push(data []byte) error
	// Pop removes up to maxBytes from the inbound side (0 means
	// unbounded: drain everything currently buffered). ok is false
	// when nothing is available yet.
	Pop(maxBytes int) (data []byte, ok bool)
	Close() error
}

// MemPipe is an in-memory byte-stream Pipe double. Two MemPipes wired
// via NewMemPipePair deliver what is pushed on one to the other's Pop,
// the same shape as internal/transport/loopback's frame-level pair but
// at the byte-stream level this collaborator operates on.
type MemPipe struct {
	mu     sync.Mutex
	peer   *MemPipe
	buf    []byte
	closed bool
}

// NewMemPipePair returns two MemPipes wired to each other.
func NewMemPipePair() (a, b *MemPipe) {
	a = &MemPipe{}
	b = &MemPipe{}
	a.peer = b
	b.peer = a
	return a, b
}

func (p *MemPipe) Push(data []byte) error {
	p.mu.Lock()
	peer := p.peer
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return errClosedPipe
	}
	peer.mu.Lock()
	peer.buf = append(peer.buf, data...)
	peer.mu.Unlock()
	return nil
}

func (p *MemPipe) Pop(maxBytes int) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil, false
	}
	n := len(p.buf)
	if maxBytes > 0 && n > maxBytes {
		n = maxBytes
	}
	out := make([]byte, n)
	copy(out, p.buf[:n])
	p.buf = p.buf[n:]
	return out, true
}

func (p *MemPipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type pipeError string

func (e pipeError) Error() string { return string(e) }

const errClosedPipe = pipeError("sharedmem: pipe closed")
