// File: internal/transport/loopback/loopback.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-memory api.TransportDriver pair for deterministic tests, grounded on
// the teacher's tests/fake package convention (tests/fake/poller.go) of
// hand-written fakes standing in for a real poll-mode backend.

package loopback

import (
	"sync"

	"github.com/momentics/quanta-libos/api"
)

// Driver delivers frames transmitted on its peer to its own ReceiveBurst
// queue and vice versa, with no copying beyond what Transmit already does
// to linearize a chained Buffer.
type Driver struct {
	mu     sync.Mutex
	peer   *Driver
	queue  []api.Buffer
	closed bool
}

// NewPair returns two Drivers wired to each other.
func NewPair() (a, b *Driver) {
	a = &Driver{}
	b = &Driver{}
	a.peer = b
	b.peer = a
	return a, b
}

func (d *Driver) Transmit(frame api.Buffer) error {
	d.mu.Lock()
	closed := d.closed
	peer := d.peer
	d.mu.Unlock()
	if closed {
		return api.ErrBrokenPipe
	}
	linear := make([]byte, 0, frame.Len())
	for cur := &frame; cur != nil; cur = cur.Next {
		linear = append(linear, cur.Data...)
	}
	peer.mu.Lock()
	defer peer.mu.Unlock()
	peer.queue = append(peer.queue, api.NewExternal(linear))
	return nil
}

func (d *Driver) ReceiveBurst(out []api.Buffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, api.ErrBrokenPipe
	}
	n := 0
	for n < len(out) && len(d.queue) > 0 {
		out[n] = d.queue[0]
		d.queue = d.queue[1:]
		n++
	}
	return n, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

var _ api.TransportDriver = (*Driver)(nil)
