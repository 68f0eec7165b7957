//go:build linux

// File: internal/transport/pollmode/pollmode_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll-mode transport driver over a non-blocking AF_UNIX datagram socket
// pair, standing in for a real poll-mode NIC ring. Grounded on the
// teacher's transport_linux.go (non-blocking unix.Socket + unix.Sendmsg
// style zero-copy batch I/O); generalized from a single TCP client socket
// into a symmetric frame-in/frame-out pair driving the IP/TCP engine.

package pollmode

import (
	"sync"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/bufferpool"
	"golang.org/x/sys/unix"
)

const maxFrame = 65536

// Driver implements api.TransportDriver over a non-blocking unix datagram
// socket. Transmit never blocks (EAGAIN is reported as
// ErrResourceExhausted); ReceiveBurst drains whatever is already queued.
type Driver struct {
	mu     sync.Mutex
	fd     int
	pool   *bufferpool.Pool
	closed bool
}

// NewPair creates two Drivers connected to each other, e.g. for a two-host
// test harness running in one process.
func NewPair(pool *bufferpool.Pool) (a, b *Driver, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, nil, err
	}
	return &Driver{fd: fds[0], pool: pool}, &Driver{fd: fds[1], pool: pool}, nil
}

// Transmit enqueues one frame for send. Per spec.md §4.1's failure
// semantics, a transient EAGAIN is reported as a retriable resource error.
func (d *Driver) Transmit(frame api.Buffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return api.ErrBrokenPipe
	}
	buf := make([]byte, 0, frame.Len())
	for cur := &frame; cur != nil; cur = cur.Next {
		buf = append(buf, cur.Data...)
	}
	if err := unix.Send(d.fd, buf, unix.MSG_DONTWAIT); err != nil {
		if err == unix.EAGAIN {
			return api.ErrResourceExhausted
		}
		return api.NewError(api.ErrCodeInternal, err.Error())
	}
	return nil
}

// ReceiveBurst fills up to len(out) frames from whatever is already
// queued on the socket; never blocks.
func (d *Driver) ReceiveBurst(out []api.Buffer) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, api.ErrBrokenPipe
	}
	n := 0
	for n < len(out) {
		body := d.pool.AllocBody()
		raw := body.Data
		if len(raw) > maxFrame {
			raw = raw[:maxFrame]
		}
		rn, _, err := unix.Recvfrom(d.fd, raw, unix.MSG_DONTWAIT)
		if err != nil {
			body.Release()
			if err == unix.EAGAIN {
				break
			}
			return n, api.NewError(api.ErrCodeInternal, err.Error())
		}
		out[n] = body.Slice(0, rn)
		n++
	}
	return n, nil
}

// Close releases the socket.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return unix.Close(d.fd)
}

var _ api.TransportDriver = (*Driver)(nil)
