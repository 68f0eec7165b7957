//go:build !linux

// File: internal/transport/pollmode/pollmode_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux placeholder: the real poll-mode NIC path is Linux-only in this
// build (spec.md §1 excludes NIC driver bindings generally); other
// platforms use the loopback driver for development and tests.

package pollmode

import (
	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/bufferpool"
)

// Driver is unavailable on this platform.
type Driver struct{}

// NewPair always fails on non-Linux builds.
func NewPair(pool *bufferpool.Pool) (a, b *Driver, err error) {
	return nil, nil, api.ErrNotSupported
}

func (d *Driver) Transmit(frame api.Buffer) error            { return api.ErrNotSupported }
func (d *Driver) ReceiveBurst(out []api.Buffer) (int, error) { return 0, api.ErrNotSupported }
func (d *Driver) Close() error                               { return nil }

var _ api.TransportDriver = (*Driver)(nil)
