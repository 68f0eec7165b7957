// File: internal/tcp/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection TCP knobs, builder-chained in the teacher's Config style
// (client/facade.go's Config/DefaultConfig), grounded on
// original_source/src/rust/catnip/src/protocols/tcp/options.rs's
// TcpOptions builder methods.

package tcp

import "time"

const (
	MinMSS     = 88
	MaxMSS     = 65495
	DefaultMSS = 1460

	// Declared constants, not tunables (spec.md §9's open question):
	// the TCP handshake retry budget differs from the shared-memory
	// collaborator's 1024, by design.
	defaultHandshakeRetries = 5
	defaultRetries          = 5
	maxBacklog              = 1024
)

// Options configures one TCP connection's protocol behavior.
type Options struct {
	AdvertisedMSS     int
	HandshakeRetries  int
	HandshakeTimeout  time.Duration
	ReceiveWindowSize int
	Retries           int
	TrailingAckDelay  time.Duration
	ChecksumOffload   bool
	NagleEnabled      bool
}

// DefaultOptions mirrors original_source's TcpOptions::default().
func DefaultOptions() Options {
	return Options{
		AdvertisedMSS:     DefaultMSS,
		HandshakeRetries:  defaultHandshakeRetries,
		HandshakeTimeout:  3 * time.Second,
		ReceiveWindowSize: 64 * 1024,
		Retries:           defaultRetries,
		TrailingAckDelay:  200 * time.Microsecond,
		NagleEnabled:      true,
	}
}

func (o Options) WithAdvertisedMSS(v int) Options {
	if v < MinMSS {
		v = MinMSS
	}
	if v > MaxMSS {
		v = MaxMSS
	}
	o.AdvertisedMSS = v
	return o
}

func (o Options) WithHandshakeRetries(v int) Options {
	if v > 0 {
		o.HandshakeRetries = v
	}
	return o
}

func (o Options) WithHandshakeTimeout(v time.Duration) Options {
	if v > 0 {
		o.HandshakeTimeout = v
	}
	return o
}

func (o Options) WithReceiveWindowSize(v int) Options {
	if v > 0 {
		o.ReceiveWindowSize = v
	}
	return o
}

func (o Options) WithRetries(v int) Options {
	if v > 0 {
		o.Retries = v
	}
	return o
}

func (o Options) WithTrailingAckDelay(v time.Duration) Options {
	o.TrailingAckDelay = v
	return o
}

// clampBacklog applies spec.md §4.4.1's "minimum of 1, capped at the
// platform's SOMAXCONN-equivalent" rule.
func clampBacklog(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > maxBacklog {
		return maxBacklog
	}
	return requested
}
