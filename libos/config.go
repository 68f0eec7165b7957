// File: libos/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Options is the single configuration surface spec.md §6 enumerates,
// builder-chained the way the teacher's client.Config is constructed.
// Defaults mirror original_source/src/rust/catnip/src/protocols/tcp/
// options.rs: five handshake retries, five general retries.

package libos

import (
	"time"

	"github.com/momentics/quanta-libos/internal/tcp"
)

// Options configures a LibOS instance end to end: TCP tuning, checksum
// offload flags, ARP behavior and the local identity this host presents
// on the wire.
type Options struct {
	MSS                int
	ReceiveWindowSize  int
	HandshakeRetries   int
	HandshakeTimeout   time.Duration
	Retries            int
	TrailingAckDelay   time.Duration
	TCPChecksumOffload bool
	UDPChecksumOffload bool
	DisableARP         bool
	StaticARP          map[[4]byte][6]byte
	LocalIPv4          [4]byte
	LocalMAC           [6]byte
	MTU                int
	JumboFrames        bool
}

// Default returns spec.md §6's configuration knobs at their documented
// defaults. LocalIPv4/LocalMAC are left zero; callers must set them via
// the With* builders before passing Options to New.
func Default() Options {
	return Options{
		MSS:                1460,
		ReceiveWindowSize:  65535,
		HandshakeRetries:   5,
		HandshakeTimeout:   3 * time.Second,
		Retries:            5,
		TrailingAckDelay:   200 * time.Millisecond,
		TCPChecksumOffload: false,
		UDPChecksumOffload: false,
		DisableARP:         false,
		MTU:                1500,
		JumboFrames:        false,
	}
}

func (o Options) WithMSS(mss int) Options                { o.MSS = mss; return o }
func (o Options) WithReceiveWindowSize(n int) Options     { o.ReceiveWindowSize = n; return o }
func (o Options) WithHandshakeRetries(n int) Options      { o.HandshakeRetries = n; return o }
func (o Options) WithHandshakeTimeout(d time.Duration) Options {
	o.HandshakeTimeout = d
	return o
}
func (o Options) WithRetries(n int) Options { o.Retries = n; return o }
func (o Options) WithTrailingAckDelay(d time.Duration) Options {
	o.TrailingAckDelay = d
	return o
}
func (o Options) WithTCPChecksumOffload(on bool) Options { o.TCPChecksumOffload = on; return o }
func (o Options) WithUDPChecksumOffload(on bool) Options { o.UDPChecksumOffload = on; return o }
func (o Options) WithDisableARP(on bool) Options         { o.DisableARP = on; return o }
func (o Options) WithStaticARP(table map[[4]byte][6]byte) Options {
	o.StaticARP = table
	return o
}
func (o Options) WithLocalIPv4(ip [4]byte) Options { o.LocalIPv4 = ip; return o }
func (o Options) WithLocalMAC(mac [6]byte) Options { o.LocalMAC = mac; return o }
func (o Options) WithMTU(mtu int) Options          { o.MTU = mtu; return o }
func (o Options) WithJumboFrames(on bool) Options  { o.JumboFrames = on; return o }

// tcpOptions projects the subset of Options the TCP engine consumes per
// connection into internal/tcp's own Options type.
func (o Options) tcpOptions() tcp.Options {
	opts := tcp.DefaultOptions().
		WithAdvertisedMSS(o.MSS).
		WithHandshakeRetries(o.HandshakeRetries).
		WithHandshakeTimeout(o.HandshakeTimeout).
		WithReceiveWindowSize(o.ReceiveWindowSize).
		WithRetries(o.Retries).
		WithTrailingAckDelay(o.TrailingAckDelay)
	opts.ChecksumOffload = o.TCPChecksumOffload
	return opts
}
