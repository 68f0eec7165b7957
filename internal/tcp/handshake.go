// File: internal/tcp/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Active and passive open (spec.md §4.4.1). Active open sends at most
// Options.HandshakeRetries SYNs in total (the initial one included),
// each wait bounded by HandshakeTimeout, and resolves to
// ErrConnectionRefused once exhausted — grounded on original_source's catnip active_open state
// machine's retry-with-timeout loop, re-expressed as explicit state on
// the TCB rather than a future combinator chain.

package tcp

import "time"

// beginActiveOpen initializes a TCB for an outbound connection attempt
// and produces the first SYN to transmit.
func beginActiveOpen(tcb *TCB, iss uint32) Segment {
	tcb.State = StateSynSent
	tcb.Send.ISS = iss
	tcb.Send.UNA = iss
	tcb.Send.NXT = iss + 1
	tcb.HandshakeAttempt = 1
	return Segment{
		SrcPort: tcb.Tuple.LocalPort,
		DstPort: tcb.Tuple.RemotePort,
		Seq:     iss,
		Flags:   MakeFlags(false, true, false, false, false, false),
		Window:  uint16(tcb.Opts.ReceiveWindowSize),
		MSS:     tcb.LocalMSS,
	}
}

// retryActiveOpen produces the next SYN retransmission, or reports
// refusal once HandshakeRetries is exhausted.
func retryActiveOpen(tcb *TCB) (seg Segment, refused bool) {
	if tcb.HandshakeAttempt >= tcb.Opts.HandshakeRetries {
		tcb.State = StateClosed
		return Segment{}, true
	}
	tcb.HandshakeAttempt++
	return Segment{
		SrcPort: tcb.Tuple.LocalPort,
		DstPort: tcb.Tuple.RemotePort,
		Seq:     tcb.Send.ISS,
		Flags:   MakeFlags(false, true, false, false, false, false),
		Window:  uint16(tcb.Opts.ReceiveWindowSize),
		MSS:     tcb.LocalMSS,
	}, false
}

// handleSynAckAsActiveOpener completes the handshake's second leg on
// the connecting side: validate the SYN-ACK, bump SND.UNA, adopt IRS,
// and queue the final ACK.
func handleSynAckAsActiveOpener(tcb *TCB, seg Segment) (ackSeg Segment, ok bool) {
	if !seg.Flags.SYN() || !seg.Flags.ACK() {
		return Segment{}, false
	}
	if seg.Ack != tcb.Send.NXT {
		return Segment{}, false
	}
	tcb.Send.UNA = seg.Ack
	tcb.Recv.IRS = seg.Seq
	tcb.Recv.NXT = seg.Seq + 1
	tcb.Recv.WND = uint32(tcb.Opts.ReceiveWindowSize)
	if seg.MSS > 0 {
		tcb.PeerMSS = seg.MSS
	}
	tcb.State = StateEstablished
	return Segment{
		SrcPort: tcb.Tuple.LocalPort,
		DstPort: tcb.Tuple.RemotePort,
		Seq:     tcb.Send.NXT,
		Ack:     tcb.Recv.NXT,
		Flags:   MakeFlags(false, false, false, false, true, false),
		Window:  uint16(tcb.Opts.ReceiveWindowSize),
	}, true
}

// beginPassiveOpen creates a half-open TCB for an incoming SYN and
// produces the SYN-ACK to send back.
func beginPassiveOpen(tuple FourTuple, opts Options, incoming Segment, iss uint32) (*TCB, Segment) {
	tcb := NewTCB(tuple, opts)
	tcb.State = StateSynReceived
	tcb.Send.ISS = iss
	tcb.Send.UNA = iss
	tcb.Send.NXT = iss + 1
	tcb.Recv.IRS = incoming.Seq
	tcb.Recv.NXT = incoming.Seq + 1
	tcb.Recv.WND = uint32(opts.ReceiveWindowSize)
	if incoming.MSS > 0 {
		tcb.PeerMSS = incoming.MSS
	}
	seg := Segment{
		SrcPort: tuple.LocalPort,
		DstPort: tuple.RemotePort,
		Seq:     iss,
		Ack:     tcb.Recv.NXT,
		Flags:   MakeFlags(false, true, false, false, true, false),
		Window:  uint16(opts.ReceiveWindowSize),
		MSS:     tcb.LocalMSS,
	}
	return tcb, seg
}

// completePassiveOpen validates the final ACK of a passive handshake.
func completePassiveOpen(tcb *TCB, seg Segment) bool {
	if !seg.Flags.ACK() || seg.Ack != tcb.Send.NXT {
		return false
	}
	tcb.Send.UNA = seg.Ack
	tcb.State = StateEstablished
	return true
}

// handshakeDeadline returns when the current SYN attempt should be
// considered timed out, from the wheel's current time.
func handshakeDeadline(now time.Time, opts Options) time.Time {
	return now.Add(opts.HandshakeTimeout)
}
