// File: internal/tcp/recvpath.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incoming segment validation, in-order/reassembly delivery, and
// delayed ACK policy (spec.md §4.4.3).

package tcp

import "time"

// AckOutcome describes what RecvSegment learned from processing an
// incoming segment's ACK number, for the caller to decide whether a
// fast-retransmit is due.
type AckOutcome struct {
	AckedBytes     uint32
	Duplicate      bool
	FastRetransmit bool
}

// RecvSegment validates and folds an incoming, already-checksum-
// verified segment into the TCB, delivering in-order bytes to
// RecvQueue and parking out-of-order bytes in the reassembly queue.
// Returns whether a (possibly delayed) ACK is now owed to the peer.
func (t *TCB) RecvSegment(seg Segment, now time.Time) (ack AckOutcome, shouldAck bool) {
	if seg.Flags.RST() {
		t.State = StateClosed
		return AckOutcome{}, false
	}

	if seg.Flags.ACK() {
		if seg.Ack == t.Send.UNA && t.InFlight() > 0 {
			ack.Duplicate = true
			t.DupAcks++
			ack.FastRetransmit = t.Congestion.OnDupAck(t.DupAcks)
		} else if int32(seg.Ack-t.Send.UNA) > 0 {
			t.DupAcks = 0
			acked := t.AckUnacked(seg.Ack, now)
			t.Send.UNA = seg.Ack
			ack.AckedBytes = acked
		}
		if seg.Window != 0 || len(seg.Payload) == 0 {
			t.Send.WND = uint32(seg.Window)
		}
	}

	if len(seg.Payload) == 0 && !seg.Flags.FIN() {
		return ack, false
	}

	relSeq := seg.Seq
	if relSeq == t.Recv.NXT {
		t.RecvQueue = append(t.RecvQueue, seg.Payload...)
		t.Recv.NXT += uint32(len(seg.Payload))
		for {
			data, ok := t.Reassembly.Drain(t.Recv.NXT)
			if !ok {
				break
			}
			t.RecvQueue = append(t.RecvQueue, data...)
			t.Recv.NXT += uint32(len(data))
		}
		if seg.Flags.FIN() {
			t.PeerFIN = true
			t.PeerFINSeq = t.Recv.NXT
			t.Recv.NXT++
		}
		return ack, true
	}

	if int32(relSeq-t.Recv.NXT) > 0 {
		// Out-of-order: park it and demand an immediate duplicate ACK
		// (spec.md §4.4.3's fast-retransmit trigger on the sender side).
		t.Reassembly.Insert(relSeq, seg.Payload)
		return ack, true
	}

	// relSeq < Recv.NXT: fully or partially duplicate; drop silently.
	return ack, true
}

// BuildAck produces the ACK segment to send for the current receive
// state; the caller decides when to actually transmit it (spec.md
// §4.4.3 "delayed ACK"). TrailingAckDelay is not consulted here.
func (t *TCB) BuildAck() Segment {
	return Segment{
		SrcPort: t.Tuple.LocalPort,
		DstPort: t.Tuple.RemotePort,
		Seq:     t.Send.NXT,
		Ack:     t.Recv.NXT,
		Flags:   MakeFlags(false, false, false, false, true, false),
		Window:  uint16(t.Opts.ReceiveWindowSize),
	}
}

// PopAvailable removes up to max bytes of in-order delivered data.
func (t *TCB) PopAvailable(max int) ([]byte, bool) {
	if len(t.RecvQueue) == 0 {
		return nil, t.PeerFIN
	}
	n := len(t.RecvQueue)
	if max > 0 && n > max {
		n = max
	}
	out := t.RecvQueue[:n]
	t.RecvQueue = t.RecvQueue[n:]
	return out, false
}
