// File: internal/tcp/sendpath.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Outbound segment production: MSS clamp, Nagle deferral, congestion
// window gating, and RTO-driven / fast retransmission (spec.md §4.4.2).

package tcp

import "time"

// Enqueue appends application data to the send queue for later
// segmentation by BuildSegments.
func (t *TCB) Enqueue(data []byte) {
	t.SendQueue = append(t.SendQueue, copyBuf(data))
}

func copyBuf(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// BuildSegments drains as much of the send queue as the effective
// window (min(peer-advertised window, congestion window) minus bytes
// already in flight) and Nagle's algorithm allow, returning the
// segments to transmit. Each returned segment is also recorded in
// Unacked for retransmission bookkeeping.
func (t *TCB) BuildSegments(now time.Time) []Segment {
	if t.State != StateEstablished && t.State != StateCloseWait {
		return nil
	}
	mss := t.EffectiveMSS()
	if mss <= 0 {
		mss = DefaultMSS
	}

	effWindow := t.Send.WND
	if t.Congestion.CWnd < effWindow {
		effWindow = t.Congestion.CWnd
	}
	inFlight := t.InFlight()
	if inFlight >= effWindow {
		return nil
	}
	budget := effWindow - inFlight

	var segs []Segment
	for len(t.SendQueue) > 0 && budget > 0 {
		chunk := t.SendQueue[0]

		// Nagle: defer sending the last queued chunk when it is smaller than
		// one MSS while an earlier segment is still unacknowledged
		// (spec.md §4.4.2 "Nagle").
		if t.Opts.NagleEnabled && len(chunk) < mss && len(t.Unacked) > 0 && len(t.SendQueue) == 1 {
			break
		}

		n := len(chunk)
		if n > mss {
			n = mss
		}
		if uint32(n) > budget {
			n = int(budget)
		}
		if n == 0 {
			break
		}
		piece := chunk[:n]
		remainder := chunk[n:]

		seq := t.Send.NXT
		seg := Segment{
			SrcPort: t.Tuple.LocalPort,
			DstPort: t.Tuple.RemotePort,
			Seq:     seq,
			Ack:     t.Recv.NXT,
			Flags:   MakeFlags(false, false, false, true, true, false),
			Window:  uint16(t.Recv.WND),
			Payload: piece,
		}
		segs = append(segs, seg)
		t.Unacked = append(t.Unacked, retransmitEntry{
			Seq:  seq,
			Data: copyBuf(piece),
			Sent: now,
		})
		t.Send.NXT += uint32(n)
		budget -= uint32(n)

		if len(remainder) == 0 {
			t.SendQueue = t.SendQueue[1:]
		} else {
			t.SendQueue[0] = remainder
		}
	}
	return segs
}

// PendingRetransmitDeadline returns the earliest Sent+RTO among
// unacked segments, used to arm the next retransmit timer.
func (t *TCB) PendingRetransmitDeadline() (time.Time, bool) {
	if len(t.Unacked) == 0 {
		return time.Time{}, false
	}
	return t.Unacked[0].Sent.Add(t.RTT.RTO()), true
}

// RetransmitOldest re-sends the oldest unacked segment on an RTO
// firing, applying the congestion-control timeout response and
// exponential RTO backoff (spec.md §4.4.2).
func (t *TCB) RetransmitOldest(now time.Time) (Segment, bool) {
	if len(t.Unacked) == 0 {
		return Segment{}, false
	}
	e := &t.Unacked[0]
	e.Retries++
	t.Congestion.OnTimeout()
	t.RTT.Backoff()
	return Segment{
		SrcPort: t.Tuple.LocalPort,
		DstPort: t.Tuple.RemotePort,
		Seq:     e.Seq,
		Ack:     t.Recv.NXT,
		Flags:   MakeFlags(false, false, false, true, true, false),
		Window:  uint16(t.Recv.WND),
		Payload: e.Data,
	}, true
}

// AckUnacked removes fully-acknowledged entries from the retransmit
// queue given a cumulative ACK number, feeding RTT samples for the
// freshly-acked, never-retransmitted segment (Karn's algorithm: a
// segment that was retransmitted cannot yield a trustworthy sample).
func (t *TCB) AckUnacked(ackNum uint32, now time.Time) (ackedBytes uint32) {
	for len(t.Unacked) > 0 {
		e := t.Unacked[0]
		segLen := uint32(len(e.Data))
		if int32(ackNum-(e.Seq+segLen)) < 0 {
			break
		}
		if e.Retries == 0 {
			t.RTT.Sample(now.Sub(e.Sent))
		}
		ackedBytes += segLen
		t.Unacked = t.Unacked[1:]
	}
	if ackedBytes > 0 {
		t.Congestion.OnAck(ackedBytes)
	}
	return ackedBytes
}
