// File: internal/tcp/teardown.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FIN/RST/TIME_WAIT teardown paths (spec.md §4.4.4).

package tcp

import "time"

// BeginGracefulClose transitions an Established/CloseWait connection
// toward shutdown, producing the FIN segment to send.
func (t *TCB) BeginGracefulClose() (Segment, bool) {
	t.RequestClose()
	switch t.State {
	case StateEstablished:
		t.State = StateFinWait1
	case StateCloseWait:
		t.State = StateLastAck
	default:
		return Segment{}, false
	}
	t.FINSeq = t.Send.NXT
	t.FINSent = true
	seg := Segment{
		SrcPort: t.Tuple.LocalPort,
		DstPort: t.Tuple.RemotePort,
		Seq:     t.Send.NXT,
		Ack:     t.Recv.NXT,
		Flags:   MakeFlags(true, false, false, false, true, false),
		Window:  uint16(t.Opts.ReceiveWindowSize),
	}
	t.Send.NXT++
	return seg, true
}

// OnPeerFIN advances the state machine's passive half once the peer's
// FIN has been delivered in order (TCB.RecvSegment already bumped
// Recv.NXT past it).
func (t *TCB) OnPeerFIN(now time.Time) {
	switch t.State {
	case StateEstablished:
		t.State = StateCloseWait
	case StateFinWait1:
		t.State = StateClosing
	case StateFinWait2:
		t.State = StateTimeWait
		t.TimeWaitDeadline = now.Add(2 * MSL)
	}
}

// OnFINAck advances the state machine once our own FIN has been
// acknowledged.
func (t *TCB) OnFINAck(now time.Time) {
	switch t.State {
	case StateFinWait1:
		t.State = StateFinWait2
		if t.PeerFIN {
			t.State = StateTimeWait
			t.TimeWaitDeadline = now.Add(2 * MSL)
		}
	case StateClosing:
		t.State = StateTimeWait
		t.TimeWaitDeadline = now.Add(2 * MSL)
	case StateLastAck:
		t.State = StateClosed
	}
}

// ForceClose aborts the connection immediately, bypassing the
// graceful teardown sequence (spec.md §4.4.4 "forced close").
func (t *TCB) ForceClose() Segment {
	seg := Segment{
		SrcPort: t.Tuple.LocalPort,
		DstPort: t.Tuple.RemotePort,
		Seq:     t.Send.NXT,
		Flags:   MakeFlags(false, false, true, false, false, false),
	}
	t.State = StateClosed
	return seg
}

// TimeWaitExpired reports whether the 2*MSL quiet time has elapsed.
func (t *TCB) TimeWaitExpired(now time.Time) bool {
	return t.State == StateTimeWait && !now.Before(t.TimeWaitDeadline)
}

// Closed reports whether the connection has reached its terminal state
// and its TCB may be reclaimed.
func (t *TCB) Closed() bool {
	return t.State == StateClosed
}
