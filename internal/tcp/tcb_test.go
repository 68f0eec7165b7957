// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import (
	"testing"
	"time"
)

func tuple() FourTuple {
	return FourTuple{
		LocalIP: [4]byte{10, 0, 0, 1}, LocalPort: 9000,
		RemoteIP: [4]byte{10, 0, 0, 2}, RemotePort: 9001,
	}
}

func TestActiveOpenHandshake(t *testing.T) {
	tcb := NewTCB(tuple(), DefaultOptions())
	syn := beginActiveOpen(tcb, 1000)
	if tcb.State != StateSynSent || !syn.Flags.SYN() {
		t.Fatalf("expected SYN_SENT with SYN segment, got %v", tcb.State)
	}

	synAck := Segment{Seq: 5000, Ack: tcb.Send.NXT, Flags: MakeFlags(false, true, false, false, true, false), MSS: 1200}
	ack, ok := handleSynAckAsActiveOpener(tcb, synAck)
	if !ok || tcb.State != StateEstablished {
		t.Fatalf("expected ESTABLISHED after valid SYN-ACK, got %v ok=%v", tcb.State, ok)
	}
	if !ack.Flags.ACK() || ack.Ack != tcb.Recv.NXT {
		t.Fatalf("final ACK malformed: %+v", ack)
	}
	if tcb.PeerMSS != 1200 {
		t.Fatalf("expected peer MSS negotiated to 1200, got %d", tcb.PeerMSS)
	}
}

func TestActiveOpenRetriesThenRefused(t *testing.T) {
	opts := DefaultOptions().WithHandshakeRetries(2)
	tcb := NewTCB(tuple(), opts)
	beginActiveOpen(tcb, 1)

	if _, refused := retryActiveOpen(tcb); refused {
		t.Fatal("first retry should not be refused yet")
	}
	_, refused := retryActiveOpen(tcb)
	if !refused || tcb.State != StateClosed {
		t.Fatalf("expected refusal after exhausting retries, state=%v refused=%v", tcb.State, refused)
	}
}

func TestPassiveOpenHandshake(t *testing.T) {
	opts := DefaultOptions()
	syn := Segment{Seq: 42, Flags: MakeFlags(false, true, false, false, false, false), MSS: 1400}
	tcb, synAck := beginPassiveOpen(tuple(), opts, syn, 900)
	if tcb.State != StateSynReceived || !synAck.Flags.SYN() || !synAck.Flags.ACK() {
		t.Fatalf("expected SYN_RECEIVED with SYN-ACK, got %v", tcb.State)
	}

	finalAck := Segment{Seq: 43, Ack: tcb.Send.NXT, Flags: MakeFlags(false, false, false, false, true, false)}
	if !completePassiveOpen(tcb, finalAck) || tcb.State != StateEstablished {
		t.Fatalf("expected ESTABLISHED after final ACK, got %v", tcb.State)
	}
}

func TestListenerBacklogRejectsOverflow(t *testing.T) {
	l := NewListener([4]byte{10, 0, 0, 1}, 80, 1)
	a := NewTCB(FourTuple{RemotePort: 1}, DefaultOptions())
	b := NewTCB(FourTuple{RemotePort: 2}, DefaultOptions())

	if !l.AdmitSyn(a) {
		t.Fatal("first SYN should be admitted")
	}
	l.Promote(a.Tuple)
	if l.AdmitSyn(b) {
		t.Fatal("second SYN should be rejected once backlog is full of ready connections")
	}
}

func TestListenerPromoteRejectsConcurrentOverflow(t *testing.T) {
	l := NewListener([4]byte{10, 0, 0, 1}, 80, 1)
	a := NewTCB(FourTuple{RemotePort: 1}, DefaultOptions())
	b := NewTCB(FourTuple{RemotePort: 2}, DefaultOptions())

	// Both SYNs arrive while the ready queue is still empty, so both are
	// admitted to half-open before either finishes its handshake.
	if !l.AdmitSyn(a) {
		t.Fatal("first SYN should be admitted")
	}
	if !l.AdmitSyn(b) {
		t.Fatal("second SYN should be admitted: ready queue is still empty")
	}

	if _, ok := l.Promote(a.Tuple); !ok {
		t.Fatal("first completed handshake should be promoted")
	}
	if _, ok := l.Promote(b.Tuple); ok {
		t.Fatal("second completed handshake should be rejected: backlog already full")
	}
}

func TestSendPathRespectsWindowAndBuildsSegments(t *testing.T) {
	tcb := NewTCB(tuple(), DefaultOptions())
	tcb.State = StateEstablished
	tcb.Send.WND = 1000
	tcb.Congestion.CWnd = 1000
	tcb.Opts.NagleEnabled = false

	tcb.Enqueue(make([]byte, 100))
	segs := tcb.BuildSegments(time.Now())
	if len(segs) != 1 || len(segs[0].Payload) != 100 {
		t.Fatalf("expected one 100-byte segment, got %+v", segs)
	}
	if tcb.InFlight() != 100 {
		t.Fatalf("expected 100 bytes in flight, got %d", tcb.InFlight())
	}
}

func TestAckUnackedFeedsRTTAndCongestion(t *testing.T) {
	tcb := NewTCB(tuple(), DefaultOptions())
	tcb.State = StateEstablished
	tcb.Send.WND = 10000
	tcb.Congestion.CWnd = 10000
	tcb.Opts.NagleEnabled = false

	start := time.Now()
	tcb.Enqueue(make([]byte, 50))
	tcb.BuildSegments(start)

	acked := tcb.AckUnacked(tcb.Send.NXT, start.Add(10*time.Millisecond))
	if acked != 50 {
		t.Fatalf("expected 50 bytes acked, got %d", acked)
	}
	if len(tcb.Unacked) != 0 {
		t.Fatal("unacked queue should be empty after full ACK")
	}
}

func TestReassemblyQueueDeliversInOrder(t *testing.T) {
	q := NewReassemblyQueue()
	q.Insert(110, []byte("world"))
	q.Insert(100, []byte("hello"))

	if _, ok := q.Drain(100); !ok {
		t.Fatal("expected data at 100 to be drainable immediately")
	}
	// 105..109 still missing: the 110 range must not drain yet.
	if _, ok := q.Drain(105); ok {
		t.Fatal("gap at 105 should block delivery")
	}
}

func TestGracefulCloseSequence(t *testing.T) {
	tcb := NewTCB(tuple(), DefaultOptions())
	tcb.State = StateEstablished
	tcb.Recv.NXT = 500

	fin, ok := tcb.BeginGracefulClose()
	if !ok || tcb.State != StateFinWait1 || !fin.Flags.FIN() {
		t.Fatalf("expected FIN_WAIT_1 with FIN segment, got %v", tcb.State)
	}

	now := time.Now()
	tcb.OnFINAck(now)
	if tcb.State != StateFinWait2 {
		t.Fatalf("expected FIN_WAIT_2 after FIN acked, got %v", tcb.State)
	}

	tcb.PeerFIN = true
	tcb.OnPeerFIN(now)
	if tcb.State != StateTimeWait {
		t.Fatalf("expected TIME_WAIT after peer FIN, got %v", tcb.State)
	}
	if !tcb.TimeWaitExpired(now.Add(3 * MSL)) {
		t.Fatal("expected TIME_WAIT to expire after 2*MSL")
	}
}

func TestCongestionFastRetransmitOnThirdDupAck(t *testing.T) {
	c := NewCongestionState(1460)
	c.CWnd = 20000
	if c.OnDupAck(1) || c.OnDupAck(2) {
		t.Fatal("fast retransmit must not trigger before the third duplicate ACK")
	}
	if !c.OnDupAck(3) {
		t.Fatal("fast retransmit must trigger on the third duplicate ACK")
	}
}

func TestRTOClampedToConfiguredBounds(t *testing.T) {
	r := NewRTTEstimator()
	r.Sample(1 * time.Microsecond)
	if r.RTO() < rtoMin {
		t.Fatalf("RTO must never go below the configured floor, got %v", r.RTO())
	}
	r.Sample(2 * time.Minute)
	if r.RTO() > rtoMax {
		t.Fatalf("RTO must never exceed the configured ceiling, got %v", r.RTO())
	}
}
