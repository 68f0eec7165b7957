// File: internal/tcp/tcb.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The Transmission Control Block holds all per-connection state for the
// RFC 793 state machine (spec.md §3 "TCP Control Block"). It is only
// ever mutated by the executor thread (spec.md §5), so none of its
// fields are guarded by a mutex — correctness rests on that single-
// writer invariant, mirrored from the teacher's internal/concurrency
// ring buffer comment on non-atomic bookkeeping.

package tcp

import (
	"time"

	"github.com/momentics/quanta-libos/internal/concurrency"
)

// State is one of the eleven RFC 793 states this engine implements.
// CLOSED and LISTEN bookend the active/passive open paths.
type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateClosing
	StateLastAck
	StateTimeWait
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynReceived:
		return "SYN_RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN_WAIT_1"
	case StateFinWait2:
		return "FIN_WAIT_2"
	case StateCloseWait:
		return "CLOSE_WAIT"
	case StateClosing:
		return "CLOSING"
	case StateLastAck:
		return "LAST_ACK"
	case StateTimeWait:
		return "TIME_WAIT"
	default:
		return "UNKNOWN"
	}
}

// FourTuple identifies a connection by its endpoints.
type FourTuple struct {
	LocalIP    [4]byte
	LocalPort  uint16
	RemoteIP   [4]byte
	RemotePort uint16
}

// MSL is the Maximum Segment Lifetime used for the TIME_WAIT duration
// (2*MSL, spec.md §4.4.4). Demikernel-derived implementations shorten
// the textbook 2-minute MSL for test friendliness; original_source's
// catnip crate uses a similar short constant for the same reason.
const MSL = 1 * time.Second

// sendSequence mirrors RFC 793 §3.2's "Send Sequence Variables".
type sendSequence struct {
	UNA uint32 // oldest unacknowledged sequence number
	NXT uint32 // next sequence number to send
	WND uint32 // send window
	ISS uint32 // initial send sequence number
}

// recvSequence mirrors RFC 793 §3.2's "Receive Sequence Variables".
type recvSequence struct {
	NXT uint32 // next sequence number expected
	WND uint32 // receive window
	IRS uint32 // initial receive sequence number
}

// retransmitEntry is one unacknowledged outbound segment awaiting ACK
// or RTO-driven retransmission.
type retransmitEntry struct {
	Seq     uint32
	Data    []byte
	Sent    time.Time
	FIN     bool
	Retries int
}

// TCB is the full per-connection control block.
type TCB struct {
	Tuple FourTuple
	State State

	Send sendSequence
	Recv recvSequence

	LocalMSS int
	PeerMSS  int

	Opts Options

	// Outbound data awaiting first transmission (Nagle/window-limited).
	SendQueue [][]byte
	// Segments transmitted but not yet ACKed, oldest first.
	Unacked []retransmitEntry

	// Reassembly holds out-of-order received segments.
	Reassembly *ReassemblyQueue
	// Delivered, in-order bytes waiting for a Pop.
	RecvQueue []byte

	Congestion CongestionState
	RTT        RTTEstimator

	DupAcks int

	// FINSeq is the sequence number consumed by our own FIN, once sent.
	FINSeq     uint32
	FINSent    bool
	PeerFINSeq uint32
	PeerFIN    bool

	// HandshakeAttempt counts SYNs sent during active open, the initial one
	// included.
	HandshakeAttempt int

	// TimeWaitDeadline is set when entering TIME_WAIT.
	TimeWaitDeadline time.Time

	// Waker lets timer and retransmit callbacks resume the Step that is
	// currently parked on this TCB (spec.md §4.3's waker threading).
	Waker concurrency.Waker

	// PendingWait is the handle to an outstanding timer registration so
	// it can be cancelled on state transitions that make it moot.
	PendingWait *concurrency.WaitStep

	closeRequested bool
}

// NewTCB allocates a control block for an about-to-open connection.
func NewTCB(tuple FourTuple, opts Options) *TCB {
	return &TCB{
		Tuple:      tuple,
		State:      StateClosed,
		LocalMSS:   opts.AdvertisedMSS,
		PeerMSS:    DefaultMSS,
		Opts:       opts,
		Reassembly: NewReassemblyQueue(),
		Congestion: NewCongestionState(opts.AdvertisedMSS),
		RTT:        NewRTTEstimator(),
	}
}

// EffectiveMSS is min(local advertised MSS, peer advertised MSS),
// per spec.md §4.4.2.
func (t *TCB) EffectiveMSS() int {
	if t.PeerMSS < t.LocalMSS {
		return t.PeerMSS
	}
	return t.LocalMSS
}

// InFlight returns the number of unacknowledged bytes.
func (t *TCB) InFlight() uint32 {
	return t.Send.NXT - t.Send.UNA
}

// CloseRequested reports whether the application already asked to close
// this connection (used to decide CLOSE_WAIT -> LAST_ACK transitions
// once buffered data drains).
func (t *TCB) CloseRequested() bool { return t.closeRequested }

// RequestClose records an application-initiated close.
func (t *TCB) RequestClose() { t.closeRequested = true }
