// File: internal/tcp/congestion.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Slow-start / congestion-avoidance / fast-retransmit state (spec.md
// §4.4.2 "congestion control") and Jacobson/Karels RTT estimation
// (spec.md §4.4.2 "RTO estimation"), grounded on original_source's
// catnip congestion_control.rs and rto.rs for the constants and
// transition shape, re-expressed as plain Go structs rather than the
// original's trait-object strategy pattern.

package tcp

import "time"

const (
	dupAckThreshold = 3

	rtoMin = 200 * time.Millisecond
	rtoMax = 60 * time.Second
)

// CongestionState tracks the classic Reno-style slow-start / congestion
// avoidance / fast-retransmit state machine.
type CongestionState struct {
	CWnd       uint32
	SSThresh   uint32
	mss        uint32
	InFastRecovery bool
}

func NewCongestionState(mss int) CongestionState {
	m := uint32(mss)
	return CongestionState{
		CWnd:     m,     // RFC 5681 initial window: 1 MSS, conservatively
		SSThresh: 64 * 1024,
		mss:      m,
	}
}

// OnAck grows the window: slow start below SSThresh (exponential),
// congestion avoidance above it (additive increase of ~1 MSS/RTT).
func (c *CongestionState) OnAck(ackedBytes uint32) {
	c.InFastRecovery = false
	if c.CWnd < c.SSThresh {
		c.CWnd += ackedBytes
		return
	}
	if c.mss == 0 {
		return
	}
	c.CWnd += (c.mss*c.mss)/c.CWnd + 1
}

// OnDupAck counts a duplicate ACK and reports whether this crossed the
// fast-retransmit threshold.
func (c *CongestionState) OnDupAck(dupCount int) (retransmit bool) {
	if dupCount != dupAckThreshold {
		return false
	}
	c.SSThresh = max32(c.CWnd/2, 2*c.mss)
	c.CWnd = c.SSThresh + uint32(dupAckThreshold)*c.mss
	c.InFastRecovery = true
	return true
}

// OnTimeout applies RFC 5681's loss response: halve ssthresh, collapse
// the window to one segment, and restart slow start.
func (c *CongestionState) OnTimeout() {
	c.SSThresh = max32(c.CWnd/2, 2*c.mss)
	c.CWnd = c.mss
	c.InFastRecovery = false
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// RTTEstimator implements the Jacobson/Karels smoothed RTT and RTO
// calculation (RFC 6298), clamped to [rtoMin, rtoMax].
type RTTEstimator struct {
	srtt    time.Duration
	rttvar  time.Duration
	rto     time.Duration
	seeded  bool
	backoff int
}

func NewRTTEstimator() RTTEstimator {
	return RTTEstimator{rto: 1 * time.Second}
}

// Sample folds in a new round-trip measurement.
func (r *RTTEstimator) Sample(rtt time.Duration) {
	if !r.seeded {
		r.srtt = rtt
		r.rttvar = rtt / 2
		r.seeded = true
	} else {
		diff := r.srtt - rtt
		if diff < 0 {
			diff = -diff
		}
		r.rttvar = (3*r.rttvar + diff) / 4
		r.srtt = (7*r.srtt + rtt) / 8
	}
	r.rto = r.srtt + max(4*r.rttvar, time.Millisecond)
	r.clamp()
	r.backoff = 0
}

// Backoff doubles the RTO on a retransmit timeout (exponential backoff,
// RFC 6298 §5.5), without disturbing the underlying srtt/rttvar
// estimate so a fresh sample recovers the true RTT immediately.
func (r *RTTEstimator) Backoff() time.Duration {
	r.backoff++
	return r.RTO()
}

// RTO returns the current retransmission timeout: the clamped estimate,
// doubled once per Backoff since the last Sample, capped at rtoMax.
func (r *RTTEstimator) RTO() time.Duration {
	d := r.rto
	for i := 0; i < r.backoff && d < rtoMax; i++ {
		d *= 2
	}
	if d > rtoMax {
		d = rtoMax
	}
	return d
}

func (r *RTTEstimator) clamp() {
	if r.rto < rtoMin {
		r.rto = rtoMin
	}
	if r.rto > rtoMax {
		r.rto = rtoMax
	}
}

func max(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
