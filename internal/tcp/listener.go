// File: internal/tcp/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Passive-open accept queue, bounded by backlog (spec.md §4.4.1 "passive
// open"). Built on github.com/eapache/queue, the same ring-backed FIFO
// the scheduler uses for its ready queue (SPEC_FULL.md §3 domain stack).

package tcp

import (
	"github.com/eapache/queue"

	"github.com/momentics/quanta-libos/internal/concurrency"
)

// Listener holds half-open (SynReceived) connections until their
// three-way handshake completes, then queues the now-Established TCB
// for Accept to drain.
type Listener struct {
	LocalIP   [4]byte
	LocalPort uint16
	backlog   int

	halfOpen map[FourTuple]*TCB
	ready    *queue.Queue // holds *TCB, each already Established

	// wakers parked by an Accept Step finding the queue empty; Promote
	// fires (and clears) them so the next scheduler round retries.
	wakers []concurrency.Waker
}

// NewListener creates a listener with the given backlog, clamped per
// clampBacklog's rule.
func NewListener(ip [4]byte, port uint16, backlog int) *Listener {
	return &Listener{
		LocalIP:   ip,
		LocalPort: port,
		backlog:   clampBacklog(backlog),
		halfOpen:  make(map[FourTuple]*TCB),
		ready:     queue.New(),
	}
}

// ParkAccept registers w to be woken the next time a connection is
// promoted into the ready queue.
func (l *Listener) ParkAccept(w concurrency.Waker) {
	l.wakers = append(l.wakers, w)
}

// AdmitSyn records a new half-open connection, rejecting it (returning
// false) if the accept queue is already at backlog capacity — the
// incoming SYN is dropped, matching spec.md §4.4.1's overflow rule of
// silently ignoring new SYNs once the queue is full.
func (l *Listener) AdmitSyn(tcb *TCB) bool {
	if l.ready.Length() >= l.backlog {
		return false
	}
	l.halfOpen[tcb.Tuple] = tcb
	return true
}

// HalfOpen returns the in-progress TCB for tuple, if any.
func (l *Listener) HalfOpen(tuple FourTuple) (*TCB, bool) {
	tcb, ok := l.halfOpen[tuple]
	return tcb, ok
}

// Promote moves a half-open connection to the ready queue once its
// handshake completes (ACK of our SYN-ACK received). AdmitSyn's check
// only bounds the ready queue's length *at SYN arrival*; two half-open
// connections admitted while the queue still had room can both finish
// their handshake before either is drained by Accept, so capacity is
// re-checked here too. A connection that loses this race is not
// promoted (ok=false) — the caller must reject it (spec.md §4.4.1
// "RSTed if not room") rather than silently growing past backlog.
func (l *Listener) Promote(tuple FourTuple) (tcb *TCB, ok bool) {
	tcb, ok = l.halfOpen[tuple]
	if !ok {
		return nil, false
	}
	delete(l.halfOpen, tuple)
	if l.ready.Length() >= l.backlog {
		return tcb, false
	}
	l.ready.Add(tcb)
	for _, w := range l.wakers {
		w.Wake()
	}
	l.wakers = nil
	return tcb, true
}

// Drain pops the oldest Established connection off the accept queue.
func (l *Listener) Drain() (*TCB, bool) {
	if l.ready.Length() == 0 {
		return nil, false
	}
	return l.ready.Remove().(*TCB), true
}

// Pending reports how many connections are waiting to be accepted.
func (l *Listener) Pending() int { return l.ready.Length() }
