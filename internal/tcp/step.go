// File: internal/tcp/step.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// concurrency.Step implementations for the five host-facing TCP
// operations (spec.md §4.3 "Step" / §6 connect/accept/push/pop/close).
// The queue layer Inserts one of these per submitted operation and
// polls it to completion through the Engine's scheduler.

package tcp

import (
	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
)

// ConnectResult is ConnectStep's terminal value.
type ConnectResult struct {
	TCB *TCB
	Err *api.Error
}

// ConnectStep drives the active-open handshake, sending at most
// Options.HandshakeRetries SYNs in total before resolving to
// ErrConnectionRefused.
type ConnectStep struct {
	engine  *Engine
	tcb     *TCB
	started bool
}

// NewConnectStep allocates a TCB for an outbound connection attempt.
func NewConnectStep(engine *Engine, local, remote api.SockAddr, opts Options) *ConnectStep {
	tuple := FourTuple{LocalIP: local.IP, LocalPort: local.Port, RemoteIP: remote.IP, RemotePort: remote.Port}
	return &ConnectStep{engine: engine, tcb: NewTCB(tuple, opts)}
}

func (s *ConnectStep) Poll(w concurrency.Waker) (any, bool) {
	tcb := s.tcb
	switch tcb.State {
	case StateEstablished:
		return ConnectResult{TCB: tcb}, true

	case StateClosed:
		if s.started {
			return ConnectResult{Err: api.ErrConnectionRefused}, true
		}
		s.started = true
		tcb.Waker = w
		iss := s.engine.AllocISS()
		seg := beginActiveOpen(tcb, iss)
		s.engine.RegisterConn(tcb)
		s.engine.SendSegment(tcb.Tuple, seg)
		s.armRetry(w)
		return nil, false

	case StateSynSent:
		seg, refused := retryActiveOpen(tcb)
		if refused {
			s.engine.Unregister(tcb.Tuple)
			return ConnectResult{Err: api.ErrConnectionRefused}, true
		}
		tcb.Waker = w
		s.engine.SendSegment(tcb.Tuple, seg)
		s.armRetry(w)
		return nil, false

	default:
		tcb.Waker = w
		return nil, false
	}
}

func (s *ConnectStep) armRetry(w concurrency.Waker) {
	s.engine.cancelPending(s.tcb)
	deadline := s.engine.Now().Add(s.tcb.Opts.HandshakeTimeout)
	ws := s.engine.ArmTimer(deadline, w)
	s.tcb.PendingWait = &ws
}

// AcceptResult is AcceptStep's terminal value.
type AcceptResult struct {
	TCB *TCB
}

// AcceptStep drains a listener's accept queue, parking when empty.
type AcceptStep struct {
	listener *Listener
}

func NewAcceptStep(l *Listener) *AcceptStep {
	return &AcceptStep{listener: l}
}

func (s *AcceptStep) Poll(w concurrency.Waker) (any, bool) {
	if tcb, ok := s.listener.Drain(); ok {
		return AcceptResult{TCB: tcb}, true
	}
	s.listener.ParkAccept(w)
	return nil, false
}

// PushStep enqueues application data and drives it onto the wire until
// fully handed to the send path (not necessarily acknowledged yet).
type PushStep struct {
	engine   *Engine
	tcb      *TCB
	data     []byte
	enqueued bool
}

func NewPushStep(engine *Engine, tcb *TCB, data []byte) *PushStep {
	return &PushStep{engine: engine, tcb: tcb, data: data}
}

func (s *PushStep) Poll(w concurrency.Waker) (any, bool) {
	if s.tcb.State != StateEstablished && s.tcb.State != StateCloseWait {
		return api.ErrNotConnected, true
	}
	if !s.enqueued {
		s.tcb.Enqueue(s.data)
		s.enqueued = true
	}
	for _, seg := range s.tcb.BuildSegments(s.engine.Now()) {
		s.engine.SendSegment(s.tcb.Tuple, seg)
	}
	if len(s.tcb.SendQueue) == 0 {
		return nil, true
	}
	s.tcb.Waker = w
	return nil, false
}

// PopResult is PopStep's terminal value.
type PopResult struct {
	Data []byte
	EOF  bool
}

// PopStep waits for in-order delivered bytes (or peer FIN) and returns
// up to Max bytes.
type PopStep struct {
	tcb *TCB
	Max int
}

func NewPopStep(tcb *TCB, max int) *PopStep {
	return &PopStep{tcb: tcb, Max: max}
}

func (s *PopStep) Poll(w concurrency.Waker) (any, bool) {
	data, eof := s.tcb.PopAvailable(s.Max)
	if len(data) > 0 || eof {
		return PopResult{Data: data, EOF: eof}, true
	}
	s.tcb.Waker = w
	return nil, false
}

// CloseStep drives the graceful teardown sequence to completion (or,
// for a connection that never left SYN_SENT/LISTEN, a forced close).
type CloseStep struct {
	engine  *Engine
	tcb     *TCB
	started bool
}

func NewCloseStep(engine *Engine, tcb *TCB) *CloseStep {
	return &CloseStep{engine: engine, tcb: tcb}
}

func (s *CloseStep) Poll(w concurrency.Waker) (any, bool) {
	tcb := s.tcb
	if !s.started {
		s.started = true
		if seg, ok := tcb.BeginGracefulClose(); ok {
			s.engine.SendSegment(tcb.Tuple, seg)
		} else {
			s.engine.SendSegment(tcb.Tuple, tcb.ForceClose())
		}
	}

	if tcb.State == StateTimeWait && tcb.PendingWait == nil {
		ws := s.engine.ArmTimer(tcb.TimeWaitDeadline, w)
		tcb.PendingWait = &ws
	}
	if tcb.TimeWaitExpired(s.engine.Now()) {
		tcb.State = StateClosed
	}
	if tcb.Closed() {
		s.engine.Unregister(tcb.Tuple)
		return nil, true
	}
	tcb.Waker = w
	return nil, false
}
