// File: libos/libos.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// LibOS is the top-level host-facing façade spec.md §6 describes:
// socket/bind/listen/accept/connect/push/pushto/pop/close/wait, wired
// over the queue layer, the TCP and UDP engines and the buffer pool.
// Grounded on the teacher's facade package (facade/facade.go), which
// plays the same "one object, whole API surface" role over its reactor
// and protocol stack.

package libos

import (
	"time"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/bufferpool"
	"github.com/momentics/quanta-libos/internal/concurrency"
	qnet "github.com/momentics/quanta-libos/internal/net"
	"github.com/momentics/quanta-libos/internal/tcp"
	"github.com/momentics/quanta-libos/internal/udp"
	"github.com/momentics/quanta-libos/queue"
)

type sockKind int

const (
	sockTCP sockKind = iota
	sockUDP
)

// socket is this façade's own bookkeeping for a QD, layered on top of
// queue.Queue (which only tracks the scheduler-facing pieces). Exactly
// one of listener/tcb/udpEP is non-nil once the socket has progressed
// past an unbound, freshly-created state.
type socket struct {
	kind     sockKind
	bound    bool
	local    api.SockAddr
	listener *tcp.Listener
	tcb      *tcp.TCB
	udpEP    *udp.Endpoint
}

// LibOS hosts one local identity's whole protocol stack: one TCP
// engine, one UDP engine, one buffer pool, one queue layer, all driven
// by repeated calls to Poll from a single-threaded event loop (spec.md §5).
type LibOS struct {
	opts   Options
	driver api.TransportDriver
	pool   *bufferpool.Pool
	tcpE   *tcp.Engine
	udpE   *udp.Engine
	q      *queue.Layer

	sockets    map[api.QD]*socket
	boundAddrs map[api.SockAddr]api.QD

	nextEphemeral uint16
}

// New wires a LibOS instance over driver, starting both engines' clocks
// at start.
func New(driver api.TransportDriver, opts Options, start time.Time) *LibOS {
	neigh := qnet.NewNeighborTable(opts.StaticARP, opts.DisableARP)
	pool := bufferpool.New(opts.MTU, 256)
	tcpE := tcp.NewEngine(driver, pool, opts.LocalIPv4, qnet.MAC(opts.LocalMAC), neigh, opts.TCPChecksumOffload, start)
	udpE := udp.NewEngine(driver, opts.LocalIPv4, qnet.MAC(opts.LocalMAC), neigh, opts.UDPChecksumOffload)
	return &LibOS{
		opts:          opts,
		driver:        driver,
		pool:          pool,
		tcpE:          tcpE,
		udpE:          udpE,
		q:             queue.NewLayer(tcpE.Scheduler()),
		sockets:       make(map[api.QD]*socket),
		boundAddrs:    make(map[api.SockAddr]api.QD),
		nextEphemeral: 49152,
	}
}

// Poll drains one round of network I/O and timers. The host event loop
// calls this once per iteration; Wait's busy-poll also calls it via the
// tick callback it builds internally.
//
// Both protocol engines share one TransportDriver, so frames are
// received exactly once here and routed by Ethernet/IP protocol to
// whichever engine owns it (tcp.Engine.HandleFrame / udp.Engine.HandleFrame)
// rather than letting each engine call ReceiveBurst independently, which
// would race the two engines over the same queue and drop whichever
// protocol's frames the other engine's PumpNetwork got to first.
func (l *LibOS) Poll(now time.Time) error {
	l.tcpE.Tick(now)
	frames := make([]api.Buffer, 64)
	n, err := l.driver.ReceiveBurst(frames)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		frame := frames[i]
		l.routeFrame(frame, now)
		frame.Release()
	}
	return nil
}

// routeFrame sniffs a received frame's Ethernet/IP protocol and hands it
// to the one engine that owns that protocol. ARP piggybacks on the TCP
// engine's neighbor table (both engines share the same *qnet.NeighborTable
// instance, so ARP replies learned here are visible to UDP sends too).
func (l *LibOS) routeFrame(frame api.Buffer, now time.Time) {
	data := frame.Bytes()
	eth, ok := qnet.DecodeEthernet(data)
	if !ok {
		return
	}
	switch eth.EtherType {
	case qnet.EtherTypeARP:
		l.tcpE.HandleFrame(frame, now)
	case qnet.EtherTypeIPv4:
		payload := data[qnet.EthernetHeaderLen:]
		iph, _, ok := qnet.DecodeIPv4(payload)
		if !ok {
			return
		}
		switch iph.Protocol {
		case qnet.ProtoTCP:
			l.tcpE.HandleFrame(frame, now)
		case qnet.ProtoUDP:
			l.udpE.HandleFrame(frame)
		}
	}
}

func (l *LibOS) tick() {
	l.Poll(time.Now())
}

// Socket creates a new QD of the requested domain/type (spec.md §6).
func (l *LibOS) Socket(domain api.Domain, typ api.SockType) (api.QD, *api.Error) {
	if domain != api.DomainIPv4 {
		return api.InvalidQD, api.ErrInvalidArgument
	}
	var kind sockKind
	switch typ {
	case api.TypeStream:
		kind = sockTCP
	case api.TypeDgram:
		kind = sockUDP
	default:
		return api.InvalidQD, api.ErrInvalidArgument
	}
	qkind := queue.KindTCPConn
	if kind == sockUDP {
		qkind = queue.KindUDP
	}
	qd, _ := l.q.Alloc(qkind)
	l.sockets[qd] = &socket{kind: kind}
	return qd, nil
}

func (l *LibOS) get(qd api.QD) (*socket, *api.Error) {
	s, ok := l.sockets[qd]
	if !ok {
		return nil, api.ErrBadDescriptor
	}
	return s, nil
}

// Bind assigns a local address, rejecting a collision with any other
// live QD already bound to the same address (spec.md §6, §7 Open
// Questions: a QD keeps its own binding after a failed connect, so
// only a genuinely distinct QD collides).
func (l *LibOS) Bind(qd api.QD, addr api.SockAddr) *api.Error {
	s, err := l.get(qd)
	if err != nil {
		return err
	}
	if owner, taken := l.boundAddrs[addr]; taken && owner != qd {
		return api.ErrAddrInUse
	}
	if s.bound && s.local != addr {
		delete(l.boundAddrs, s.local)
		if s.kind == sockUDP && s.udpEP != nil {
			l.udpE.Unbind(s.local)
			s.udpEP = nil
		}
	}
	s.local = addr
	s.bound = true
	l.boundAddrs[addr] = qd
	if s.kind == sockUDP && s.udpEP == nil {
		s.udpEP = l.udpE.Bind(addr)
	}
	return nil
}

// Listen transitions a bound STREAM socket into a passive-open listener.
func (l *LibOS) Listen(qd api.QD, backlog int) *api.Error {
	s, err := l.get(qd)
	if err != nil {
		return err
	}
	if s.kind != sockTCP {
		return api.ErrInvalidArgument
	}
	if !s.bound {
		return api.ErrDestAddrRequired
	}
	if s.listener != nil {
		return api.ErrAddrInUse // a second listen on the same QD collides
	}
	s.listener = l.tcpE.Listen(s.local, backlog)
	if q, ok := l.q.Descriptors().Get(qd); ok {
		q.Kind = queue.KindTCPListener
		q.TCPListener = s.listener
	}
	return nil
}

// Accept submits an AcceptStep against qd's listener.
func (l *LibOS) Accept(qd api.QD) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	if s.listener == nil {
		return 0, api.ErrBadDescriptor
	}
	return l.q.Submit(qd, api.OpAccept, tcp.NewAcceptStep(s.listener))
}

// Connect submits a ConnectStep for an outbound TCP connection,
// auto-assigning an ephemeral local port if qd isn't already bound.
func (l *LibOS) Connect(qd api.QD, addr api.SockAddr) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	if s.kind != sockTCP {
		return 0, api.ErrInvalidArgument
	}
	if !s.bound {
		local := api.SockAddr{IP: l.opts.LocalIPv4, Port: l.allocEphemeralPort()}
		if bindErr := l.Bind(qd, local); bindErr != nil {
			return 0, bindErr
		}
	}
	opts := l.opts.tcpOptions()
	step := tcp.NewConnectStep(l.tcpE, s.local, addr, opts)
	return l.q.Submit(qd, api.OpConnect, step)
}

func (l *LibOS) allocEphemeralPort() uint16 {
	for {
		port := l.nextEphemeral
		l.nextEphemeral++
		if l.nextEphemeral == 0 {
			l.nextEphemeral = 49152
		}
		addr := api.SockAddr{IP: l.opts.LocalIPv4, Port: port}
		if _, taken := l.boundAddrs[addr]; !taken {
			return port
		}
	}
}

// Push submits a PushStep for an established (or half-closed-for-read)
// TCP connection.
func (l *LibOS) Push(qd api.QD, sga api.ScatterGather) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	if s.kind != sockTCP || s.tcb == nil {
		return 0, api.ErrNotConnected
	}
	if sga.TotalLen() == 0 {
		return 0, api.ErrInvalidArgument
	}
	data := append([]byte(nil), sga.Bytes()...)
	return l.q.Submit(qd, api.OpPush, tcp.NewPushStep(l.tcpE, s.tcb, data))
}

// PushTo sends a UDP datagram; delivery is driver-synchronous, so the
// submitted step completes on its very first poll.
func (l *LibOS) PushTo(qd api.QD, sga api.ScatterGather, dst api.SockAddr) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	if s.kind != sockUDP {
		return 0, api.ErrInvalidArgument
	}
	if !s.bound {
		local := api.SockAddr{IP: l.opts.LocalIPv4, Port: l.allocEphemeralPort()}
		if bindErr := l.Bind(qd, local); bindErr != nil {
			return 0, bindErr
		}
	}
	data := append([]byte(nil), sga.Bytes()...)
	local := s.local
	udpE := l.udpE
	step := syncStep{fn: func() (any, bool) {
		err := udpE.Send(local, dst, data)
		var res *api.Error
		if err != nil {
			res = api.ErrBrokenPipe
		}
		return res, true
	}}
	return l.q.Submit(qd, api.OpPushTo, step)
}

// Pop submits a PopStep (TCP) or drains the next inbound datagram (UDP).
func (l *LibOS) Pop(qd api.QD, max int) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	switch s.kind {
	case sockTCP:
		if s.tcb == nil {
			return 0, api.ErrNotConnected
		}
		return l.q.Submit(qd, api.OpPop, tcp.NewPopStep(s.tcb, max))
	case sockUDP:
		if s.udpEP == nil {
			return 0, api.ErrNotConnected
		}
		return l.q.Submit(qd, api.OpPop, udp.NewPopStep(s.udpEP))
	}
	return 0, api.ErrInvalidArgument
}

// Close submits a graceful CloseStep for TCP, or tears a UDP endpoint
// down synchronously and returns no token (spec.md §6: "void (or QT for
// graceful TCP)").
func (l *LibOS) Close(qd api.QD) (api.QT, *api.Error) {
	s, err := l.get(qd)
	if err != nil {
		return 0, err
	}
	if s.bound {
		delete(l.boundAddrs, s.local)
	}
	if s.kind == sockUDP {
		if s.udpEP != nil {
			l.udpE.Unbind(s.local)
		}
		l.closeAndFree(qd)
		return 0, nil
	}
	if s.tcb == nil {
		// Never connected/accepted (e.g. a bare listener, or a socket that
		// never left Closed): nothing to drain gracefully.
		l.closeAndFree(qd)
		return 0, nil
	}
	// CloseStep has not been polled even once yet (Scheduler.Insert only
	// enqueues; it does not drive the step) — freeing qd here would let
	// queue.Layer.Close observe the just-minted token as not-yet-completed
	// and Take (cancel) it before CloseStep ever sends the FIN. qd is
	// freed later, from pack's OpClose case, once the step has actually
	// run to completion and a caller has reaped it via Wait/TryWait.
	return l.q.Submit(qd, api.OpClose, tcp.NewCloseStep(l.tcpE, s.tcb))
}

func (l *LibOS) closeAndFree(qd api.QD) {
	l.q.Close(qd)
	delete(l.sockets, qd)
}

// teardownFailedConnect implements the Open-Question decision: a failed
// connect drops qd's half-open TCB but keeps its local binding, so a
// subsequent listen on the same QD succeeds while a different QD binding
// the same address still gets addr-in-use.
func (l *LibOS) teardownFailedConnect(qd api.QD, s *socket) {
	s.tcb = nil
}

// Wait busy-polls this LibOS (network pump + timers) until qt completes
// or timeout elapses, then packs the result into a CompletionRecord.
func (l *LibOS) Wait(qt api.QT, timeout time.Duration) (api.CompletionRecord, *api.Error) {
	op, ok := l.q.Opcode(qt)
	if !ok {
		return api.CompletionRecord{}, api.ErrInvalidArgument
	}
	qd, _ := l.q.QD(qt)
	result, err := l.q.Wait(qt, timeout, l.tick)
	if err != nil {
		return api.CompletionRecord{Opcode: op, QD: qd}, err
	}
	return l.pack(op, qd, result)
}

// TryWait is Wait's non-blocking counterpart.
func (l *LibOS) TryWait(qt api.QT) (api.CompletionRecord, bool, *api.Error) {
	op, ok := l.q.Opcode(qt)
	if !ok {
		return api.CompletionRecord{}, false, api.ErrInvalidArgument
	}
	qd, _ := l.q.QD(qt)
	result, done, err := l.q.TryWait(qt)
	if !done {
		return api.CompletionRecord{}, false, err
	}
	if err != nil {
		return api.CompletionRecord{Opcode: op, QD: qd}, true, err
	}
	rec, perr := l.pack(op, qd, result)
	return rec, true, perr
}

func (l *LibOS) pack(op api.Opcode, qd api.QD, result any) (api.CompletionRecord, *api.Error) {
	rec := api.CompletionRecord{Opcode: op, QD: qd}
	switch op {
	case api.OpAccept:
		ar := result.(tcp.AcceptResult)
		newQD, _ := l.q.Alloc(queue.KindTCPConn)
		l.sockets[newQD] = &socket{kind: sockTCP, bound: true, local: api.SockAddr{IP: ar.TCB.Tuple.LocalIP, Port: ar.TCB.Tuple.LocalPort}, tcb: ar.TCB}
		l.tcpE.RegisterConn(ar.TCB)
		rec.Accept = api.AcceptResult{NewQD: newQD, Peer: api.SockAddr{IP: ar.TCB.Tuple.RemoteIP, Port: ar.TCB.Tuple.RemotePort}}
		return rec, nil

	case api.OpConnect:
		cr := result.(tcp.ConnectResult)
		if cr.Err != nil {
			rec.Err = cr.Err
			if s, ok := l.sockets[qd]; ok {
				l.teardownFailedConnect(qd, s)
			}
			return rec, nil
		}
		if s, ok := l.sockets[qd]; ok {
			s.tcb = cr.TCB
		}
		return rec, nil

	case api.OpPush, api.OpPushTo:
		if connErr, ok := result.(*api.Error); ok && connErr != nil {
			rec.Err = connErr
		}
		return rec, nil

	case api.OpClose:
		// CloseStep has driven the connection to StateClosed: only now is
		// it safe to reclaim qd (see the comment in Close).
		l.closeAndFree(qd)
		return rec, nil

	case api.OpPop:
		switch pr := result.(type) {
		case tcp.PopResult:
			sga := l.pool.IntoSGA(api.NewExternal(pr.Data))
			rec.Pop = api.PopResult{SGA: sga, EOF: pr.EOF}
		case udp.Datagram:
			sga := l.pool.IntoSGA(api.NewExternal(pr.Payload))
			rec.Pop = api.PopResult{SGA: sga, From: pr.From}
		}
		return rec, nil

	default:
		return rec, nil
	}
}

// AllocSGA/FreeSGA expose the buffer pool's scatter-gather bridge to
// user code (spec.md §6).
func (l *LibOS) AllocSGA(size int) (api.ScatterGather, *api.Error) {
	return l.pool.AllocSGA(size)
}

func (l *LibOS) FreeSGA(sga api.ScatterGather) {
	bufferpool.FreeSGA(sga)
}

// syncStep adapts a plain closure that always resolves on its first
// poll to concurrency.Step, for operations (UDP send) the underlying
// driver already performs synchronously.
type syncStep struct {
	fn func() (any, bool)
}

func (s syncStep) Poll(w concurrency.Waker) (any, bool) { return s.fn() }
