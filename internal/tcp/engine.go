// File: internal/tcp/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine is the single-threaded hub that ties the cooperative scheduler,
// the timer wheel, a TransportDriver, and the TCB table together: it
// demultiplexes inbound Ethernet frames by 4-tuple and drives every
// connection's send/retransmit/teardown timers (spec.md §4, §5). Each
// host-facing operation (connect/accept/push/pop/close) is a
// concurrency.Step the queue layer schedules and polls to completion.

package tcp

import (
	"time"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
	qnet "github.com/momentics/quanta-libos/internal/net"
)

// Engine owns every live TCP connection and listener reachable through
// one TransportDriver.
type Engine struct {
	driver  api.TransportDriver
	pool    api.BufferPool
	sched   *concurrency.Scheduler
	wheel   *concurrency.TimerWheel
	neigh   *qnet.NeighborTable
	localIP [4]byte
	localMAC qnet.MAC
	offload bool

	conns     map[FourTuple]*TCB
	listeners map[listenKey]*Listener

	nextISS uint32
}

type listenKey struct {
	IP   [4]byte
	Port uint16
}

// NewEngine wires a fresh TCP engine over driver, starting its timer
// wheel at start.
func NewEngine(driver api.TransportDriver, pool api.BufferPool, localIP [4]byte, localMAC qnet.MAC, neigh *qnet.NeighborTable, checksumOffload bool, start time.Time) *Engine {
	return &Engine{
		driver:    driver,
		pool:      pool,
		sched:     concurrency.NewScheduler(),
		wheel:     concurrency.NewTimerWheel(start),
		neigh:     neigh,
		localIP:   localIP,
		localMAC:  localMAC,
		offload:   checksumOffload,
		conns:     make(map[FourTuple]*TCB),
		listeners: make(map[listenKey]*Listener),
		nextISS:   1,
	}
}

// Tick advances the timer wheel and drains one round of the ready
// queue; libos.LibOS.Poll calls this once per host poll loop iteration.
func (e *Engine) Tick(now time.Time) {
	e.wheel.AdvanceTo(now)
	e.sched.Poll()
}

// PumpNetwork drains up to budget frames from the driver and folds them
// into connection/listener state.
func (e *Engine) PumpNetwork(budget int, now time.Time) error {
	frames := make([]api.Buffer, budget)
	n, err := e.driver.ReceiveBurst(frames)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		e.handleFrame(frames[i], now)
		frames[i].Release()
	}
	return nil
}

// HandleFrame feeds a single already-demultiplexed frame into the engine.
// Exported so a host composing both a TCP and a UDP engine over one
// shared TransportDriver (libos.LibOS) can sniff the frame's protocol
// once and route it, instead of each engine independently draining
// (and discarding the other's) frames off the same driver.
func (e *Engine) HandleFrame(frame api.Buffer, now time.Time) { e.handleFrame(frame, now) }

func (e *Engine) handleFrame(frame api.Buffer, now time.Time) {
	data := frame.Bytes()
	eth, ok := qnet.DecodeEthernet(data)
	if !ok {
		return
	}
	payload := data[qnet.EthernetHeaderLen:]

	switch eth.EtherType {
	case qnet.EtherTypeARP:
		e.handleARP(payload)
	case qnet.EtherTypeIPv4:
		e.handleIPv4(payload, now)
	}
}

func (e *Engine) handleARP(payload []byte) {
	pkt, ok := qnet.DecodeARP(payload)
	if !ok {
		return
	}
	e.neigh.Learn(pkt.SenderIP, pkt.SenderMAC)
	if pkt.Op != qnet.ARPOpRequest || pkt.TargetIP != e.localIP {
		return
	}
	reply := qnet.ARPPacket{
		Op:        qnet.ARPOpReply,
		SenderMAC: e.localMAC,
		SenderIP:  e.localIP,
		TargetMAC: pkt.SenderMAC,
		TargetIP:  pkt.SenderIP,
	}
	e.sendEthernet(pkt.SenderMAC, qnet.EtherTypeARP, qnet.ARPHeaderLen, reply.Encode)
}

func (e *Engine) handleIPv4(payload []byte, now time.Time) {
	iph, ihl, ok := qnet.DecodeIPv4(payload)
	if !ok || iph.Protocol != qnet.ProtoTCP {
		return
	}
	tcpData := payload[ihl:int(iph.TotalLen)]
	seg, ok := Decode(tcpData, iph.Src, iph.Dst, e.offload)
	if !ok {
		return
	}

	tuple := FourTuple{LocalIP: iph.Dst, LocalPort: seg.DstPort, RemoteIP: iph.Src, RemotePort: seg.SrcPort}
	if tcb, ok := e.conns[tuple]; ok {
		if tcb.State == StateSynSent {
			e.feedSynSent(tcb, seg)
			return
		}
		e.feedEstablished(tcb, seg, now)
		return
	}

	key := listenKey{IP: iph.Dst, Port: seg.DstPort}
	l, ok := e.listeners[key]
	if !ok {
		key.IP = [4]byte{}
		l, ok = e.listeners[key]
	}
	if !ok {
		return
	}

	if half, ok := l.HalfOpen(tuple); ok {
		if completePassiveOpen(half, seg) {
			tcb, admitted := l.Promote(tuple)
			if !admitted {
				// Backlog filled by another connection that completed its
				// handshake first: reject this one instead of growing the
				// accept queue past capacity (spec.md §4.4.1).
				e.transmitSegment(tuple, tcb.ForceClose())
				return
			}
			e.conns[tuple] = tcb
		}
		return
	}
	if seg.Flags.SYN() && !seg.Flags.ACK() {
		iss := e.allocISS()
		tcb, synAck := beginPassiveOpen(tuple, l_options(l), seg, iss)
		if !l.AdmitSyn(tcb) {
			return // backlog full: drop the SYN, peer will retry
		}
		e.transmitSegment(tuple, synAck)
	}
}

// l_options derives a connection's Options from its listener; listeners
// in this engine always use DefaultOptions, overridable via future
// per-listener configuration.
func l_options(l *Listener) Options { return DefaultOptions() }

func (e *Engine) feedEstablished(tcb *TCB, seg Segment, now time.Time) {
	outcome, shouldAck := tcb.RecvSegment(seg, now)
	if tcb.PeerFIN {
		tcb.OnPeerFIN(now)
	}
	if outcome.AckedBytes > 0 || seg.Flags.ACK() {
		switch tcb.State {
		case StateFinWait1, StateClosing:
			if seg.Ack == tcb.Send.NXT {
				tcb.OnFINAck(now)
			}
		case StateLastAck:
			if seg.Ack == tcb.Send.NXT {
				tcb.OnFINAck(now)
			}
		}
	}
	if outcome.FastRetransmit {
		if rseg, ok := tcb.RetransmitOldest(now); ok {
			e.transmitSegment(tcb.Tuple, rseg)
		}
	}
	if shouldAck {
		e.transmitSegment(tcb.Tuple, tcb.BuildAck())
	}
	tcb.Waker.Wake()
}

// feedSynSent handles the second leg of an active open: before a
// connection reaches Established its sequence space isn't initialized,
// so the SYN-ACK can't go through the normal RecvSegment path.
func (e *Engine) feedSynSent(tcb *TCB, seg Segment) {
	if seg.Flags.RST() {
		tcb.State = StateClosed
		e.cancelPending(tcb)
		tcb.Waker.Wake()
		return
	}
	ackSeg, ok := handleSynAckAsActiveOpener(tcb, seg)
	if !ok {
		return
	}
	e.cancelPending(tcb)
	e.transmitSegment(tcb.Tuple, ackSeg)
	tcb.Waker.Wake()
}

func (e *Engine) cancelPending(tcb *TCB) {
	if tcb.PendingWait != nil {
		tcb.PendingWait.Cancel()
		tcb.PendingWait = nil
	}
}

func (e *Engine) allocISS() uint32 {
	e.nextISS += 64000 // RFC 793 §3.3 style coarse clock increment, simplified
	return e.nextISS
}

// transmitSegment encodes seg with its IPv4/Ethernet envelope and hands
// it to the driver, resolving the peer's MAC via the neighbor table.
func (e *Engine) transmitSegment(tuple FourTuple, seg Segment) {
	mac, ok := e.neigh.Lookup(tuple.RemoteIP)
	if !ok {
		return // unresolved neighbor: spec.md §2 drops silently pending ARP
	}

	body := make([]byte, qnet.IPv4HeaderLen+1480)
	tcpLen := seg.Encode(body[qnet.IPv4HeaderLen:], tuple.LocalIP, tuple.RemoteIP, e.offload)
	iph := qnet.IPv4Header{
		TotalLen: uint16(qnet.IPv4HeaderLen + tcpLen),
		TTL:      64,
		Protocol: qnet.ProtoTCP,
		Src:      tuple.LocalIP,
		Dst:      tuple.RemoteIP,
	}
	iph.Encode(body[:qnet.IPv4HeaderLen])
	body = body[:qnet.IPv4HeaderLen+tcpLen]

	e.sendEthernet(mac, qnet.EtherTypeIPv4, len(body), func(dst []byte) { copy(dst, body) })
}

func (e *Engine) sendEthernet(dst qnet.MAC, etherType uint16, payloadLen int, encodePayload func([]byte)) {
	frame := make([]byte, qnet.EthernetHeaderLen+payloadLen)
	eth := qnet.EthernetHeader{Dst: dst, Src: e.localMAC, EtherType: etherType}
	eth.Encode(frame[:qnet.EthernetHeaderLen])
	encodePayload(frame[qnet.EthernetHeaderLen:])
	_ = e.driver.Transmit(api.NewExternal(frame))
}

// Listen registers a passive-open listener. An empty IP means "any
// local address" (spec.md §4.5's wildcard bind).
func (e *Engine) Listen(addr api.SockAddr, backlog int) *Listener {
	l := NewListener(addr.IP, addr.Port, backlog)
	e.listeners[listenKey{IP: addr.IP, Port: addr.Port}] = l
	return l
}

// RegisterConn makes tcb reachable for inbound demultiplexing.
func (e *Engine) RegisterConn(tcb *TCB) { e.conns[tcb.Tuple] = tcb }

// Unregister drops tcb from the demux table once fully closed.
func (e *Engine) Unregister(tuple FourTuple) { delete(e.conns, tuple) }

// Scheduler exposes the underlying cooperative scheduler so the queue
// layer can Insert/Take Steps.
func (e *Engine) Scheduler() *concurrency.Scheduler { return e.sched }

// Now returns the engine's timer wheel's current notion of time.
func (e *Engine) Now() time.Time { return e.wheel.Now() }

// ArmTimer registers w to fire at deadline against the engine's wheel.
func (e *Engine) ArmTimer(deadline time.Time, w concurrency.Waker) concurrency.WaitStep {
	return e.wheel.Register(deadline, w)
}

// AllocISS exposes initial-sequence-number allocation to the connect
// path (kept internal to the package otherwise).
func (e *Engine) AllocISS() uint32 { return e.allocISS() }

// SendSegment exposes segment transmission to Step implementations in
// step.go without making transmitSegment itself exported.
func (e *Engine) SendSegment(tuple FourTuple, seg Segment) { e.transmitSegment(tuple, seg) }

// RetransmitQueueDepth sums unacked-segment counts across every live
// connection, for the metrics collector (internal/metrics).
func (e *Engine) RetransmitQueueDepth() int {
	depth := 0
	for _, tcb := range e.conns {
		depth += len(tcb.Unacked)
	}
	return depth
}
