// File: internal/udp/udp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connectionless UDP endpoint: one per bound (IP, port), demultiplexed
// straight off the IPv4 layer with no handshake or retransmission
// (spec.md §4.2's UDP component: "no flow state beyond the bound
// address"), grounded on the same demux discipline as internal/tcp's
// Engine but stripped of everything sequence-number related.

package udp

import (
	"github.com/eapache/queue"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
	qnet "github.com/momentics/quanta-libos/internal/net"
)

// Datagram is one delivered UDP payload plus its sender.
type Datagram struct {
	From    api.SockAddr
	Payload []byte
}

// Endpoint is a bound UDP socket's receive queue and waiting poppers.
type Endpoint struct {
	LocalIP   [4]byte
	LocalPort uint16

	inbound *queue.Queue // holds Datagram
	wakers  []concurrency.Waker
}

func newEndpoint(ip [4]byte, port uint16) *Endpoint {
	return &Endpoint{LocalIP: ip, LocalPort: port, inbound: queue.New()}
}

func (e *Endpoint) deliver(d Datagram) {
	e.inbound.Add(d)
	for _, w := range e.wakers {
		w.Wake()
	}
	e.wakers = nil
}

// Pop removes the oldest queued datagram, if any.
func (e *Endpoint) Pop() (Datagram, bool) {
	if e.inbound.Length() == 0 {
		return Datagram{}, false
	}
	return e.inbound.Remove().(Datagram), true
}

// ParkPop registers w to be woken when a datagram arrives.
func (e *Endpoint) ParkPop(w concurrency.Waker) {
	e.wakers = append(e.wakers, w)
}

// Engine demultiplexes inbound UDP datagrams to bound Endpoints and
// encodes outbound ones, reusing the same Ethernet/IPv4 framing and
// neighbor resolution as the TCP engine.
type Engine struct {
	driver   api.TransportDriver
	neigh    *qnet.NeighborTable
	localIP  [4]byte
	localMAC qnet.MAC
	offload  bool

	endpoints map[key]*Endpoint
}

type key struct {
	IP   [4]byte
	Port uint16
}

func NewEngine(driver api.TransportDriver, localIP [4]byte, localMAC qnet.MAC, neigh *qnet.NeighborTable, checksumOffload bool) *Engine {
	return &Engine{
		driver:    driver,
		neigh:     neigh,
		localIP:   localIP,
		localMAC:  localMAC,
		offload:   checksumOffload,
		endpoints: make(map[key]*Endpoint),
	}
}

// Bind creates (or returns the existing) endpoint for addr.
func (e *Engine) Bind(addr api.SockAddr) *Endpoint {
	k := key{IP: addr.IP, Port: addr.Port}
	if ep, ok := e.endpoints[k]; ok {
		return ep
	}
	ep := newEndpoint(addr.IP, addr.Port)
	e.endpoints[k] = ep
	return ep
}

// Unbind removes an endpoint, dropping any undelivered datagrams.
func (e *Engine) Unbind(addr api.SockAddr) {
	delete(e.endpoints, key{IP: addr.IP, Port: addr.Port})
}

// PumpNetwork drains inbound frames and delivers UDP payloads to bound
// endpoints, ignoring anything else (spec.md §7: silent drop on an
// IPv4 header checksum failure or no matching bind). The UDP checksum
// itself is not verified on receive.
func (e *Engine) PumpNetwork(budget int) error {
	frames := make([]api.Buffer, budget)
	n, err := e.driver.ReceiveBurst(frames)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		e.handleFrame(frames[i])
		frames[i].Release()
	}
	return nil
}

// HandleFrame feeds a single already-demultiplexed frame into the
// engine. Exported for the same reason as tcp.Engine.HandleFrame: a
// host sharing one TransportDriver across both protocol engines
// (libos.LibOS) sniffs the frame once and routes it here instead of
// this engine independently draining the driver's queue.
func (e *Engine) HandleFrame(frame api.Buffer) { e.handleFrame(frame) }

func (e *Engine) handleFrame(frame api.Buffer) {
	data := frame.Bytes()
	eth, ok := qnet.DecodeEthernet(data)
	if !ok || eth.EtherType != qnet.EtherTypeIPv4 {
		return
	}
	payload := data[qnet.EthernetHeaderLen:]
	iph, ihl, ok := qnet.DecodeIPv4(payload)
	if !ok || iph.Protocol != qnet.ProtoUDP {
		return
	}
	udpData := payload[ihl:int(iph.TotalLen)]
	hdr, ok := qnet.DecodeUDP(udpData)
	if !ok {
		return
	}

	ep, ok := e.endpoints[key{IP: iph.Dst, Port: hdr.DstPort}]
	if !ok {
		ep, ok = e.endpoints[key{Port: hdr.DstPort}] // wildcard bind
		if !ok {
			return
		}
	}
	payloadBytes := make([]byte, len(udpData)-qnet.UDPHeaderLen)
	copy(payloadBytes, udpData[qnet.UDPHeaderLen:])
	ep.deliver(Datagram{From: api.SockAddr{IP: iph.Src, Port: hdr.SrcPort}, Payload: payloadBytes})
}

// Send transmits one datagram from local to dst.
func (e *Engine) Send(local, dst api.SockAddr, payload []byte) error {
	mac, ok := e.neigh.Lookup(dst.IP)
	if !ok {
		return api.ErrUnreachable
	}

	udpLen := qnet.UDPHeaderLen + len(payload)
	ipBody := make([]byte, qnet.IPv4HeaderLen+udpLen)
	hdr := qnet.UDPHeader{SrcPort: local.Port, DstPort: dst.Port, Length: uint16(udpLen)}
	hdr.Encode(ipBody[qnet.IPv4HeaderLen:], payload, local.IP, dst.IP, e.offload)
	copy(ipBody[qnet.IPv4HeaderLen+qnet.UDPHeaderLen:], payload)

	iph := qnet.IPv4Header{
		TotalLen: uint16(len(ipBody)),
		TTL:      64,
		Protocol: qnet.ProtoUDP,
		Src:      local.IP,
		Dst:      dst.IP,
	}
	iph.Encode(ipBody[:qnet.IPv4HeaderLen])

	frame := make([]byte, qnet.EthernetHeaderLen+len(ipBody))
	ethHdr := qnet.EthernetHeader{Dst: mac, Src: e.localMAC, EtherType: qnet.EtherTypeIPv4}
	ethHdr.Encode(frame[:qnet.EthernetHeaderLen])
	copy(frame[qnet.EthernetHeaderLen:], ipBody)

	return e.driver.Transmit(api.NewExternal(frame))
}

// PopStep implements concurrency.Step, parking until a datagram
// arrives on ep.
type PopStep struct {
	ep *Endpoint
}

func NewPopStep(ep *Endpoint) *PopStep { return &PopStep{ep: ep} }

func (s *PopStep) Poll(w concurrency.Waker) (any, bool) {
	if d, ok := s.ep.Pop(); ok {
		return d, true
	}
	s.ep.ParkPop(w)
	return nil, false
}
