// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package udp

import (
	"bytes"
	"testing"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/net"
	"github.com/momentics/quanta-libos/internal/transport/loopback"
)

// TestUDPLoopbackExchange reproduces the canonical ALICE/BOB scenario:
// two hosts wired by a loopback transport pair exchange a 32-byte
// buffer of 0x5A.
func TestUDPLoopbackExchange(t *testing.T) {
	aliceDriver, bobDriver := loopback.NewPair()

	aliceIP := [4]byte{10, 0, 0, 1}
	bobIP := [4]byte{10, 0, 0, 2}
	aliceMAC := net.MAC{1, 1, 1, 1, 1, 1}
	bobMAC := net.MAC{2, 2, 2, 2, 2, 2}

	aliceNeigh := net.NewNeighborTable(map[[4]byte][6]byte{bobIP: bobMAC}, true)
	bobNeigh := net.NewNeighborTable(map[[4]byte][6]byte{aliceIP: aliceMAC}, true)

	alice := NewEngine(aliceDriver, aliceIP, aliceMAC, aliceNeigh, false)
	bob := NewEngine(bobDriver, bobIP, bobMAC, bobNeigh, false)

	bobAddr := api.SockAddr{IP: bobIP, Port: 9000}
	aliceAddr := api.SockAddr{IP: aliceIP, Port: 9001}
	bobEP := bob.Bind(bobAddr)

	payload := bytes.Repeat([]byte{0x5A}, 32)
	if err := alice.Send(aliceAddr, bobAddr, payload); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := bob.PumpNetwork(8); err != nil {
		t.Fatalf("pump failed: %v", err)
	}

	dg, ok := bobEP.Pop()
	if !ok {
		t.Fatal("expected a delivered datagram")
	}
	if dg.From != aliceAddr {
		t.Fatalf("expected sender %v, got %v", aliceAddr, dg.From)
	}
	if !bytes.Equal(dg.Payload, payload) {
		t.Fatalf("payload mismatch: got %x", dg.Payload)
	}
}

func TestUDPUnboundPortIsDroppedSilently(t *testing.T) {
	aliceDriver, bobDriver := loopback.NewPair()
	aliceIP := [4]byte{10, 0, 0, 1}
	bobIP := [4]byte{10, 0, 0, 2}
	aliceMAC := net.MAC{1, 1, 1, 1, 1, 1}
	bobMAC := net.MAC{2, 2, 2, 2, 2, 2}
	neigh := net.NewNeighborTable(map[[4]byte][6]byte{bobIP: bobMAC}, true)

	alice := NewEngine(aliceDriver, aliceIP, aliceMAC, neigh, false)
	bob := NewEngine(bobDriver, bobIP, bobMAC, net.NewNeighborTable(nil, true), false)

	if err := alice.Send(api.SockAddr{IP: aliceIP, Port: 1}, api.SockAddr{IP: bobIP, Port: 9999}, []byte("x")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := bob.PumpNetwork(8); err != nil {
		t.Fatalf("pump failed: %v", err)
	}
	if len(bob.endpoints) != 0 {
		t.Fatal("no endpoint should have been created by an unbound delivery")
	}
}
