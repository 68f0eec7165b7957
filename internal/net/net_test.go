// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package net

import "testing"

func TestIPv4RoundTrip(t *testing.T) {
	buf := make([]byte, IPv4HeaderLen)
	h := IPv4Header{
		TotalLen: IPv4HeaderLen + 8,
		TTL:      64,
		Protocol: ProtoUDP,
		Src:      [4]byte{10, 0, 0, 1},
		Dst:      [4]byte{10, 0, 0, 2},
	}
	h.Encode(buf)

	decoded, ihl, ok := DecodeIPv4(buf)
	if !ok {
		t.Fatal("expected valid IPv4 header")
	}
	if ihl != IPv4HeaderLen || decoded.Src != h.Src || decoded.Dst != h.Dst || decoded.Protocol != h.Protocol {
		t.Fatalf("round-trip mismatch: %+v", decoded)
	}
}

func TestIPv4CorruptedChecksumRejected(t *testing.T) {
	buf := make([]byte, IPv4HeaderLen)
	h := IPv4Header{TotalLen: IPv4HeaderLen, TTL: 64, Protocol: ProtoTCP}
	h.Encode(buf)
	buf[1] ^= 0xFF // corrupt TOS after checksum was computed

	if _, _, ok := DecodeIPv4(buf); ok {
		t.Fatal("corrupted header must fail checksum validation")
	}
}

func TestARPRoundTrip(t *testing.T) {
	buf := make([]byte, ARPHeaderLen)
	p := ARPPacket{
		Op:        ARPOpReply,
		SenderMAC: MAC{1, 2, 3, 4, 5, 6},
		SenderIP:  [4]byte{10, 0, 0, 1},
		TargetMAC: MAC{6, 5, 4, 3, 2, 1},
		TargetIP:  [4]byte{10, 0, 0, 2},
	}
	p.Encode(buf)

	decoded, ok := DecodeARP(buf)
	if !ok || decoded != p {
		t.Fatalf("ARP round-trip mismatch: %+v", decoded)
	}
}

func TestNeighborTableStaticAndLearned(t *testing.T) {
	static := map[[4]byte][6]byte{{10, 0, 0, 9}: {9, 9, 9, 9, 9, 9}}
	table := NewNeighborTable(static, false)

	if mac, ok := table.Lookup([4]byte{10, 0, 0, 9}); !ok || mac != (MAC{9, 9, 9, 9, 9, 9}) {
		t.Fatal("expected static entry to resolve")
	}

	table.Learn([4]byte{10, 0, 0, 2}, MAC{1, 1, 1, 1, 1, 1})
	if mac, ok := table.Lookup([4]byte{10, 0, 0, 2}); !ok || mac != (MAC{1, 1, 1, 1, 1, 1}) {
		t.Fatal("expected learned entry to resolve")
	}
}

func TestNeighborTableDisabledARPIgnoresLearn(t *testing.T) {
	table := NewNeighborTable(nil, true)
	table.Learn([4]byte{10, 0, 0, 2}, MAC{1, 1, 1, 1, 1, 1})
	if _, ok := table.Lookup([4]byte{10, 0, 0, 2}); ok {
		t.Fatal("disabled ARP must not learn")
	}
}
