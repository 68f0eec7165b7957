// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package tcp

import "testing"

func TestSegmentRoundTripWithMSSOption(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	seg := Segment{
		SrcPort: 1234, DstPort: 80,
		Seq: 100, Ack: 200,
		Flags:   MakeFlags(false, true, false, false, true, false),
		Window:  4096,
		MSS:     1460,
		Payload: []byte("hello"),
	}
	buf := make([]byte, 64)
	n := seg.Encode(buf, src, dst, false)

	decoded, ok := Decode(buf[:n], src, dst, false)
	if !ok {
		t.Fatal("expected segment to decode with a valid checksum")
	}
	if decoded.SrcPort != seg.SrcPort || decoded.DstPort != seg.DstPort ||
		decoded.Seq != seg.Seq || decoded.Ack != seg.Ack || decoded.MSS != seg.MSS {
		t.Fatalf("round-trip header mismatch: %+v", decoded)
	}
	if string(decoded.Payload) != "hello" {
		t.Fatalf("round-trip payload mismatch: %q", decoded.Payload)
	}
}

func TestSegmentCorruptedChecksumRejected(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	seg := Segment{SrcPort: 1, DstPort: 2, Flags: MakeFlags(false, false, false, false, true, false)}
	buf := make([]byte, HeaderLen)
	seg.Encode(buf, src, dst, false)
	buf[0] ^= 0xFF

	if _, ok := Decode(buf, src, dst, false); ok {
		t.Fatal("corrupted segment must fail checksum validation")
	}
}

func TestSegmentOffloadSkipsChecksum(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	seg := Segment{SrcPort: 1, DstPort: 2, Flags: MakeFlags(false, false, false, false, true, false)}
	buf := make([]byte, HeaderLen)
	n := seg.Encode(buf, src, dst, true)

	if _, ok := Decode(buf[:n], src, dst, true); !ok {
		t.Fatal("offloaded segment must decode without checksum validation")
	}
}

func TestSeqLenCountsSYNAndFIN(t *testing.T) {
	seg := Segment{Flags: MakeFlags(true, true, false, false, false, false), Payload: []byte("ab")}
	if seg.SeqLen() != 4 {
		t.Fatalf("expected SeqLen 4 (2 payload + SYN + FIN), got %d", seg.SeqLen())
	}
}
