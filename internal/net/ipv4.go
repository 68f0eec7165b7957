// File: internal/net/ipv4.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal IPv4 header codec, no options (spec.md §6 "Wire formats").

package net

import "encoding/binary"

const (
	IPv4HeaderLen = 20

	ProtoICMP uint8 = 1
	ProtoTCP  uint8 = 6
	ProtoUDP  uint8 = 17
)

// IPv4Header is a fixed, option-free IPv4 header.
type IPv4Header struct {
	TOS      uint8
	TotalLen uint16
	ID       uint16
	TTL      uint8
	Protocol uint8
	Src, Dst [4]byte
}

// Encode writes the 20-byte header into buf and always computes its
// checksum (spec.md §6 "tcp_checksum_offload" — IPv4's own header
// checksum has no separate offload knob; offload only applies to the
// TCP/UDP checksums).
func (h IPv4Header) Encode(buf []byte) {
	buf[0] = 0x45 // version 4, IHL 5 (20 bytes, no options)
	buf[1] = h.TOS
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(buf[4:6], h.ID)
	binary.BigEndian.PutUint16(buf[6:8], 0) // flags/fragment offset: no fragmentation
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum placeholder
	copy(buf[12:16], h.Src[:])
	copy(buf[16:20], h.Dst[:])
	cksum := Checksum(buf[0:IPv4HeaderLen], 0)
	binary.BigEndian.PutUint16(buf[10:12], cksum)
}

// DecodeIPv4 parses the header and validates its checksum. Per spec.md
// §7, a bad checksum is silently dropped at the wire layer — callers
// should treat a false return as "no segment delivered", not an error.
func DecodeIPv4(buf []byte) (IPv4Header, int, bool) {
	if len(buf) < IPv4HeaderLen {
		return IPv4Header{}, 0, false
	}
	if buf[0]>>4 != 4 {
		return IPv4Header{}, 0, false
	}
	ihl := int(buf[0]&0x0F) * 4
	if ihl < IPv4HeaderLen || len(buf) < ihl {
		return IPv4Header{}, 0, false
	}
	if Checksum(buf[0:ihl], 0) != 0 {
		return IPv4Header{}, 0, false
	}
	var h IPv4Header
	h.TOS = buf[1]
	h.TotalLen = binary.BigEndian.Uint16(buf[2:4])
	h.ID = binary.BigEndian.Uint16(buf[4:6])
	h.TTL = buf[8]
	h.Protocol = buf[9]
	copy(h.Src[:], buf[12:16])
	copy(h.Dst[:], buf[16:20])
	return h, ihl, true
}
