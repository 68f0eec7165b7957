// File: internal/tcp/segment.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP segment header encode/decode, built on internal/net's checksum
// and pseudo-header helpers (spec.md §6 "Wire formats").

package tcp

import (
	"encoding/binary"

	qnet "github.com/momentics/quanta-libos/internal/net"
)

const (
	HeaderLen = 20 // fixed header without options; a SYN carrying MSS adds a 4-byte option

	flagFIN uint8 = 1 << 0
	flagSYN uint8 = 1 << 1
	flagRST uint8 = 1 << 2
	flagPSH uint8 = 1 << 3
	flagACK uint8 = 1 << 4
	flagURG uint8 = 1 << 5
)

// Flags is a bitmask of the six RFC 793 control bits this engine uses.
type Flags uint8

func (f Flags) FIN() bool { return f&Flags(flagFIN) != 0 }
func (f Flags) SYN() bool { return f&Flags(flagSYN) != 0 }
func (f Flags) RST() bool { return f&Flags(flagRST) != 0 }
func (f Flags) PSH() bool { return f&Flags(flagPSH) != 0 }
func (f Flags) ACK() bool { return f&Flags(flagACK) != 0 }
func (f Flags) URG() bool { return f&Flags(flagURG) != 0 }

func MakeFlags(fin, syn, rst, psh, ack, urg bool) Flags {
	var f uint8
	if fin {
		f |= flagFIN
	}
	if syn {
		f |= flagSYN
	}
	if rst {
		f |= flagRST
	}
	if psh {
		f |= flagPSH
	}
	if ack {
		f |= flagACK
	}
	if urg {
		f |= flagURG
	}
	return Flags(f)
}

// Segment is a decoded TCP header plus its payload slice.
type Segment struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            Flags
	Window           uint16
	MSS              int // 0 if no MSS option was carried
	Payload          []byte
}

// Encode writes the segment into buf (which must be at least HeaderLen
// plus len(Payload) plus 4 if an MSS option is carried) and computes
// the TCP checksum over the IPv4 pseudo-header, unless offload is set.
func (s Segment) Encode(buf []byte, src, dst [4]byte, offload bool) int {
	hlen := HeaderLen
	withMSS := s.MSS > 0 && s.Flags.SYN()
	if withMSS {
		hlen += 4
	}

	binary.BigEndian.PutUint16(buf[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], s.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], s.Seq)
	binary.BigEndian.PutUint32(buf[8:12], s.Ack)
	buf[12] = byte(hlen/4) << 4
	buf[13] = byte(s.Flags)
	binary.BigEndian.PutUint16(buf[14:16], s.Window)
	binary.BigEndian.PutUint16(buf[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(buf[18:20], 0) // urgent pointer: unused

	off := HeaderLen
	if withMSS {
		buf[off] = 0x02
		buf[off+1] = 0x04
		binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(s.MSS))
		off += 4
	}
	n := copy(buf[off:], s.Payload)
	total := off + n

	if offload {
		return total
	}
	seed := qnet.PseudoHeaderSum(src, dst, qnet.ProtoTCP, uint16(total))
	cksum := qnet.Checksum(buf[0:total], seed)
	binary.BigEndian.PutUint16(buf[16:18], cksum)
	return total
}

// Decode parses a TCP segment, validating its checksum against the
// supplied pseudo-header addresses. A false return means "drop
// silently" per spec.md §7.
func Decode(buf []byte, src, dst [4]byte, skipChecksum bool) (Segment, bool) {
	if len(buf) < HeaderLen {
		return Segment{}, false
	}
	dataOff := int(buf[12]>>4) * 4
	if dataOff < HeaderLen || len(buf) < dataOff {
		return Segment{}, false
	}

	if !skipChecksum {
		seed := qnet.PseudoHeaderSum(src, dst, qnet.ProtoTCP, uint16(len(buf)))
		if qnet.Checksum(buf, seed) != 0 {
			return Segment{}, false
		}
	}

	var s Segment
	s.SrcPort = binary.BigEndian.Uint16(buf[0:2])
	s.DstPort = binary.BigEndian.Uint16(buf[2:4])
	s.Seq = binary.BigEndian.Uint32(buf[4:8])
	s.Ack = binary.BigEndian.Uint32(buf[8:12])
	s.Flags = Flags(buf[13])
	s.Window = binary.BigEndian.Uint16(buf[14:16])

	opts := buf[HeaderLen:dataOff]
	for len(opts) > 0 {
		switch opts[0] {
		case 0x00: // end of options
			opts = nil
		case 0x01: // NOP
			opts = opts[1:]
		case 0x02: // MSS
			if len(opts) < 4 {
				opts = nil
				break
			}
			s.MSS = int(binary.BigEndian.Uint16(opts[2:4]))
			opts = opts[4:]
		default:
			if len(opts) < 2 {
				opts = nil
				break
			}
			optLen := int(opts[1])
			if optLen < 2 || optLen > len(opts) {
				opts = nil
				break
			}
			opts = opts[optLen:]
		}
	}

	s.Payload = buf[dataOff:]
	return s, true
}

// SeqLen returns how many sequence numbers this segment consumes:
// payload length, plus one each for SYN and FIN.
func (s Segment) SeqLen() uint32 {
	n := uint32(len(s.Payload))
	if s.Flags.SYN() {
		n++
	}
	if s.Flags.FIN() {
		n++
	}
	return n
}
