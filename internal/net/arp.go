// File: internal/net/arp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Minimal ARP request/reply codec and a static-or-learned neighbor table
// (spec.md §2 "IP / ARP / UDP", §6 "static ARP table (map IPv4->MAC)").

package net

import (
	"encoding/binary"
	"sync"
)

const (
	ARPHeaderLen = 28

	arpHTypeEthernet uint16 = 1
	arpPTypeIPv4     uint16 = 0x0800
	arpHLenEthernet  uint8  = 6
	arpPLenIPv4      uint8  = 4

	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

// ARPPacket is a decoded ARP request or reply for Ethernet/IPv4.
type ARPPacket struct {
	Op        uint16
	SenderMAC MAC
	SenderIP  [4]byte
	TargetMAC MAC
	TargetIP  [4]byte
}

// Encode writes the packet into buf, which must be at least ARPHeaderLen.
func (p ARPPacket) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], arpHTypeEthernet)
	binary.BigEndian.PutUint16(buf[2:4], arpPTypeIPv4)
	buf[4] = arpHLenEthernet
	buf[5] = arpPLenIPv4
	binary.BigEndian.PutUint16(buf[6:8], p.Op)
	copy(buf[8:14], p.SenderMAC[:])
	copy(buf[14:18], p.SenderIP[:])
	copy(buf[18:24], p.TargetMAC[:])
	copy(buf[24:28], p.TargetIP[:])
}

// DecodeARP parses an ARP packet, rejecting anything not Ethernet/IPv4.
func DecodeARP(buf []byte) (ARPPacket, bool) {
	if len(buf) < ARPHeaderLen {
		return ARPPacket{}, false
	}
	if binary.BigEndian.Uint16(buf[0:2]) != arpHTypeEthernet ||
		binary.BigEndian.Uint16(buf[2:4]) != arpPTypeIPv4 {
		return ARPPacket{}, false
	}
	var p ARPPacket
	p.Op = binary.BigEndian.Uint16(buf[6:8])
	copy(p.SenderMAC[:], buf[8:14])
	copy(p.SenderIP[:], buf[14:18])
	copy(p.TargetMAC[:], buf[18:24])
	copy(p.TargetIP[:], buf[24:28])
	return p, true
}

// NeighborTable resolves IPv4 addresses to MAC addresses, seeded from a
// static table (config.Options.StaticARP) and optionally updated by
// learned replies when DisableARP is false.
type NeighborTable struct {
	mu      sync.RWMutex
	entries map[[4]byte]MAC
	disabled bool
}

// NewNeighborTable seeds the table from a static map (nil seeds nothing);
// disableARP turns off learning, so only the static entries resolve.
func NewNeighborTable(static map[[4]byte][6]byte, disableARP bool) *NeighborTable {
	t := &NeighborTable{entries: make(map[[4]byte]MAC, len(static)), disabled: disableARP}
	for ip, mac := range static {
		t.entries[ip] = MAC(mac)
	}
	return t
}

// Lookup returns the MAC for ip, if known.
func (t *NeighborTable) Lookup(ip [4]byte) (MAC, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mac, ok := t.entries[ip]
	return mac, ok
}

// Learn records a (IP, MAC) pair observed from an ARP reply or gratuitous
// request. No-op when ARP is disabled (static-only deployments).
func (t *NeighborTable) Learn(ip [4]byte, mac MAC) {
	if t.disabled {
		return
	}
	t.mu.Lock()
	t.entries[ip] = mac
	t.mu.Unlock()
}
