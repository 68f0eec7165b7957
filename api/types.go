// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: queue descriptors/tokens, socket
// domain/type, addresses and service introspection DTOs.

package api

import (
	"fmt"
	"time"
)

// QD is a dense small integer assigned at socket creation, slot-reused
// after close (spec.md §3).
type QD int32

// InvalidQD marks "no descriptor".
const InvalidQD QD = -1

// QT is an opaque identifier for a scheduled operation, stable from
// submission to reaping (spec.md §3).
type QT uint64

// Domain mirrors socket(2)'s address family argument; only IPv4 is supported.
type Domain int

const (
	DomainUnspecified Domain = iota
	DomainIPv4
)

// SockType selects the transport behind a QD.
type SockType int

const (
	TypeUnspecified SockType = iota
	TypeStream
	TypeDgram
)

// SockAddr is an IPv4 socket address.
type SockAddr struct {
	IP   [4]byte
	Port uint16
}

func (a SockAddr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.IP[0], a.IP[1], a.IP[2], a.IP[3], a.Port)
}

// ServiceInfo exposes descriptive build- and runtime info for external tools.
type ServiceInfo struct {
	Name      string
	Version   string
	Build     string
	StartedAt time.Time
}
