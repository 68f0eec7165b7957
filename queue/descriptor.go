// File: queue/descriptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The queue descriptor table maps a QD to its concrete Queue (spec.md
// §4.5 "A queue descriptor table maps QD -> Queue"), reusing freed
// slots the way the teacher's generation-checked handle pools do,
// simplified here to a plain free-list since a QD itself carries no
// generation (closing and reopening the same small integer is
// intentional, per spec.md §3's "slot-reused after close").

package queue

import (
	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/sharedmem"
	"github.com/momentics/quanta-libos/internal/tcp"
	"github.com/momentics/quanta-libos/internal/udp"
)

// Kind identifies which protocol variant backs a Queue.
type Kind int

const (
	KindTCPListener Kind = iota
	KindTCPConn
	KindUDP
	KindSharedMem
)

// Queue is the concrete object a QD refers to. Exactly one of the
// protocol-specific fields is populated, selected by Kind.
type Queue struct {
	Kind   Kind
	QD     api.QD
	Closed bool

	TCPListener *tcp.Listener
	TCPConn     *tcp.TCB
	UDPEndpoint *udp.Endpoint
	SharedMem   sharedmem.Pipe

	// Pending lists every QT submitted against this QD, so Close can
	// cancel them all (spec.md §4.5 "close... attempts to cancel every
	// outstanding operation bound to it").
	Pending []api.QT
}

// DescriptorTable assigns and reclaims QDs.
type DescriptorTable struct {
	entries []*Queue
	free    []api.QD
}

func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{}
}

// Alloc creates a new Queue of the given kind and assigns it a QD,
// reusing the most recently freed slot if one exists.
func (t *DescriptorTable) Alloc(kind Kind) (api.QD, *Queue) {
	var qd api.QD
	if n := len(t.free); n > 0 {
		qd = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		qd = api.QD(len(t.entries))
		t.entries = append(t.entries, nil)
	}
	q := &Queue{Kind: kind, QD: qd}
	t.entries[qd] = q
	return qd, q
}

// Get resolves a QD to its Queue, if live.
func (t *DescriptorTable) Get(qd api.QD) (*Queue, bool) {
	if qd < 0 || int(qd) >= len(t.entries) {
		return nil, false
	}
	q := t.entries[qd]
	if q == nil {
		return nil, false
	}
	return q, true
}

// Live reports how many QDs are currently allocated, for the metrics
// collector (internal/metrics).
func (t *DescriptorTable) Live() int { return len(t.entries) - len(t.free) }

// Free reclaims qd for reuse. The caller must have already torn down
// whatever protocol object the Queue held.
func (t *DescriptorTable) Free(qd api.QD) {
	if qd < 0 || int(qd) >= len(t.entries) || t.entries[qd] == nil {
		return
	}
	t.entries[qd] = nil
	t.free = append(t.free, qd)
}
