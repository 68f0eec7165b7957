// File: internal/tcp/reassembly.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Out-of-order segment reassembly: a gap list of pending ranges merged
// as new segments arrive (spec.md §4.4.3 "reassembly queue"). Grounded
// on the teacher's internal/concurrency ring buffer's merge-adjacent
// discipline, adapted here to sequence-number ranges instead of slots.

package tcp

import "sort"

// segRange is an out-of-order fragment awaiting delivery, keyed by the
// absolute sequence number of its first byte.
type segRange struct {
	Seq  uint32
	Data []byte
}

// ReassemblyQueue holds segments received ahead of the expected
// sequence number, merging and draining them once the gap closes.
type ReassemblyQueue struct {
	ranges []segRange
}

func NewReassemblyQueue() *ReassemblyQueue {
	return &ReassemblyQueue{}
}

// Insert records a fragment starting at seq. Overlap with an existing
// range is trimmed from the incoming data (duplicates are discarded,
// per spec.md §4.4.3's "discard duplicate bytes").
func (q *ReassemblyQueue) Insert(seq uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	q.ranges = append(q.ranges, segRange{Seq: seq, Data: data})
	sort.Slice(q.ranges, func(i, j int) bool {
		return int32(q.ranges[i].Seq-q.ranges[j].Seq) < 0
	})
	q.coalesce()
}

// coalesce merges overlapping or adjacent ranges in place.
func (q *ReassemblyQueue) coalesce() {
	if len(q.ranges) < 2 {
		return
	}
	merged := q.ranges[:1]
	for _, r := range q.ranges[1:] {
		last := &merged[len(merged)-1]
		lastEnd := last.Seq + uint32(len(last.Data))
		gap := int32(r.Seq - lastEnd)
		if gap > 0 {
			merged = append(merged, r)
			continue
		}
		// Overlapping or contiguous: drop any bytes already covered.
		overlap := int32(lastEnd - r.Seq)
		if overlap < int32(len(r.Data)) {
			last.Data = append(last.Data, r.Data[overlap:]...)
		}
	}
	q.ranges = merged
}

// Drain removes and returns the contiguous run starting exactly at
// expected, advancing the caller's RCV.NXT by the returned length.
func (q *ReassemblyQueue) Drain(expected uint32) ([]byte, bool) {
	if len(q.ranges) == 0 || q.ranges[0].Seq != expected {
		return nil, false
	}
	r := q.ranges[0]
	q.ranges = q.ranges[1:]
	return r.Data, true
}

// Empty reports whether any out-of-order data is pending.
func (q *ReassemblyQueue) Empty() bool { return len(q.ranges) == 0 }

// NextGapStart returns the sequence number of the first byte still
// outstanding before the earliest buffered range, used to decide
// whether an incoming segment fills the head-of-line gap.
func (q *ReassemblyQueue) NextGapStart() (uint32, bool) {
	if len(q.ranges) == 0 {
		return 0, false
	}
	return q.ranges[0].Seq, true
}
