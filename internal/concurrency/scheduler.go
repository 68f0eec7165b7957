// File: internal/concurrency/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler is the single-threaded cooperative executor of spec.md §4.3:
// every per-connection state machine is hosted as a Step, a lazy sequence
// of polling steps. The scheduler owns a dense slot array, one ready
// queue over it, and a per-slot ready/waiting/completed state, following the
// generation-checked handle pattern the teacher's executor/worker pool
// used for safe dynamic resizing (internal/concurrency/executor.go), here
// applied to per-step slots instead of worker goroutines.

package concurrency

import "github.com/eapache/queue"

// Step is any unit of work the scheduler can drive to completion or
// suspension. Poll must not block; returning ready=false means the step
// parked itself and will call w.Wake() later to be re-polled.
type Step interface {
	Poll(w Waker) (result any, ready bool)
}

type slotState int

const (
	stateFree slotState = iota
	stateReady
	stateWaiting
	stateCompleted
)

type slot struct {
	state      slotState
	gen        uint64
	step       Step
	result     any
	wokeEarly  bool // Waker fired while this slot was mid-Poll (self-reschedule)
}

// Handle is a stable (slot, generation) reference to a scheduled Step.
// Resolving a stale handle (generation mismatch) yields "not present"
// rather than panicking.
type Handle struct {
	Slot int
	Gen  uint64
}

// Raw packs a Handle into the 64-bit form a Queue Token's scheduler
// component carries (spec.md §4.5): generation in the high 32 bits, slot
// index in the low 32 bits.
func (h Handle) Raw() uint64 {
	return uint64(uint32(h.Gen))<<32 | uint64(uint32(h.Slot))
}

// Scheduler drives Steps to completion. It is not safe for concurrent use;
// the outer event loop is the sole caller (spec.md §5).
type Scheduler struct {
	slots []slot
	free  []int
	ready *queue.Queue // holds slot indices (int)
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{ready: queue.New()}
}

// Insert registers step, returning a stable Handle. The step is placed
// directly into the ready queue so the next Poll() drives it at least once.
func (s *Scheduler) Insert(step Step) Handle {
	idx := s.allocSlot()
	sl := &s.slots[idx]
	sl.state = stateReady
	sl.step = step
	sl.result = nil
	s.ready.Add(idx)
	return Handle{Slot: idx, Gen: sl.gen}
}

func (s *Scheduler) allocSlot() int {
	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		return idx
	}
	s.slots = append(s.slots, slot{})
	return len(s.slots) - 1
}

// Poll drains the ready queue once: every slot ready at the moment Poll was
// called gets exactly one Step.Poll call this round. Steps that return
// Pending move to waiting; steps newly made ready by a Waker firing during
// this round are picked up on the *next* Poll call, matching spec.md
// §4.3's "drains the ready queue once" contract.
func (s *Scheduler) Poll() {
	n := s.ready.Length()
	for i := 0; i < n; i++ {
		idx := s.ready.Remove().(int)
		sl := &s.slots[idx]
		if sl.state != stateReady {
			continue // stale entry for a freed/cancelled slot
		}
		sl.wokeEarly = false
		w := Waker{sched: s, slot: idx, gen: sl.gen}
		result, ready := sl.step.Poll(w)
		switch {
		case ready:
			sl.state = stateCompleted
			sl.result = result
		case sl.wokeEarly:
			// The step called Wake on itself synchronously (self-reschedule)
			// before we had a chance to mark it waiting; honor it now.
			sl.state = stateReady
			s.ready.Add(idx)
		default:
			sl.state = stateWaiting
		}
	}
}

// wake re-queues slot if gen still matches and it is currently waiting (or
// ready already — idempotent). A stale generation is a silent no-op,
// breaking the TCB<->step<->scheduler reference cycle (spec.md §9).
func (s *Scheduler) wake(idx int, gen uint64) {
	if idx < 0 || idx >= len(s.slots) {
		return
	}
	sl := &s.slots[idx]
	if sl.gen != gen {
		return
	}
	switch sl.state {
	case stateWaiting:
		sl.state = stateReady
		s.ready.Add(idx)
	case stateReady:
		sl.wokeEarly = true
	}
}

// FromRaw decodes a packed Handle and validates it is still live.
func (s *Scheduler) FromRaw(raw uint64) (Handle, bool) {
	h := Handle{Slot: int(uint32(raw)), Gen: uint64(uint32(raw >> 32))}
	if h.Slot < 0 || h.Slot >= len(s.slots) {
		return Handle{}, false
	}
	if s.slots[h.Slot].gen != h.Gen || s.slots[h.Slot].state == stateFree {
		return Handle{}, false
	}
	return h, true
}

// Completed reports whether h's step has produced a result.
func (s *Scheduler) Completed(h Handle) bool {
	if h.Slot < 0 || h.Slot >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.Slot]
	return sl.gen == h.Gen && sl.state == stateCompleted
}

// Take removes h's slot, bumping its generation so any late Waker becomes a
// no-op, and returns the step's result if it had completed. Calling Take on
// a Pending step cancels it: destruction here must be (and is) O(1) and
// synchronous, per spec.md §4.3 and §5.
func (s *Scheduler) Take(h Handle) (result any, completed bool) {
	if h.Slot < 0 || h.Slot >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[h.Slot]
	if sl.gen != h.Gen || sl.state == stateFree {
		return nil, false
	}
	result, completed = sl.result, sl.state == stateCompleted
	sl.state = stateFree
	sl.step = nil
	sl.result = nil
	sl.gen++
	s.free = append(s.free, h.Slot)
	return result, completed
}
