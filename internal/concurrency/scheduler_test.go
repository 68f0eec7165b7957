// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "testing"

type countStep struct {
	polls int
	done  int
}

func (c *countStep) Poll(w Waker) (any, bool) {
	c.polls++
	if c.polls >= c.done {
		return c.polls, true
	}
	return nil, false
}

func TestSchedulerInsertPollTake(t *testing.T) {
	s := NewScheduler()
	step := &countStep{done: 3}
	h := s.Insert(step)

	s.Poll()
	if s.Completed(h) {
		t.Fatal("should not be completed after one poll")
	}

	// A step that returned Pending stays idle until woken; nothing re-adds
	// it automatically, so simulate an external waker (e.g. bytes arrived).
	s.wake(h.Slot, h.Gen)
	s.Poll()
	s.wake(h.Slot, h.Gen)
	s.Poll()

	if !s.Completed(h) {
		t.Fatal("expected step to be completed after three polls")
	}
	result, ok := s.Take(h)
	if !ok || result.(int) != 3 {
		t.Fatalf("unexpected Take result: %v, %v", result, ok)
	}

	if _, ok := s.Take(h); ok {
		t.Fatal("second Take on the same handle must report absent")
	}
}

func TestSchedulerStaleHandleAfterTake(t *testing.T) {
	s := NewScheduler()
	h := s.Insert(&countStep{done: 1})
	s.Poll()
	s.Take(h)

	if _, ok := s.FromRaw(h.Raw()); ok {
		t.Fatal("stale handle must resolve as absent")
	}

	h2 := s.Insert(&countStep{done: 1})
	if h2.Slot == h.Slot && h2.Gen == h.Gen {
		t.Fatal("reused slot must bump generation")
	}
}

func TestSchedulerCancelPendingStepIsSynchronous(t *testing.T) {
	s := NewScheduler()
	step := &countStep{done: 100}
	h := s.Insert(step)
	s.Poll() // one poll, still pending

	result, completed := s.Take(h)
	if completed {
		t.Fatal("pending step must not report completed")
	}
	if result != nil {
		t.Fatal("cancelled step carries no result")
	}

	// Slot is now free; a late waker referencing the old generation must
	// be a silent no-op, not a panic or a write into a reused slot.
	s.wake(h.Slot, h.Gen)
}
