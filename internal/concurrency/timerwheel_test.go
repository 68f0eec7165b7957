// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"testing"
	"time"
)

func TestTimerWheelFiresAtDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	w := NewTimerWheel(start)
	s := NewScheduler()
	step := &countStep{done: 2}
	h := s.Insert(step)
	s.Poll() // drains the initial ready insert; the step stays pending until its second poll

	waker := Waker{sched: s, slot: h.Slot, gen: h.Gen}
	w.Register(start.Add(50*time.Millisecond), waker)

	w.AdvanceTo(start.Add(10 * time.Millisecond))
	s.Poll()
	if s.Completed(h) {
		t.Fatal("timer fired too early")
	}

	w.AdvanceTo(start.Add(50 * time.Millisecond))
	s.Poll()
	if !s.Completed(h) {
		t.Fatal("timer should have fired by its deadline")
	}
}

func TestTimerWheelCancellationIsLazy(t *testing.T) {
	start := time.Unix(0, 0)
	w := NewTimerWheel(start)
	s := NewScheduler()
	h := s.Insert(&countStep{done: 2})
	s.Poll()

	waker := Waker{sched: s, slot: h.Slot, gen: h.Gen}
	ws := w.Register(start.Add(10*time.Millisecond), waker)
	ws.Cancel()

	w.AdvanceTo(start.Add(20 * time.Millisecond))
	s.Poll()
	if s.Completed(h) {
		t.Fatal("cancelled timer must not fire the waker")
	}
}

func TestTimerWheelMonotonicNow(t *testing.T) {
	start := time.Unix(100, 0)
	w := NewTimerWheel(start)
	w.AdvanceTo(start.Add(time.Second))
	if w.Now().Before(start) {
		t.Fatal("Now must be nondecreasing")
	}
	before := w.Now()
	w.AdvanceTo(before.Add(-time.Second)) // attempted regression: AdvanceTo ignores an earlier instant
	if w.Now().Before(before) {
		t.Fatal("AdvanceTo with an earlier instant must not move Now backwards")
	}
}
