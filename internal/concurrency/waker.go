// File: internal/concurrency/waker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Waker is handed to a Step so it can re-arm itself into the scheduler's
// ready queue from anywhere — a timer firing, bytes arriving on a
// connection, or a second call-site re-dispatching the same step.

package concurrency

// Waker re-queues the slot it was minted for into the ready queue. Firing a
// Waker for a slot whose generation has since changed (the step was taken
// or the connection torn down) is a safe no-op — this is how the scheduler
// breaks the TCB <-> step <-> scheduler reference cycle (spec.md §9).
type Waker struct {
	sched *Scheduler
	slot  int
	gen   uint64
}

// Wake re-queues the referenced slot, if it is still the same generation.
func (w Waker) Wake() {
	if w.sched == nil {
		return
	}
	w.sched.wake(w.slot, w.gen)
}
