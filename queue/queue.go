// File: queue/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Layer ties the descriptor and token tables to the scheduler,
// implementing spec.md §4.5's three operation patterns: submission,
// reaping (wait/try_wait) and close. It is deliberately unaware of TCP
// or UDP specifics — callers hand it an already-built concurrency.Step
// and an api.Opcode to tag the eventual CompletionRecord with; Layer
// only manages descriptor/token bookkeeping and scheduler polling, the
// same separation the teacher keeps between its executor and its
// higher-level connection/session objects.

package queue

import (
	"time"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
)

// Layer is the host-facing queue layer: QD table + QT table bound to a
// single cooperative Scheduler.
type Layer struct {
	sched       *concurrency.Scheduler
	descriptors *DescriptorTable
	tokens      *TokenTable
}

func NewLayer(sched *concurrency.Scheduler) *Layer {
	return &Layer{
		sched:       sched,
		descriptors: NewDescriptorTable(),
		tokens:      NewTokenTable(),
	}
}

func (l *Layer) Descriptors() *DescriptorTable { return l.descriptors }

// QDTableSize and InflightQTs back internal/metrics.Source.
func (l *Layer) QDTableSize() int { return l.descriptors.Live() }
func (l *Layer) InflightQTs() int { return l.tokens.Len() }

// Alloc creates a new Queue of the given kind.
func (l *Layer) Alloc(kind Kind) (api.QD, *Queue) {
	return l.descriptors.Alloc(kind)
}

// Submit validates qd, inserts step into the scheduler and mints a QT
// bound to both the queue and the opcode that produced it, per spec.md
// §4.5's submission pattern (validate -> Insert -> mint QT -> return).
func (l *Layer) Submit(qd api.QD, op api.Opcode, step concurrency.Step) (api.QT, *api.Error) {
	q, ok := l.descriptors.Get(qd)
	if !ok {
		return 0, api.ErrBadDescriptor
	}
	if q.Closed {
		return 0, api.NewError(api.ErrCodeBadDescriptor, "queue closed")
	}
	h := l.sched.Insert(step)
	qt := l.tokens.Mint(qd, h, op)
	q.Pending = append(q.Pending, qt)
	return qt, nil
}

// TryWait performs a single non-blocking reap attempt (spec.md §4.5
// step 1: resolve, and if completed, take and pack).
func (l *Layer) TryWait(qt api.QT) (result any, done bool, err *api.Error) {
	entry, ok := l.tokens.Resolve(qt)
	if !ok {
		return nil, false, api.ErrInvalidArgument
	}
	if entry.cancelled {
		l.tokens.Release(qt)
		return nil, true, api.ErrCancelled
	}
	if !l.sched.Completed(entry.Handle) {
		return nil, false, nil
	}
	result, _ = l.sched.Take(entry.Handle)
	l.tokens.Release(qt)
	return result, true, nil
}

// Wait busy-polls the scheduler (and, via tick, any timer wheel and
// network pump the caller supplies) until qt completes or timeout
// elapses. A zero timeout waits indefinitely. On timeout the QT remains
// valid and may be waited again (spec.md §4.5).
func (l *Layer) Wait(qt api.QT, timeout time.Duration, tick func()) (result any, err *api.Error) {
	entry, ok := l.tokens.Resolve(qt)
	if !ok {
		return nil, api.ErrInvalidArgument
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if entry.cancelled {
			l.tokens.Release(qt)
			return nil, api.ErrCancelled
		}
		if l.sched.Completed(entry.Handle) {
			result, _ = l.sched.Take(entry.Handle)
			l.tokens.Release(qt)
			return result, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, api.ErrTimedOut
		}
		tick()
	}
}

// Opcode reports the operation a still-live token was submitted for,
// so a caller packing a CompletionRecord doesn't need a side channel.
func (l *Layer) Opcode(qt api.QT) (api.Opcode, bool) {
	e, ok := l.tokens.Resolve(qt)
	if !ok {
		return 0, false
	}
	return e.op, true
}

// QD reports which descriptor a still-live token was submitted against.
func (l *Layer) QD(qt api.QT) (api.QD, bool) {
	e, ok := l.tokens.Resolve(qt)
	if !ok {
		return 0, false
	}
	return e.QD, true
}

// Close transitions qd to a terminal state and cancels every token
// still bound to it. Cancelled steps are torn out of the scheduler
// immediately (Take on a non-completed step is itself the cancellation
// primitive, internal/concurrency/scheduler.go); their tokens stay
// resolvable but flagged so a subsequent wait observes "cancelled"
// rather than "not found" (spec.md §4.5 close semantics).
func (l *Layer) Close(qd api.QD) *api.Error {
	q, ok := l.descriptors.Get(qd)
	if !ok {
		return api.ErrBadDescriptor
	}
	if q.Closed {
		return nil
	}
	q.Closed = true
	for _, qt := range q.Pending {
		entry, ok := l.tokens.Resolve(qt)
		if !ok || entry.cancelled {
			continue
		}
		if !l.sched.Completed(entry.Handle) {
			l.sched.Take(entry.Handle) // cancels the in-flight step
		}
		l.tokens.MarkCancelled(qt)
	}
	q.Pending = nil
	l.descriptors.Free(qd)
	return nil
}
