// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"testing"
	"time"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
)

type fixedStep struct {
	after  int
	calls  int
	result any
}

func (s *fixedStep) Poll(w concurrency.Waker) (any, bool) {
	s.calls++
	if s.calls <= s.after {
		w.Wake()
		return nil, false
	}
	return s.result, true
}

func TestSubmitAndWaitReturnsResult(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	qd, _ := layer.Alloc(KindUDP)

	qt, err := layer.Submit(qd, api.OpPush, &fixedStep{after: 2, result: "done"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	result, werr := layer.Wait(qt, 0, func() { sched.Poll() })
	if werr != nil {
		t.Fatalf("wait failed: %v", werr)
	}
	if result != "done" {
		t.Fatalf("expected 'done', got %v", result)
	}
}

func TestTryWaitNonBlocking(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	qd, _ := layer.Alloc(KindUDP)

	qt, _ := layer.Submit(qd, api.OpPop, &fixedStep{after: 1, result: 42})

	if _, done, _ := layer.TryWait(qt); done {
		t.Fatal("expected not-yet-complete on first try")
	}
	sched.Poll()
	sched.Poll()
	result, done, err := layer.TryWait(qt)
	if !done || err != nil {
		t.Fatalf("expected completion, got done=%v err=%v", done, err)
	}
	if result != 42 {
		t.Fatalf("expected 42, got %v", result)
	}
}

func TestWaitTimesOutAndTokenStaysValid(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	qd, _ := layer.Alloc(KindUDP)

	qt, _ := layer.Submit(qd, api.OpPush, &fixedStep{after: 1000, result: "never"})

	_, err := layer.Wait(qt, time.Nanosecond, func() { sched.Poll() })
	if err == nil || err.Code != api.ErrCodeTimedOut {
		t.Fatalf("expected timed-out error, got %v", err)
	}
	// Token must remain resolvable for a subsequent wait.
	if _, ok := layer.tokens.Resolve(qt); !ok {
		t.Fatal("token should remain valid after a timeout")
	}
}

func TestCloseCancelsOutstandingOperations(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	qd, _ := layer.Alloc(KindUDP)

	qt, _ := layer.Submit(qd, api.OpPop, &fixedStep{after: 1000, result: "never"})

	if err := layer.Close(qd); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_, done, err := layer.TryWait(qt)
	if !done || err == nil || err.Code != api.ErrCodeCancelled {
		t.Fatalf("expected cancelled completion, got done=%v err=%v", done, err)
	}

	if _, ok := layer.descriptors.Get(qd); ok {
		t.Fatal("qd should have been freed by close")
	}
}

func TestSubmitOnClosedQueueIsRejected(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	qd, _ := layer.Alloc(KindUDP)
	layer.Close(qd)

	if _, err := layer.Submit(qd, api.OpPush, &fixedStep{result: "x"}); err == nil {
		t.Fatal("expected submission to a freed qd to fail")
	}
}

func TestSubmitOnUnknownQDFails(t *testing.T) {
	sched := concurrency.NewScheduler()
	layer := NewLayer(sched)
	if _, err := layer.Submit(api.QD(99), api.OpPush, &fixedStep{result: "x"}); err == nil {
		t.Fatal("expected bad descriptor error")
	}
}

func TestDescriptorTableReusesFreedSlots(t *testing.T) {
	table := NewDescriptorTable()
	qd1, _ := table.Alloc(KindTCPConn)
	table.Free(qd1)
	qd2, _ := table.Alloc(KindUDP)
	if qd1 != qd2 {
		t.Fatalf("expected freed slot %d to be reused, got %d", qd1, qd2)
	}
}
