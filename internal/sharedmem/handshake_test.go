// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package sharedmem

import (
	"testing"

	"github.com/momentics/quanta-libos/internal/concurrency"
)

// TestHandshakeCompletesFourSteps drives the client and server Steps
// through a real scheduler until both resolve to a connected data pipe.
func TestHandshakeCompletesFourSteps(t *testing.T) {
	clientControl, serverControl := NewMemPipePair()

	var serverDataPipe *MemPipe
	factory := func() (uint16, Pipe) {
		_, server := NewMemPipePair()
		serverDataPipe = server
		return 7, server
	}
	opener := func(port uint16) Pipe {
		if port != 7 {
			t.Fatalf("unexpected port %d", port)
		}
		client, _ := NewMemPipePair()
		// Rewire so the client's pipe is the true peer of serverDataPipe,
		// mimicking how a real opener would dial the port the server
		// advertised rather than create an unrelated pair.
		client.peer = serverDataPipe
		serverDataPipe.peer = client
		return client
	}

	sched := concurrency.NewScheduler()
	clientHandle := sched.Insert(NewClientStep(clientControl, opener))
	serverHandle := sched.Insert(NewServerStep(serverControl, factory))

	var clientDone, serverDone bool
	for i := 0; i < 20 && !(clientDone && serverDone); i++ {
		sched.Poll()
		clientDone = sched.Completed(clientHandle)
		serverDone = sched.Completed(serverHandle)
	}
	if !clientDone || !serverDone {
		t.Fatal("handshake did not complete within the poll budget")
	}

	clientRes, _ := sched.Take(clientHandle)
	serverRes, _ := sched.Take(serverHandle)

	cr := clientRes.(ClientResult)
	sr := serverRes.(ServerResult)
	if cr.Err != nil {
		t.Fatalf("client handshake failed: %v", cr.Err)
	}
	if sr.Err != nil {
		t.Fatalf("server handshake failed: %v", sr.Err)
	}
	if cr.DataPipe == nil || sr.DataPipe == nil {
		t.Fatal("both sides must end up with a data pipe")
	}

	if err := cr.DataPipe.Push([]byte("ping")); err != nil {
		t.Fatalf("post-handshake push failed: %v", err)
	}
	data, ok := sr.DataPipe.Pop(0)
	if !ok || string(data) != "ping" {
		t.Fatalf("expected to read back 'ping' over the established data pipe, got %q ok=%v", data, ok)
	}
}

func TestServerIgnoresInvalidMagicWithoutConsumingSlot(t *testing.T) {
	clientControl, serverControl := NewMemPipePair()
	factory := func() (uint16, Pipe) {
		_, server := NewMemPipePair()
		return 1, server
	}

	sched := concurrency.NewScheduler()
	serverHandle := sched.Insert(NewServerStep(serverControl, factory))

	_ = clientControl.Push([]byte("bogus"))
	sched.Poll()
	if sched.Completed(serverHandle) {
		t.Fatal("invalid magic must not complete the server step")
	}
}
