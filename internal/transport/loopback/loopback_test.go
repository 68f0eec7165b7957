// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package loopback

import (
	"bytes"
	"testing"

	"github.com/momentics/quanta-libos/api"
)

func TestLoopbackPairDeliversFrames(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	payload := []byte("frame-content")
	if err := a.Transmit(api.NewExternal(payload)); err != nil {
		t.Fatalf("transmit: %v", err)
	}

	out := make([]api.Buffer, 4)
	n, err := b.ReceiveBurst(out)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if n != 1 || !bytes.Equal(out[0].Bytes(), payload) {
		t.Fatalf("unexpected burst: n=%d data=%v", n, out[:n])
	}
}

func TestLoopbackClosedTransmitFails(t *testing.T) {
	a, b := NewPair()
	a.Close()
	b.Close()
	if err := a.Transmit(api.NewExternal([]byte("x"))); err == nil {
		t.Fatal("expected error transmitting on a closed driver")
	}
}
