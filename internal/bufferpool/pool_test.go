// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package bufferpool

import (
	"bytes"
	"testing"

	"github.com/momentics/quanta-libos/api"
)

func TestAllocSGAThenFreeIsIdentityOnInventory(t *testing.T) {
	p := New(1500, 4)
	before := p.Stats()

	sga, errv := p.AllocSGA(64)
	if errv != nil {
		t.Fatalf("alloc failed: %v", errv)
	}
	FreeSGA(sga)

	after := p.Stats()
	if before.InUse != after.InUse {
		t.Fatalf("pool inventory changed: before=%+v after=%+v", before, after)
	}
}

func TestAllocSGARejectsOversizedRequest(t *testing.T) {
	p := New(1500, 4)
	if _, errv := p.AllocSGA(2000); errv == nil {
		t.Fatal("expected resource-exhausted for oversized alloc")
	}
}

func TestIntoSGAThenCloneRoundTrips(t *testing.T) {
	p := New(1500, 4)
	payload := []byte("hello, libos")
	ext := api.NewExternal(payload)

	sga := p.IntoSGA(ext)
	clone := p.CloneSGA(sga)
	if !bytes.Equal(clone.Bytes(), payload) {
		t.Fatalf("round-trip mismatch: got %q want %q", clone.Bytes(), payload)
	}
	FreeSGA(sga)
}

func TestCloneSGAOnForeignCookieIsExternal(t *testing.T) {
	p := New(1500, 4)
	foreign := api.ScatterGather{
		Segments: []api.SGASegment{{Base: []byte("foreign")}},
		Cookie:   api.CookieExternal,
	}
	clone := p.CloneSGA(foreign)
	if clone.Kind != api.KindExternal {
		t.Fatal("clone of a foreign cookie must be External")
	}
}
