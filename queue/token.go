// File: queue/token.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The queue token table maps a QT to (QD, scheduler Handle) (spec.md
// §4.5). Tokens are minted from github.com/rs/xid so they are globally
// unique and roughly sortable without a shared counter, the way the
// teacher mints connection and session identifiers elsewhere in its
// control plane.

package queue

import (
	"encoding/binary"

	"github.com/rs/xid"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
)

type tokenEntry struct {
	QD        api.QD
	Handle    concurrency.Handle
	op        api.Opcode
	cancelled bool
}

// TokenTable owns the QT -> (QD, Handle) mapping.
type TokenTable struct {
	entries map[api.QT]*tokenEntry
}

func NewTokenTable() *TokenTable {
	return &TokenTable{entries: make(map[api.QT]*tokenEntry)}
}

// Mint allocates a fresh QT bound to qd, h and the opcode that created it.
func (t *TokenTable) Mint(qd api.QD, h concurrency.Handle, op api.Opcode) api.QT {
	// xid.Bytes() is [4-byte timestamp][3-byte machine][2-byte pid][3-byte
	// counter]; the low 8 bytes (b[4:12]) carry the whole machine/pid/
	// counter tail, the only part that varies between calls made within
	// the same wall-clock second. Truncating to the high 8 bytes instead
	// would collide on every mint within a second and never converge.
	id := xid.New()
	b := id.Bytes()
	qt := api.QT(binary.BigEndian.Uint64(b[4:12]))
	for {
		if _, exists := t.entries[qt]; !exists {
			break
		}
		// xid collision against a still-live token: re-mint.
		id = xid.New()
		b = id.Bytes()
		qt = api.QT(binary.BigEndian.Uint64(b[4:12]))
	}
	t.entries[qt] = &tokenEntry{QD: qd, Handle: h, op: op}
	return qt
}

// Resolve looks up a live token, returning ok=false once it has been
// released by a prior reap.
func (t *TokenTable) Resolve(qt api.QT) (*tokenEntry, bool) {
	e, ok := t.entries[qt]
	return e, ok
}

// Len reports how many tokens are still unresolved, for the metrics
// collector (internal/metrics).
func (t *TokenTable) Len() int { return len(t.entries) }

// Release removes qt once its result has been reaped.
func (t *TokenTable) Release(qt api.QT) {
	delete(t.entries, qt)
}

// MarkCancelled flags a still-outstanding token as cancelled without
// removing it, so a subsequent wait observes the cancellation instead
// of "not found" (spec.md §4.5 close semantics).
func (t *TokenTable) MarkCancelled(qt api.QT) {
	if e, ok := t.entries[qt]; ok {
		e.cancelled = true
	}
}
