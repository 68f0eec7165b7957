// File: api/completion.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion record returned by wait/try_wait (spec.md §6).

package api

// Opcode identifies which user call produced a CompletionRecord.
type Opcode int

const (
	OpAccept Opcode = iota
	OpConnect
	OpPush
	OpPushTo
	OpPop
	OpClose
)

func (o Opcode) String() string {
	switch o {
	case OpAccept:
		return "accept"
	case OpConnect:
		return "connect"
	case OpPush:
		return "push"
	case OpPushTo:
		return "pushto"
	case OpPop:
		return "pop"
	case OpClose:
		return "close"
	default:
		return "unknown"
	}
}

// AcceptResult is the value carried by a completed accept.
type AcceptResult struct {
	NewQD QD
	Peer  SockAddr
}

// PopResult is the value carried by a completed pop.
type PopResult struct {
	SGA ScatterGather
	EOF bool
	From SockAddr // set for datagram sockets
}

// CompletionRecord is what wait()/try_wait() hand back to user code.
type CompletionRecord struct {
	Opcode Opcode
	QD     QD
	Err    *Error // nil on success
	Accept AcceptResult
	Pop    PopResult
}

// OK reports whether the operation completed without error.
func (c CompletionRecord) OK() bool { return c.Err == nil }
