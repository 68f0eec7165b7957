// File: internal/sharedmem/handshake.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The four-step MAGIC_CONNECT handshake (spec.md §4.6):
//
//	client                                server
//	  push(MAGIC_CONNECT)  ────────────►   pop(unbounded) validates MAGIC
//	  pop(2)               ◄────────────   create data pipe, push(new_port)
//	  open data pipe, push(MAGIC_CONNECT) ► pop(sizeof MAGIC) on data pipe
//	  (established)                        (established)
//
// The client re-pushes its SYN-equivalent magic on each poll cycle that
// finds no port reply, up to sharedMemHandshakeRetries pushes in total
// (distinct from TCP's 5, spec.md §9); after that the step completes
// with ErrTimedOut and does not re-initiate the handshake.

package sharedmem

import (
	"encoding/binary"

	"github.com/momentics/quanta-libos/api"
	"github.com/momentics/quanta-libos/internal/concurrency"
)

var magicConnect = [4]byte{'M', 'C', 'S', '1'}

const sharedMemHandshakeRetries = 1024

// ClientResult is ClientStep's terminal value.
type ClientResult struct {
	DataPipe Pipe
	Err      *api.Error
}

// ServerResult is ServerStep's terminal value.
type ServerResult struct {
	DataPipe Pipe
	Err      *api.Error
}

// DataPipeOpener resolves a port identifier (pushed by the server in
// step two) to the client's end of the newly created data pipe.
type DataPipeOpener func(port uint16) Pipe

// DataPipeFactory creates a fresh data pipe on the server side,
// returning the port identifier to advertise to the client and the
// server's end of the pipe.
type DataPipeFactory func() (port uint16, serverEnd Pipe)

type clientPhase int

const (
	clientSendingSyn clientPhase = iota
	clientAwaitingPort
	clientSendingFinalMagic
)

// ClientStep drives the connecting side of the handshake to
// completion, implementing concurrency.Step.
type ClientStep struct {
	control Pipe
	opener  DataPipeOpener

	phase    clientPhase
	attempt  int
	dataPipe Pipe
}

func NewClientStep(control Pipe, opener DataPipeOpener) *ClientStep {
	return &ClientStep{control: control, opener: opener}
}

func (s *ClientStep) Poll(w concurrency.Waker) (any, bool) {
	switch s.phase {
	case clientSendingSyn:
		if s.attempt >= sharedMemHandshakeRetries {
			return ClientResult{Err: api.ErrTimedOut}, true
		}
		s.attempt++
		if err := s.control.Push(magicConnect[:]); err != nil {
			return ClientResult{Err: api.ErrBrokenPipe}, true
		}
		s.phase = clientAwaitingPort
		w.Wake()
		return nil, false

	case clientAwaitingPort:
		data, ok := s.control.Pop(2)
		if !ok {
			s.phase = clientSendingSyn // retry the SYN-equivalent push
			w.Wake()                  // self-reschedule: busy-poll until the server replies
			return nil, false
		}
		if len(data) < 2 {
			return ClientResult{Err: api.ErrInvalidArgument}, true
		}
		port := binary.BigEndian.Uint16(data)
		s.dataPipe = s.opener(port)
		s.phase = clientSendingFinalMagic
		w.Wake()
		return nil, false

	default: // clientSendingFinalMagic
		if err := s.dataPipe.Push(magicConnect[:]); err != nil {
			return ClientResult{Err: api.ErrBrokenPipe}, true
		}
		return ClientResult{DataPipe: s.dataPipe}, true
	}
}

type serverPhase int

const (
	serverAwaitingSyn serverPhase = iota
	serverAwaitingFinalMagic
)

// ServerStep drives the listening side: it validates the client's SYN
// magic, mints a data pipe via factory, and waits for the matching
// magic on that new pipe before completing. An invalid magic rearms
// the listen pop without consuming the accept slot (spec.md §4.6).
type ServerStep struct {
	control Pipe
	factory DataPipeFactory

	phase      serverPhase
	serverPipe Pipe
}

func NewServerStep(control Pipe, factory DataPipeFactory) *ServerStep {
	return &ServerStep{control: control, factory: factory}
}

func (s *ServerStep) Poll(w concurrency.Waker) (any, bool) {
	switch s.phase {
	case serverAwaitingSyn:
		data, ok := s.control.Pop(0)
		if !ok {
			w.Wake()
			return nil, false
		}
		if len(data) < 4 || [4]byte(data[:4]) != magicConnect {
			w.Wake() // invalid magic: rearm, don't consume the slot
			return nil, false
		}
		port, serverEnd := s.factory()
		portBytes := make([]byte, 2)
		binary.BigEndian.PutUint16(portBytes, port)
		if err := s.control.Push(portBytes); err != nil {
			return ServerResult{Err: api.ErrBrokenPipe}, true
		}
		s.serverPipe = serverEnd
		s.phase = serverAwaitingFinalMagic
		w.Wake()
		return nil, false

	default: // serverAwaitingFinalMagic
		data, ok := s.serverPipe.Pop(len(magicConnect))
		if !ok {
			w.Wake()
			return nil, false
		}
		if len(data) < 4 || [4]byte(data[:4]) != magicConnect {
			w.Wake()
			return nil, false
		}
		return ServerResult{DataPipe: s.serverPipe}, true
	}
}
