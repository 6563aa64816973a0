// Package comm implements the Jupyter comm primitive: named, bidirectional
// logical channels multiplexed over a single transport between a kernel
// and a frontend.
//
// Both sides of a session are an `Endpoint`. Either side can `Open` a comm
// on a target name; the other side must have registered an `OpenFunc` for
// that target with `RegisterTarget`, otherwise the comm is closed right
// away. Inbound traffic of an `Endpoint` is dispatched in order on a single
// goroutine, the same way a kernel shell channel is processed.
package comm

import (
	"context"
	"encoding/json"
)

// Message is the payload of a comm open, msg or close.
type Message struct {
	Data     json.RawMessage
	Metadata map[string]any
	Buffers  [][]byte
}

// Comm is one end of an open comm.
type Comm interface {
	ID() string
	Target() string

	// Send a message to the other end. Sends are ordered.
	Send(ctx context.Context, msg Message) error

	// Close the comm. The local handler is not notified.
	Close(ctx context.Context, msg Message) error
}

// Handler receives the traffic of a single comm.
//
// Methods are invoked from the dispatching goroutine of the `Endpoint` and
// MUST NOT block on a response coming from the same `Endpoint`.
type Handler interface {
	HandleMessage(c Comm, msg Message)
	HandleClose(c Comm, msg Message)
}

// OpenFunc accepts a comm opened by the remote side on a target and
// returns the handler for its traffic. Returning an error rejects the comm.
type OpenFunc func(c Comm, open Message) (Handler, error)

// Manager opens comms and routes remote comm openings to target handlers.
type Manager interface {
	Open(ctx context.Context, target string, open Message, h Handler) (Comm, error)
	RegisterTarget(target string, fn OpenFunc) error
	UnregisterTarget(target string)
}

// HandlerFuncs adapts plain functions to a `Handler`. Nil functions are
// skipped.
type HandlerFuncs struct {
	OnMessage func(c Comm, msg Message)
	OnClose   func(c Comm, msg Message)
}

func (h HandlerFuncs) HandleMessage(c Comm, msg Message) {
	if h.OnMessage != nil {
		h.OnMessage(c, msg)
	}
}

func (h HandlerFuncs) HandleClose(c Comm, msg Message) {
	if h.OnClose != nil {
		h.OnClose(c, msg)
	}
}

// JSON marshals v into a message with the given buffers, panicking if v
// cannot be marshaled, which only happens for programming errors.
func JSON(v any, buffers ...[]byte) Message {
	data, err := json.Marshal(v)
	if err != nil {
		panic("comm: unexpected fail to marshal: " + err.Error())
	}
	return Message{Data: data, Buffers: buffers}
}
