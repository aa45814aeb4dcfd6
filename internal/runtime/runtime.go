// Package runtime decouples channel transports from message handling. A
// Listener feeds inbound messages into a Dispatcher, which runs them one at a
// time against a Handler so concurrent channels never interleave a session.
package runtime

import "context"

// Message is an inbound message delivered by a channel transport.
type Message struct {
	Text string
}

// ResponseWriter sends handler responses back to the active channel transport.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, text string) error
}

// Handler processes inbound messages and writes responses.
type Handler interface {
	HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error
}

// Listener receives channel input and dispatches it to a Handler.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
