// Package transport provides the duplex byte Channel abstraction the
// association subsystem treats as a collaborator (spec.md §1), plus one
// concrete implementation, a net.Conn-based TCPChannel that writes the wire
// package's tagged frames back to back, and
// the listener/dialer that drive the handshake protocol over it.
package transport

import (
	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/envelope"
)

// Channel is the duplex, internally thread-safe transport an Association
// writes envelopes to once associated. Enqueuing never blocks on network
// I/O: WriteAndFlush submits to the channel's own outbound queue and returns
// immediately; completion (success or failure) is reported asynchronously by
// resolving the envelope's Promise, if any.
type Channel interface {
	// WriteAndFlush enqueues env for writing. It returns an error only when
	// the channel is already closed; otherwise the write outcome is reported
	// through env's Promise.
	WriteAndFlush(env envelope.TransportEnvelope) error
	// Close closes the underlying connection and stops accepting writes.
	// Idempotent.
	Close() error
}

// Inbox receives envelopes decoded off an inbound Channel. The actor mailbox
// scheduler that would ultimately handle these is a collaborator out of
// scope for this subsystem (spec.md §1); Inbox is the seam a real scheduler
// plugs into.
type Inbox interface {
	Deliver(recipient address.Address, payload []byte)
	DeliverSystem(recipient address.Address, msg envelope.SystemMessage)
}

// InboxFunc adapts two functions to the Inbox interface.
type InboxFunc struct {
	OnUser   func(recipient address.Address, payload []byte)
	OnSystem func(recipient address.Address, msg envelope.SystemMessage)
}

func (f InboxFunc) Deliver(recipient address.Address, payload []byte) {
	if f.OnUser != nil {
		f.OnUser(recipient, payload)
	}
}

func (f InboxFunc) DeliverSystem(recipient address.Address, msg envelope.SystemMessage) {
	if f.OnSystem != nil {
		f.OnSystem(recipient, msg)
	}
}
