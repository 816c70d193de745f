// Package envelope defines TransportEnvelope, the framed unit that crosses
// the wire, and the two message shapes it can carry: an opaque user payload
// or a system message (watch / terminated).
package envelope

import "github.com/sact-io/sact/address"

// Kind discriminates the two TransportEnvelope shapes.
type Kind uint8

const (
	// KindUser wraps an opaque application payload.
	KindUser Kind = iota
	// KindSystem wraps a SystemMessage.
	KindSystem
)

// Promise is the completion notifier optionally attached to a user envelope.
// A channel write completing (or the envelope being dead-lettered) resolves
// it exactly once.
type Promise struct {
	done chan error
}

// NewPromise creates an unresolved Promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan error, 1)}
}

// Complete resolves the promise with err (nil for success). Complete is safe
// to call at most once; a second call is a no-op because done is buffered by
// one and never drained twice by the same caller pattern used here.
func (p *Promise) Complete(err error) {
	if p == nil {
		return
	}
	select {
	case p.done <- err:
	default:
		// already completed; ignore per "consumed once" semantics.
	}
}

// Wait blocks until the promise resolves and returns its error.
func (p *Promise) Wait() error {
	if p == nil {
		return nil
	}
	return <-p.done
}

// SystemMessageType discriminates the two system message shapes.
type SystemMessageType uint8

const (
	// SystemWatch requests that watcher be notified when watchee terminates.
	SystemWatch SystemMessageType = iota
	// SystemTerminated notifies a watcher that a watched actor has terminated.
	SystemTerminated
)

// SystemMessage is the payload of a system envelope.
type SystemMessage struct {
	Type SystemMessageType

	// Watch fields.
	Watchee address.Address
	Watcher address.Address

	// Terminated fields.
	Ref                address.Address
	ExistenceConfirmed bool
	AddressTerminated  bool
}

// Watch constructs a SystemMessage of type SystemWatch.
func Watch(watchee, watcher address.Address) SystemMessage {
	return SystemMessage{Type: SystemWatch, Watchee: watchee, Watcher: watcher}
}

// Terminated constructs a SystemMessage of type SystemTerminated.
func Terminated(ref address.Address, existenceConfirmed, addressTerminated bool) SystemMessage {
	return SystemMessage{
		Type:               SystemTerminated,
		Ref:                ref,
		ExistenceConfirmed: existenceConfirmed,
		AddressTerminated:  addressTerminated,
	}
}

// TransportEnvelope is the tagged union that crosses the association's send
// path and, once associated, the wire: either a user message with an opaque
// payload and an optional completion Promise, or a system message.
type TransportEnvelope struct {
	Kind Kind

	// User variant.
	Payload   []byte
	Recipient address.Address
	Promise   *Promise

	// System variant.
	SysMsg SystemMessage
}

// NewUserEnvelope builds a user TransportEnvelope.
func NewUserEnvelope(payload []byte, recipient address.Address, promise *Promise) TransportEnvelope {
	return TransportEnvelope{Kind: KindUser, Payload: payload, Recipient: recipient, Promise: promise}
}

// NewSystemEnvelope builds a system TransportEnvelope.
func NewSystemEnvelope(msg SystemMessage, recipient address.Address) TransportEnvelope {
	return TransportEnvelope{Kind: KindSystem, SysMsg: msg, Recipient: recipient}
}

// UnderlyingMessage returns what a dead-letter sink should log as "the
// message": the raw payload for a user envelope, the SystemMessage for a
// system envelope.
func (e TransportEnvelope) UnderlyingMessage() any {
	if e.Kind == KindUser {
		return e.Payload
	}
	return e.SysMsg
}

// Complete resolves the envelope's promise, if any. Safe to call on a system
// envelope (no-op, since Promise is nil).
func (e TransportEnvelope) Complete(err error) {
	e.Promise.Complete(err)
}
