// Package errors defines the error taxonomy of the remote association
// subsystem: the sentinel errors returned by the handshake, association, and
// wire codec layers.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrHandshakeFailed names a handshake attempt that was rejected by the
	// peer or timed out before reaching completed/rejected. No function in
	// this module returns it: the cluster shell reports such a failure by
	// tombstoning the association, whose sends then fail with
	// ErrAssociationTerminated.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrAssociationTerminated is returned when a send is attempted against a
	// tombstoned association. The envelope is dead-lettered; any supplied
	// promise fails with this error.
	ErrAssociationTerminated = errors.New("association is terminated")

	// ErrChannelWriteFailed wraps a transport-level write failure. It does not
	// by itself tombstone the association.
	ErrChannelWriteFailed = errors.New("channel write failed")

	// ErrMissingSerializationContext is returned when encoding an address with
	// an absent node outside of a live serialization context.
	ErrMissingSerializationContext = errors.New("missing serialization context")

	// ErrInvalidWireFormat is returned when a frame received from a peer cannot
	// be parsed. The connection that produced it must be closed and any
	// in-flight handshake on it rejected.
	ErrInvalidWireFormat = errors.New("invalid wire format")

	// ErrAlreadyAssociated is a programmer error: CompleteAssociation called a
	// second time on an already-associated Association.
	ErrAlreadyAssociated = errors.New("association already completed")

	// ErrShellClosed names use of a cluster shell after Close. No Shell method
	// returns it; Shell operations report no error for use after Close.
	ErrShellClosed = errors.New("cluster shell is closed")

	// ErrUnknownSystemMessageType is returned when decoding a system envelope
	// whose type discriminator is not recognized.
	ErrUnknownSystemMessageType = errors.New("unknown system message type")
)

// WrapChannelWrite wraps an underlying transport error as ErrChannelWriteFailed,
// preserving it for errors.Is/errors.As.
func WrapChannelWrite(underlying error) error {
	if underlying == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrChannelWriteFailed, underlying)
}

// WrapInvalidWireFormat wraps a detail error as ErrInvalidWireFormat.
func WrapInvalidWireFormat(detail string) error {
	return fmt.Errorf("%w: %s", ErrInvalidWireFormat, detail)
}
