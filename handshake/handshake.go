// Package handshake implements the protocol that creates an Association:
// Offer -> Accept/Reject -> completed/rejected, including tie-breaking
// between two concurrent handshakes between the same pair of nodes.
package handshake

import (
	"github.com/google/uuid"

	"github.com/sact-io/sact/node"
)

// RejectReason is the one-byte reject reason code of spec.md §6.
type RejectReason byte

const (
	ReasonDuplicate      RejectReason = 1
	ReasonConcurrentLost RejectReason = 2
	ReasonTombstoned     RejectReason = 3
	ReasonWrongTarget    RejectReason = 4
	ReasonOther          RejectReason = 5
)

func (r RejectReason) String() string {
	switch r {
	case ReasonDuplicate:
		return "duplicate"
	case ReasonConcurrentLost:
		return "concurrentLost"
	case ReasonTombstoned:
		return "tombstoned"
	case ReasonWrongTarget:
		return "wrongTarget"
	default:
		return "other"
	}
}

// Offer is the frame an initiator sends to open a handshake.
type Offer struct {
	Sender node.UniqueNode
	Target node.UniqueNode
}

// Accept is the frame an acceptor sends on success.
type Accept struct {
	Acceptor node.UniqueNode
}

// Reject is the frame either side sends on failure.
type Reject struct {
	Reason  RejectReason
	Message string
}

// Phase discriminates the three HandshakeState shapes.
type Phase uint8

const (
	PhaseInitiated Phase = iota
	PhaseCompleted
	PhaseRejected
)

// State is the tagged union {initiated(localOffer) | completed(remoteNode) |
// rejected(reason)} of spec.md §4.3. The completed phase carries only the
// negotiated remote node: the channel itself is bound directly onto the
// Association by the caller (association.CompleteAssociation), not carried
// inside HandshakeState, so this package has no dependency on the transport
// abstraction.
type State struct {
	Phase      Phase
	LocalOffer Offer
	RemoteNode node.UniqueNode
	Reason     RejectReason
}

// Attempt tracks one in-flight handshake's state machine. Attempt carries a
// uuid correlation id purely for log correlation across Offer/Accept/Reject;
// it is never part of the wire protocol.
type Attempt struct {
	ID    uuid.UUID
	State State
}

// NewAttempt starts an Attempt in the initiated phase.
func NewAttempt(offer Offer) *Attempt {
	return &Attempt{
		ID:    uuid.New(),
		State: State{Phase: PhaseInitiated, LocalOffer: offer},
	}
}

// Complete transitions the attempt to completed. Calling it more than once,
// or after Reject, is a programmer error.
func (a *Attempt) Complete(remote node.UniqueNode) {
	if a.State.Phase != PhaseInitiated {
		panic("handshake: Complete called on a non-initiated attempt")
	}
	a.State = State{Phase: PhaseCompleted, RemoteNode: remote}
}

// Reject transitions the attempt to rejected. Calling it more than once, or
// after Complete, is a programmer error.
func (a *Attempt) Reject(reason RejectReason) {
	if a.State.Phase != PhaseInitiated {
		panic("handshake: Reject called on a non-initiated attempt")
	}
	a.State = State{Phase: PhaseRejected, Reason: reason}
}

// Winner implements the tie-break rule of spec.md §4.3/§4.1: given two
// concurrent offers between the same pair of nodes, the UniqueNode that
// compares lexicographically smaller (protocol, systemName, host, port, nid)
// wins; the other side's handshake is rejected with ReasonConcurrentLost.
func Winner(a, b node.UniqueNode) node.UniqueNode {
	if a.Compare(b) <= 0 {
		return a
	}
	return b
}
