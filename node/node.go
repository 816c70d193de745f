// Package node defines the node-identity value types of the remote
// association subsystem: Node (a network endpoint), NodeID (a per-run
// incarnation tag), and UniqueNode, the pair that together let two processes
// that reuse the same host:port be told apart.
package node

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// DefaultProtocol is the protocol name used when none is specified.
const DefaultProtocol = "sact"

// ErrEmptyField is returned by Validate when a required Node field is empty.
var ErrEmptyField = errors.New("node: field must not be empty")

// ErrInvalidPort is returned by Validate when Port is outside [1, 65535].
var ErrInvalidPort = errors.New("node: port must be in [1, 65535]")

// Node is a network endpoint: the quadruple (protocol, systemName, host, port).
// Two Nodes with an identical quadruple are equal. Node alone does not
// distinguish two different incarnations of a process at the same endpoint;
// UniqueNode does.
type Node struct {
	Protocol   string
	SystemName string
	Host       string
	Port       uint16
}

// New creates a Node with Protocol set to DefaultProtocol.
func New(systemName, host string, port uint16) Node {
	return Node{Protocol: DefaultProtocol, SystemName: systemName, Host: host, Port: port}
}

// Validate checks that all fields are non-empty and the port is in range.
func (n Node) Validate() error {
	if n.Protocol == "" || n.SystemName == "" || n.Host == "" {
		return ErrEmptyField
	}
	if n.Port == 0 {
		return ErrInvalidPort
	}
	return nil
}

// String returns the canonical textual form protocol://systemName@host:port.
func (n Node) String() string {
	return fmt.Sprintf("%s://%s@%s:%d", n.Protocol, n.SystemName, n.Host, n.Port)
}

// NodeID is a 32-bit incarnation tag, drawn from a cryptographic-quality RNG
// once per process run. Two processes started at different times at the same
// Node have different NodeIDs with overwhelming probability.
type NodeID uint32

// NewNodeID draws a fresh NodeID from crypto/rand.
func NewNodeID() (NodeID, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("node: failed to generate node id: %w", err)
	}
	return NodeID(binary.BigEndian.Uint32(buf[:])), nil
}

// MustNewNodeID is NewNodeID but panics on failure. crypto/rand failing to
// read is only possible if the OS entropy source itself is broken, which is
// not a condition callers can meaningfully recover from at node start.
func MustNewNodeID() NodeID {
	id, err := NewNodeID()
	if err != nil {
		panic(err)
	}
	return id
}

// UniqueNode is a Node plus its NodeID: the full identity of one specific run
// of a process listening on that endpoint. Equality and hashing (as a Go map
// key, UniqueNode is comparable) consider all five fields.
type UniqueNode struct {
	Node
	ID NodeID
}

// NewUnique pairs a Node with a freshly generated NodeID.
func NewUnique(n Node) (UniqueNode, error) {
	id, err := NewNodeID()
	if err != nil {
		return UniqueNode{}, err
	}
	return UniqueNode{Node: n, ID: id}, nil
}

// SameEndpoint reports whether two UniqueNodes share the same Node quadruple
// but (possibly) differ in NodeID — the "address reuse" condition of §4.3.
func (u UniqueNode) SameEndpoint(other UniqueNode) bool {
	return u.Node == other.Node
}

// Compare implements the handshake tie-break ordering: lexicographic over
// (protocol, systemName, host, port, nid). Returns -1, 0, or 1.
func (u UniqueNode) Compare(other UniqueNode) int {
	if c := strings.Compare(u.Protocol, other.Protocol); c != 0 {
		return c
	}
	if c := strings.Compare(u.SystemName, other.SystemName); c != 0 {
		return c
	}
	if c := strings.Compare(u.Host, other.Host); c != 0 {
		return c
	}
	if u.Port != other.Port {
		if u.Port < other.Port {
			return -1
		}
		return 1
	}
	if u.ID != other.ID {
		if u.ID < other.ID {
			return -1
		}
		return 1
	}
	return 0
}

// String returns the canonical textual form of the underlying Node plus the
// incarnation tag.
func (u UniqueNode) String() string {
	return fmt.Sprintf("%s#%d", u.Node.String(), u.ID)
}
