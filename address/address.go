// Package address provides ActorAddress: the value type that identifies a
// single actor within (node, incarnation). It is the addressing type the
// association subsystem carries in every envelope but treats as opaque —
// actor tree resolution is a collaborator, not owned here.
package address

import (
	"errors"
	"strings"

	"github.com/sact-io/sact/node"
)

// ErrEmptyPath is returned by Validate when Path has no segments.
var ErrEmptyPath = errors.New("address: path must have at least one segment")

// ErrEmptySegment is returned by Validate when a path segment is empty.
var ErrEmptySegment = errors.New("address: path segments must be non-empty")

// Address identifies a single actor: an optional owning node (nil means "not
// yet bound to a node", resolved at encode time from the ambient
// serialization context), a hierarchical path, and an incarnation tag that
// disambiguates successive actors created at the same path.
type Address struct {
	Node        *node.UniqueNode
	Path        []string
	Incarnation uint32
}

// New creates an Address bound to a node.
func New(n node.UniqueNode, path []string, incarnation uint32) Address {
	return Address{Node: &n, Path: append([]string(nil), path...), Incarnation: incarnation}
}

// NewLocal creates an Address with no bound node; its node is filled in from
// the ambient serialization context at encode time.
func NewLocal(path []string, incarnation uint32) Address {
	return Address{Path: append([]string(nil), path...), Incarnation: incarnation}
}

// Validate checks that Path is non-empty and every segment is non-empty. A
// nil Node is valid: it means "local, resolve at encode time".
func (a Address) Validate() error {
	if len(a.Path) == 0 {
		return ErrEmptyPath
	}
	for _, seg := range a.Path {
		if seg == "" {
			return ErrEmptySegment
		}
	}
	return nil
}

// Equal reports whether two addresses are equal: same node (by value, nil
// only equal to nil), same path segments, same incarnation.
func (a Address) Equal(other Address) bool {
	if a.Incarnation != other.Incarnation {
		return false
	}
	if (a.Node == nil) != (other.Node == nil) {
		return false
	}
	if a.Node != nil && *a.Node != *other.Node {
		return false
	}
	if len(a.Path) != len(other.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != other.Path[i] {
			return false
		}
	}
	return true
}

// String returns a canonical textual form: sact://node/path/segments#incarnation.
func (a Address) String() string {
	var b strings.Builder
	b.WriteString("sact://")
	if a.Node != nil {
		b.WriteString(a.Node.String())
	} else {
		b.WriteString("local")
	}
	b.WriteByte('/')
	b.WriteString(strings.Join(a.Path, "/"))
	b.WriteByte('#')
	b.WriteString(itoa(a.Incarnation))
	return b.String()
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
