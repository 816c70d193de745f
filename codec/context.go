// Package codec carries the serialization context threaded explicitly
// through address and system-message encode/decode, instead of relying on
// ambient/global state (see SPEC_FULL.md §4.2 "Serialization context").
package codec

import (
	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/node"
)

// Context supplies what the wire codec needs but cannot itself own: the
// local node (substituted into addresses with no bound node at encode time)
// and a resolver from a decoded Address to a local proxy/ref.
type Context struct {
	// LocalNode is substituted for Address.Node when encoding an address whose
	// Node is nil. May be nil only if the caller never encodes local addresses.
	LocalNode *node.UniqueNode

	// Resolve turns a decoded Address into a local proxy/ref. The wire
	// decoders do not take a Context and never call it: decoded system
	// messages carry plain Addresses, which a caller may pass to Resolve
	// itself. May be nil.
	Resolve func(address.Address) (any, error)
}

// NewContext builds a Context bound to a local node.
func NewContext(local node.UniqueNode) *Context {
	return &Context{LocalNode: &local}
}

// WithResolver returns a shallow copy of ctx with Resolve set.
func (c *Context) WithResolver(resolve func(address.Address) (any, error)) *Context {
	return &Context{LocalNode: c.LocalNode, Resolve: resolve}
}

// ResolveLocalNode fills in addr.Node from ctx.LocalNode when addr.Node is
// nil, returning errors.ErrMissingSerializationContext (via the caller, which
// owns the errors import to avoid a cycle) when neither is available. It
// returns the possibly-substituted address and whether substitution was
// needed but unavailable.
func (c *Context) ResolveLocalNode(addr address.Address) (resolved address.Address, missing bool) {
	if addr.Node != nil {
		return addr, false
	}
	if c == nil || c.LocalNode == nil {
		return addr, true
	}
	local := *c.LocalNode
	addr.Node = &local
	return addr, false
}
