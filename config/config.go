// Package config holds the tunables of the remote association subsystem:
// how long a tombstone survives before it can be resurrected, and how long a
// handshake attempt is given to complete.
package config

import "time"

const (
	// DefaultAssociationTombstoneTTL is how long a terminated association's
	// tombstone bars a new association for the same UniqueNode.
	DefaultAssociationTombstoneTTL = 24 * time.Hour

	// DefaultHandshakeTimeout is how long an initiator waits for Accept/Reject
	// before treating the attempt as failed.
	DefaultHandshakeTimeout = 5 * time.Second

	// DefaultReapDivisor is N in "reap every AssociationTombstoneTTL / N".
	DefaultReapDivisor = 4
)

// ClusterSettings configures the cluster shell.
type ClusterSettings struct {
	// AssociationTombstoneTTL is how long a tombstone is retained after an
	// association terminates before it is reaped and the peer may associate
	// again.
	AssociationTombstoneTTL time.Duration
	// HandshakeTimeout bounds how long an in-flight handshake attempt may run
	// before it is failed.
	HandshakeTimeout time.Duration
	// ReapDivisor sets the tombstone reaper tick to AssociationTombstoneTTL /
	// ReapDivisor. Must be >= 2.
	ReapDivisor int
}

// Option configures a ClusterSettings.
type Option interface {
	apply(*ClusterSettings)
}

type optionFunc func(*ClusterSettings)

func (f optionFunc) apply(s *ClusterSettings) { f(s) }

// WithAssociationTombstoneTTL overrides the tombstone TTL.
func WithAssociationTombstoneTTL(ttl time.Duration) Option {
	return optionFunc(func(s *ClusterSettings) { s.AssociationTombstoneTTL = ttl })
}

// WithHandshakeTimeout overrides the handshake timeout.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return optionFunc(func(s *ClusterSettings) { s.HandshakeTimeout = timeout })
}

// WithReapDivisor overrides the tombstone reap divisor.
func WithReapDivisor(n int) Option {
	return optionFunc(func(s *ClusterSettings) { s.ReapDivisor = n })
}

// New builds a ClusterSettings, applying defaults first and then the supplied
// options, the same construction order the teacher's config package uses.
func New(opts ...Option) *ClusterSettings {
	settings := &ClusterSettings{
		AssociationTombstoneTTL: DefaultAssociationTombstoneTTL,
		HandshakeTimeout:        DefaultHandshakeTimeout,
		ReapDivisor:             DefaultReapDivisor,
	}
	for _, opt := range opts {
		opt.apply(settings)
	}
	if settings.ReapDivisor < 2 {
		settings.ReapDivisor = 2
	}
	return settings
}

// ReapInterval returns AssociationTombstoneTTL / ReapDivisor.
func (s *ClusterSettings) ReapInterval() time.Duration {
	return s.AssociationTombstoneTTL / time.Duration(s.ReapDivisor)
}
