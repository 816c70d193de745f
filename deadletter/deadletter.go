// Package deadletter provides the sink that undeliverable envelopes are
// diverted to: an association that has transitioned to tombstone, or one
// being terminated with envelopes still queued.
package deadletter

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/node"
)

// Letter is one undeliverable message, carrying enough metadata for a sink to
// log it: the underlying message and its intended recipient.
type Letter struct {
	UnderlyingMessage any
	Recipient         address.Address
	Peer              node.UniqueNode
}

// Sink receives dead letters. Implementations must be safe for concurrent
// use: multiple associations may terminate and drain concurrently.
type Sink interface {
	Send(letter Letter)
}

// LoggingSink logs every letter and keeps a running count, mirroring the
// teacher's deadLetter synthetic actor (actor/dead_letter.go) minus its
// event-stream publication, which depends on the actor mailbox scheduler —
// a collaborator out of scope for this subsystem.
type LoggingSink struct {
	logger  log.Logger
	counter atomic.Int64

	mu      sync.Mutex
	perPeer map[node.UniqueNode]*atomic.Int64
}

var _ Sink = (*LoggingSink)(nil)

// NewLoggingSink creates a Sink that logs through logger.
func NewLoggingSink(logger log.Logger) *LoggingSink {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &LoggingSink{logger: logger, perPeer: make(map[node.UniqueNode]*atomic.Int64)}
}

// Send logs letter and increments its counters.
func (s *LoggingSink) Send(letter Letter) {
	s.counter.Inc()
	s.mu.Lock()
	counter, ok := s.perPeer[letter.Peer]
	if !ok {
		counter = atomic.NewInt64(0)
		s.perPeer[letter.Peer] = counter
	}
	s.mu.Unlock()
	counter.Inc()
	s.logger.Warnf("dead letter: recipient=%s peer=%s message=%v", letter.Recipient, letter.Peer, letter.UnderlyingMessage)
}

// Count returns the total number of letters received.
func (s *LoggingSink) Count() int64 {
	return s.counter.Load()
}

// CountFor returns the number of letters received for a specific peer.
func (s *LoggingSink) CountFor(peer node.UniqueNode) int64 {
	s.mu.Lock()
	counter, ok := s.perPeer[peer]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	return counter.Load()
}
