// Package association implements the long-lived per-peer Association state
// machine: associating (pending queue) -> associated (channel) -> tombstone
// (dead-letter sink), the strict monotone chain of spec.md §4.4.
package association

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/sact-io/sact/deadletter"
	"github.com/sact-io/sact/envelope"
	"github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/node"
	"github.com/sact-io/sact/queue"
	"github.com/sact-io/sact/transport"
)

// State is one of the three Association states.
type State int32

const (
	// Associating is the initial state: envelopes are buffered in the
	// PendingQueue until CompleteAssociation or Terminate.
	Associating State = iota
	// Associated means envelopes are written straight through to the channel.
	Associated
	// Tombstone is the terminal state: envelopes are dead-lettered.
	Tombstone
)

func (s State) String() string {
	switch s {
	case Associating:
		return "associating"
	case Associated:
		return "associated"
	case Tombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// TombstoneRecord is the marker an Association leaves behind when it terminates,
// barring a new association for the same UniqueNode until RemovalDeadline.
type TombstoneRecord struct {
	RemoteNode      node.UniqueNode
	RemovalDeadline time.Time
}

// Association is the long-lived, concurrently-sent-to object holding one of
// the three states and routing every outgoing envelope accordingly.
//
// The ordering guarantee of spec.md §4.4 — sends observed in happens-before
// order are written to the wire in that order, even across the
// associating->associated transition — is provided by holding a single mutex
// around every state-affecting operation, the "simplest correct
// implementation" the spec explicitly sanctions over a lock-free handoff.
type Association struct {
	SelfNode   node.UniqueNode
	RemoteNode node.UniqueNode

	logger log.Logger
	clock  func() time.Time

	mu      sync.Mutex
	state   atomic.Int32 // cache of the mutex-protected state below, for lock-free reads
	pending *queue.PendingQueue
	channel transport.Channel
	sink    deadletter.Sink

	sentCount         atomic.Int64
	writtenCount      atomic.Int64
	deadLetteredCount atomic.Int64
}

// New creates an Association in the associating state.
func New(self, remote node.UniqueNode, logger log.Logger) *Association {
	if logger == nil {
		logger = log.DiscardLogger
	}
	a := &Association{
		SelfNode:   self,
		RemoteNode: remote,
		logger:     logger,
		clock:      time.Now,
		pending:    queue.New(),
	}
	a.state.Store(int32(Associating))
	return a
}

// State returns the current state. Lock-free; may be momentarily stale with
// respect to a concurrent transition, which is fine for diagnostics and
// tests — every state-changing call itself is linearized by the mutex.
func (a *Association) State() State {
	return State(a.state.Load())
}

// Send dispatches env according to the current state, per spec.md §4.4:
//   - associating: append to the pending queue.
//   - associated: write-and-flush to the channel.
//   - tombstone: forward to the dead-letter sink and fail env's promise.
func (a *Association) Send(env envelope.TransportEnvelope) {
	a.sentCount.Inc()

	a.mu.Lock()
	switch State(a.state.Load()) {
	case Associating:
		a.pending.Enqueue(env)
		a.mu.Unlock()
	case Associated:
		channel := a.channel
		a.mu.Unlock()
		if err := channel.WriteAndFlush(env); err != nil {
			a.logger.Warnf("association %s: write failed: %v", a.RemoteNode, err)
			return
		}
		a.writtenCount.Inc()
	case Tombstone:
		sink := a.sink
		a.mu.Unlock()
		a.deadLetter(sink, env)
	}
}

func (a *Association) deadLetter(sink deadletter.Sink, env envelope.TransportEnvelope) {
	a.deadLetteredCount.Inc()
	if sink != nil {
		sink.Send(deadletter.Letter{
			UnderlyingMessage: env.UnderlyingMessage(),
			Recipient:         env.Recipient,
			Peer:              a.RemoteNode,
		})
	}
	env.Complete(errors.ErrAssociationTerminated)
}

// CompleteAssociation transitions the association to associated, draining
// the entire pending queue into channel.WriteAndFlush in enqueue order and
// binding channel as the association's transport. Legal only from
// associating; calling it a second time is a programmer error. Calling it
// from tombstone closes the supplied channel and returns, since the spec
// permits a handshake response to race a terminate and must not resurrect a
// dead association.
func (a *Association) CompleteAssociation(channel transport.Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch State(a.state.Load()) {
	case Tombstone:
		_ = channel.Close()
		return
	case Associated:
		panic("association: CompleteAssociation called twice")
	}

	// The flush must happen before a.mu is released: a Send that arrives
	// concurrently and observes the Associated state below blocks on a.mu
	// until this loop finishes, so its write always lands after every
	// envelope queued before the transition. Releasing the lock first (and
	// flushing outside it) would let that concurrent Send's write reach the
	// channel ahead of these older, already-queued ones. WriteAndFlush only
	// enqueues onto the channel's own outbound queue and returns, so holding
	// a.mu across the loop never blocks on real network I/O.
	queued := a.pending.DequeueAll()
	a.channel = channel
	a.state.Store(int32(Associated))

	for _, env := range queued {
		if err := channel.WriteAndFlush(env); err != nil {
			a.logger.Warnf("association %s: flush failed: %v", a.RemoteNode, err)
			continue
		}
		a.writtenCount.Inc()
	}
}

// Terminate transitions the association to tombstone: redirects every
// queued envelope (from associating) or closes the channel (from
// associated) to sink, and returns a TombstoneRecord with RemovalDeadline set
// ttl past now. Idempotent when already tombstoned.
func (a *Association) Terminate(sink deadletter.Sink, ttl time.Duration) TombstoneRecord {
	a.mu.Lock()
	previous := State(a.state.Load())
	var queued []envelope.TransportEnvelope
	var channel transport.Channel
	if previous != Tombstone {
		switch previous {
		case Associating:
			queued = a.pending.DequeueAll()
		case Associated:
			channel = a.channel
			a.channel = nil
		}
		a.sink = sink
		a.state.Store(int32(Tombstone))
	}
	a.mu.Unlock()

	if previous != Tombstone {
		for _, env := range queued {
			a.deadLetter(sink, env)
		}
		if channel != nil {
			_ = channel.Close()
		}
	}

	return TombstoneRecord{RemoteNode: a.RemoteNode, RemovalDeadline: a.clock().Add(ttl)}
}

// Counts returns (sent, written, deadLettered) for testable property 3 of
// spec.md §8: sent == written + deadLettered + outstanding.
func (a *Association) Counts() (sent, written, deadLettered int64) {
	return a.sentCount.Load(), a.writtenCount.Load(), a.deadLetteredCount.Load()
}

// WithClock overrides the association's time source; used by tests that
// exercise tombstone expiry without a real 24h wait.
func (a *Association) WithClock(clock func() time.Time) {
	a.clock = clock
}
