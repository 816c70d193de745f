// Package cluster implements the Cluster Shell: the single-owner
// coordinator holding the UniqueNode -> Association map and the tombstone
// registry, arbitrating concurrent handshakes and reaping expired
// tombstones.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/sact-io/sact/association"
	"github.com/sact-io/sact/codec"
	"github.com/sact-io/sact/config"
	"github.com/sact-io/sact/deadletter"
	"github.com/sact-io/sact/handshake"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/node"
	"github.com/sact-io/sact/transport"
	"github.com/sact-io/sact/wire"
)

// Shell is the Cluster Shell of spec.md §4.5: it exclusively owns the
// association map and the tombstone set. Map mutations and handshake state
// advances happen only inside the single goroutine run by its command
// executor — every exported method that touches shell-owned state submits a
// closure to that executor rather than locking the maps directly, the
// "single dedicated executor" the spec calls for. send on an individual
// Association, by contrast, never goes through the executor: it is
// synchronized by the association's own mutex (see package association),
// since the spec scopes the executor to the shell's own state only.
type Shell struct {
	self     node.UniqueNode
	settings *config.ClusterSettings
	codecCtx *codec.Context
	inbox    transport.Inbox
	sink     deadletter.Sink
	logger   log.Logger

	associations map[node.UniqueNode]*association.Association
	tombstones   map[node.UniqueNode]association.TombstoneRecord

	listener *transport.Listener

	cmds chan func()
	stop chan struct{}
	once sync.Once
}

var _ transport.OfferHandler = (*Shell)(nil)

// NewShell constructs a Shell for self and starts its command executor.
// inbox receives every inbound user/system envelope once a channel is
// promoted; it may be nil in tests that only exercise handshake arbitration.
func NewShell(self node.UniqueNode, settings *config.ClusterSettings, codecCtx *codec.Context, inbox transport.Inbox, sink deadletter.Sink, logger log.Logger) *Shell {
	if settings == nil {
		settings = config.New()
	}
	if logger == nil {
		logger = log.DiscardLogger
	}
	s := &Shell{
		self:         self,
		settings:     settings,
		codecCtx:     codecCtx,
		inbox:        inbox,
		sink:         sink,
		logger:       logger,
		associations: make(map[node.UniqueNode]*association.Association),
		tombstones:   make(map[node.UniqueNode]association.TombstoneRecord),
		cmds:         make(chan func()),
		stop:         make(chan struct{}),
	}
	go s.runExecutor()
	return s
}

func (s *Shell) runExecutor() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.stop:
			return
		}
	}
}

// execute submits fn to the command executor and blocks until it has run,
// serializing it with every other map mutation and handshake FSM advance.
func (s *Shell) execute(fn func()) {
	done := make(chan struct{})
	s.cmds <- func() {
		fn()
		close(done)
	}
	<-done
}

// Listen opens a TCP listener at addr and starts accepting inbound offers.
func (s *Shell) Listen(addr string) error {
	ln, err := transport.Listen(addr, s, s.logger)
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Shell) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the listener's accept loop and the tombstone reaper until ctx
// is canceled, mirroring the teacher's pattern of supervising a server's
// concurrent loops with a single errgroup.
func (s *Shell) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	if s.listener != nil {
		group.Go(func() error {
			return s.listener.Serve(ctx)
		})
	}
	group.Go(func() error {
		interval := s.settings.ReapInterval()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				s.ReapTombstones(now)
			}
		}
	})
	return group.Wait()
}

// Close terminates every live association, tombstoning them with the
// configured dead-letter sink, closes the listener, and stops the command
// executor. Terminate reports no error, so the listener's close error is the
// only one collected (through multierr, mirroring the teacher's shutdown
// paths). Close does not cancel a running Serve.
func (s *Shell) Close() error {
	var result error
	s.execute(func() {
		for remote, assoc := range s.associations {
			assoc.Terminate(s.sink, s.settings.AssociationTombstoneTTL)
			delete(s.associations, remote)
		}
	})
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			result = multierr.Append(result, err)
		}
	}
	s.once.Do(func() { close(s.stop) })
	return result
}

// AssociationFor returns the Association for remote, creating one and
// initiating a handshake if none exists, per spec.md §4.5. If a tombstone
// bars remote, the returned Association is immediately tombstoned so every
// send dead-letters.
func (s *Shell) AssociationFor(remote node.UniqueNode) *association.Association {
	var assoc *association.Association
	s.execute(func() {
		if existing, ok := s.associations[remote]; ok {
			assoc = existing
			return
		}
		if _, tombstoned := s.tombstones[remote]; tombstoned {
			assoc = association.New(s.self, remote, s.logger)
			assoc.Terminate(s.sink, s.settings.AssociationTombstoneTTL)
			return
		}
		assoc = association.New(s.self, remote, s.logger)
		s.associations[remote] = assoc
		go s.initiateHandshake(remote)
	})
	return assoc
}

func (s *Shell) initiateHandshake(remote node.UniqueNode) {
	addr := fmt.Sprintf("%s:%d", remote.Host, remote.Port)
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.HandshakeTimeout)
	defer cancel()

	conn, err := transport.Dial(ctx, addr, handshake.Offer{Sender: s.self, Target: remote})
	if err != nil {
		s.logger.Warnf("handshake dial to %s failed: %v", remote, err)
		s.OnHandshakeRejected(remote, handshake.ReasonOther)
		return
	}

	_ = conn.SetDeadline(time.Now().Add(s.settings.HandshakeTimeout))
	frame, err := conn.ReadHandshakeFrame()
	if err != nil {
		s.logger.Warnf("handshake reply from %s failed: %v", remote, err)
		_ = conn.Close()
		s.OnHandshakeRejected(remote, handshake.ReasonOther)
		return
	}
	_ = conn.SetDeadline(time.Time{})

	switch frame.Tag {
	case wire.TagAccept:
		channel := conn.Promote(s.codecCtx, s.logger, s.inbox)
		s.OnHandshakeCompleted(remote, channel)
	case wire.TagReject:
		_ = conn.Close()
		s.OnHandshakeRejected(remote, frame.Reject.Reason)
	default:
		_ = conn.Close()
		s.OnHandshakeRejected(remote, handshake.ReasonOther)
	}
}

// HandleOffer implements transport.OfferHandler: it is called once per
// inbound connection with its opening Offer frame, and runs the acceptor
// side of the protocol in §4.3.
func (s *Shell) HandleOffer(conn *transport.Conn, offer handshake.Offer) {
	s.execute(func() {
		s.handleOfferLocked(conn, offer)
	})
}

func (s *Shell) handleOfferLocked(conn *transport.Conn, offer handshake.Offer) {
	if offer.Target != s.self {
		s.rejectLocked(conn, handshake.ReasonWrongTarget, "offer targeted a different UniqueNode")
		return
	}
	remote := offer.Sender

	if _, tombstoned := s.tombstones[remote]; tombstoned {
		s.rejectLocked(conn, handshake.ReasonTombstoned, "remote node is tombstoned")
		return
	}

	// Address reuse: an associated entry at the same host:port but a
	// different incarnation means the prior process is dead.
	for key, existing := range s.associations {
		if key == remote || !key.SameEndpoint(remote) {
			continue
		}
		if existing.State() != association.Associated {
			continue
		}
		tomb := existing.Terminate(s.sink, s.settings.AssociationTombstoneTTL)
		s.tombstones[tomb.RemoteNode] = tomb
		delete(s.associations, key)
		break
	}

	if existing, ok := s.associations[remote]; ok {
		switch existing.State() {
		case association.Associated:
			s.rejectLocked(conn, handshake.ReasonDuplicate, "already associated")
			return
		case association.Associating:
			if handshake.Winner(s.self, remote) == s.self {
				s.rejectLocked(conn, handshake.ReasonConcurrentLost, "lost tie-break")
				return
			}
			// remote wins the tie-break: proceed to accept its offer using
			// the existing associating Association below.
		}
	}

	assoc, ok := s.associations[remote]
	if !ok {
		assoc = association.New(s.self, remote, s.logger)
		s.associations[remote] = assoc
	}

	if err := conn.WriteAccept(handshake.Accept{Acceptor: s.self}); err != nil {
		s.logger.Warnf("writing Accept to %s failed: %v", remote, err)
		_ = conn.Close()
		return
	}
	channel := conn.Promote(s.codecCtx, s.logger, s.inbox)
	assoc.CompleteAssociation(channel)
}

func (s *Shell) rejectLocked(conn *transport.Conn, reason handshake.RejectReason, message string) {
	_ = conn.WriteReject(handshake.Reject{Reason: reason, Message: message})
	_ = conn.Close()
}

// OnHandshakeCompleted is invoked by the initiator side once its offer is
// accepted, completing the matching entry.
func (s *Shell) OnHandshakeCompleted(remote node.UniqueNode, channel transport.Channel) {
	s.execute(func() {
		assoc, ok := s.associations[remote]
		if !ok {
			_ = channel.Close()
			return
		}
		assoc.CompleteAssociation(channel)
	})
}

// OnHandshakeRejected is invoked by the initiator side when its offer is
// rejected or the attempt otherwise fails.
//
// A concurrentLost rejection is not itself a failure of the association:
// the tie-break loser's acceptor side is, by the protocol's symmetry,
// simultaneously accepting the winner's offer on the same pair of nodes, so
// the association reaches associated via that path instead. Terminating it
// here would race that completion and could tombstone a live association.
// Every other reason reflects a genuine handshake failure and tombstones
// the entry.
func (s *Shell) OnHandshakeRejected(remote node.UniqueNode, reason handshake.RejectReason) {
	s.execute(func() {
		if reason == handshake.ReasonConcurrentLost {
			s.logger.Debugf("outbound handshake to %s lost tie-break, awaiting inbound completion", remote)
			return
		}
		assoc, ok := s.associations[remote]
		if !ok {
			return
		}
		tomb := assoc.Terminate(s.sink, s.settings.AssociationTombstoneTTL)
		s.tombstones[tomb.RemoteNode] = tomb
		delete(s.associations, remote)
	})
}

// ReapTombstones removes every tombstone whose RemovalDeadline has passed as
// of now.
func (s *Shell) ReapTombstones(now time.Time) {
	s.execute(func() {
		for remote, tomb := range s.tombstones {
			if !now.Before(tomb.RemovalDeadline) {
				delete(s.tombstones, remote)
			}
		}
	})
}

// TombstoneCount reports the number of live tombstones, for tests.
func (s *Shell) TombstoneCount() int {
	var n int
	s.execute(func() { n = len(s.tombstones) })
	return n
}

// AssociationCount reports the number of live associations, for tests.
func (s *Shell) AssociationCount() int {
	var n int
	s.execute(func() { n = len(s.associations) })
	return n
}
