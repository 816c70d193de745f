package association

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/deadletter"
	"github.com/sact-io/sact/envelope"
	sacterrors "github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/node"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockChannel is a synchronous, in-memory transport.Channel: writes resolve
// their promise immediately and are recorded in order, so tests can assert
// on exact wire ordering without a real network round trip.
type mockChannel struct {
	mu     sync.Mutex
	writes []envelope.TransportEnvelope
	closed bool
}

func (m *mockChannel) WriteAndFlush(env envelope.TransportEnvelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		env.Complete(sacterrors.ErrAssociationTerminated)
		return sacterrors.ErrAssociationTerminated
	}
	m.writes = append(m.writes, env)
	env.Complete(nil)
	return nil
}

func (m *mockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockChannel) log() []envelope.TransportEnvelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]envelope.TransportEnvelope(nil), m.writes...)
}

// gatedChannel wraps a mockChannel and, on its first WriteAndFlush call,
// blocks until proceed is closed after signaling started — used to hold
// CompleteAssociation mid-flush so a concurrent Send can be raced against it.
type gatedChannel struct {
	inner   *mockChannel
	started chan struct{}
	proceed chan struct{}
	first   sync.Once
}

func (g *gatedChannel) WriteAndFlush(env envelope.TransportEnvelope) error {
	g.first.Do(func() {
		close(g.started)
		<-g.proceed
	})
	return g.inner.WriteAndFlush(env)
}

func (g *gatedChannel) Close() error { return g.inner.Close() }

func testSelf() node.UniqueNode {
	return node.UniqueNode{Node: node.New("self", "127.0.0.1", 7337), ID: node.NodeID(1)}
}

func testRemote() node.UniqueNode {
	return node.UniqueNode{Node: node.New("remote", "127.0.0.1", 7338), ID: node.NodeID(2)}
}

func userEnvelope(tag string) envelope.TransportEnvelope {
	return envelope.NewUserEnvelope([]byte(tag), address.Address{}, nil)
}

// Scenario 1 of the testable-properties list: pre-association buffering.
func TestPreAssociationBuffering(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	e1, e2, e3 := userEnvelope("e1"), userEnvelope("e2"), userEnvelope("e3")

	a.Send(e1)
	a.Send(e2)
	a.Send(e3)

	channel := &mockChannel{}
	a.CompleteAssociation(channel)

	written := channel.log()
	require.Len(t, written, 3)
	assert.Equal(t, []byte("e1"), written[0].Payload)
	assert.Equal(t, []byte("e2"), written[1].Payload)
	assert.Equal(t, []byte("e3"), written[2].Payload)
	assert.Equal(t, Associated, a.State())
}

// Scenario 4: tombstoned send.
func TestTombstonedSendDeadLetters(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	sink := deadletter.NewLoggingSink(nil)
	a.Terminate(sink, time.Hour)

	promise := envelope.NewPromise()
	env := envelope.NewUserEnvelope([]byte("late"), address.Address{}, promise)
	a.Send(env)

	assert.Equal(t, int64(1), sink.CountFor(testRemote()))
	assert.ErrorIs(t, promise.Wait(), sacterrors.ErrAssociationTerminated)
}

func TestTerminateFromAssociatingRedirectsQueueToSink(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	sink := deadletter.NewLoggingSink(nil)

	promise := envelope.NewPromise()
	a.Send(envelope.NewUserEnvelope([]byte("queued"), address.Address{}, promise))
	a.Terminate(sink, time.Hour)

	assert.Equal(t, int64(1), sink.CountFor(testRemote()))
	assert.ErrorIs(t, promise.Wait(), sacterrors.ErrAssociationTerminated)
	assert.Equal(t, Tombstone, a.State())
}

func TestTerminateFromAssociatedClosesChannel(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	channel := &mockChannel{}
	a.CompleteAssociation(channel)

	sink := deadletter.NewLoggingSink(nil)
	a.Terminate(sink, time.Hour)

	channel.mu.Lock()
	closed := channel.closed
	channel.mu.Unlock()
	assert.True(t, closed)
}

func TestCompleteAssociationTwicePanics(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	a.CompleteAssociation(&mockChannel{})
	assert.Panics(t, func() { a.CompleteAssociation(&mockChannel{}) })
}

func TestCompleteAssociationFromTombstoneClosesAndReturns(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	a.Terminate(deadletter.NewLoggingSink(nil), time.Hour)

	channel := &mockChannel{}
	assert.NotPanics(t, func() { a.CompleteAssociation(channel) })
	channel.mu.Lock()
	closed := channel.closed
	channel.mu.Unlock()
	assert.True(t, closed)
	assert.Equal(t, Tombstone, a.State())
}

func TestTerminateIsIdempotent(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	sink := deadletter.NewLoggingSink(nil)
	first := a.Terminate(sink, time.Hour)
	second := a.Terminate(sink, time.Hour)
	assert.Equal(t, first.RemoteNode, second.RemoteNode)
	assert.Equal(t, int64(0), sink.Count())
}

// Property 3: sent == written + deadLettered when nothing is left outstanding.
func TestCountsConserveAcrossAssociatedSends(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	channel := &mockChannel{}
	a.CompleteAssociation(channel)

	for i := 0; i < 5; i++ {
		a.Send(userEnvelope("m"))
	}

	sent, written, deadLettered := a.Counts()
	assert.Equal(t, int64(5), sent)
	assert.Equal(t, int64(5), written)
	assert.Equal(t, int64(0), deadLettered)
}

func TestCountsConserveAcrossTombstonedSends(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	sink := deadletter.NewLoggingSink(nil)
	a.Terminate(sink, time.Hour)

	for i := 0; i < 3; i++ {
		a.Send(userEnvelope("m"))
	}

	sent, written, deadLettered := a.Counts()
	assert.Equal(t, int64(3), sent)
	assert.Equal(t, int64(0), written)
	assert.Equal(t, int64(3), deadLettered)
}

// TestCompleteAssociationHoldsLockThroughFlush is the concurrent-Send
// regression for the ordering invariant of spec.md §4.4 testable property 2:
// a Send racing CompleteAssociation's drain must never write its (newer)
// envelope ahead of the envelopes CompleteAssociation is still flushing.
func TestCompleteAssociationHoldsLockThroughFlush(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	a.Send(userEnvelope("old"))

	gated := &gatedChannel{inner: &mockChannel{}, started: make(chan struct{}), proceed: make(chan struct{})}

	completeDone := make(chan struct{})
	go func() {
		a.CompleteAssociation(gated)
		close(completeDone)
	}()

	<-gated.started // CompleteAssociation is now mid-flush, blocked on the gate.

	sendDone := make(chan struct{})
	go func() {
		a.Send(userEnvelope("new"))
		close(sendDone)
	}()

	select {
	case <-sendDone:
		t.Fatal("Send completed before CompleteAssociation released a.mu")
	case <-time.After(50 * time.Millisecond):
	}

	close(gated.proceed)
	<-completeDone
	<-sendDone

	written := gated.inner.log()
	require.Len(t, written, 2)
	assert.Equal(t, []byte("old"), written[0].Payload)
	assert.Equal(t, []byte("new"), written[1].Payload)
}

func TestWithClockAffectsRemovalDeadline(t *testing.T) {
	a := New(testSelf(), testRemote(), nil)
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	a.WithClock(func() time.Time { return fixed })

	tomb := a.Terminate(deadletter.NewLoggingSink(nil), 10*time.Millisecond)
	assert.Equal(t, fixed.Add(10*time.Millisecond), tomb.RemovalDeadline)
}
