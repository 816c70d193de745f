package wire

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/codec"
	"github.com/sact-io/sact/envelope"
	"github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/handshake"
	"github.com/sact-io/sact/node"
)

func testUniqueNode(nid uint32) node.UniqueNode {
	return node.UniqueNode{Node: node.New("sys", "127.0.0.1", 7337), ID: node.NodeID(nid)}
}

func TestUniqueNodeRoundTrip(t *testing.T) {
	n := testUniqueNode(0xAAAA)
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteUniqueNode(w, n))
	require.NoError(t, w.Flush())

	decoded, err := ReadUniqueNode(&buf)
	require.NoError(t, err)
	assert.Equal(t, n, decoded)
}

func TestActorAddressRoundTrip(t *testing.T) {
	n := testUniqueNode(1)
	addr := address.New(n, []string{"user", "actor1"}, 7)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteActorAddress(w, addr))
	require.NoError(t, w.Flush())

	decoded, err := ReadActorAddress(&buf)
	require.NoError(t, err)
	assert.True(t, addr.Equal(decoded))
}

func TestResolveAddressSubstitutesLocalNode(t *testing.T) {
	local := testUniqueNode(1)
	ctx := codec.NewContext(local)
	addr := address.NewLocal([]string{"user", "actor1"}, 0)

	resolved, err := ResolveAddress(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, resolved.Node)
	assert.Equal(t, local, *resolved.Node)
}

func TestResolveAddressMissingContext(t *testing.T) {
	addr := address.NewLocal([]string{"user", "actor1"}, 0)
	_, err := ResolveAddress(&codec.Context{}, addr)
	assert.ErrorIs(t, err, errors.ErrMissingSerializationContext)
}

func TestOfferAcceptRejectRoundTrip(t *testing.T) {
	sender := testUniqueNode(1)
	target := testUniqueNode(2)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteOffer(w, handshake.Offer{Sender: sender, Target: target}))
	require.NoError(t, w.Flush())

	tag, err := ReadTag(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagOffer, tag)

	offer, err := ReadOffer(&buf)
	require.NoError(t, err)
	assert.Equal(t, sender, offer.Sender)
	assert.Equal(t, target, offer.Target)

	buf.Reset()
	w = bufio.NewWriter(&buf)
	require.NoError(t, WriteReject(w, handshake.Reject{Reason: handshake.ReasonTombstoned, Message: "gone"}))
	require.NoError(t, w.Flush())
	tag, err = ReadTag(&buf)
	require.NoError(t, err)
	assert.Equal(t, TagReject, tag)
	rej, err := ReadReject(&buf)
	require.NoError(t, err)
	assert.Equal(t, handshake.ReasonTombstoned, rej.Reason)
	assert.Equal(t, "gone", rej.Message)
}

func TestWatchEnvelopeRoundTrip(t *testing.T) {
	n := testUniqueNode(1)
	watchee := address.New(n, []string{"user", "a"}, 1)
	watcher := address.New(n, []string{"user", "b"}, 2)
	recipient := address.New(n, []string{"user", "a"}, 1)
	msg := envelope.Watch(watchee, watcher)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteSystemEnvelope(w, recipient, msg))
	require.NoError(t, w.Flush())

	tag, err := ReadTag(&buf)
	require.NoError(t, err)
	require.Equal(t, TagSystemEnvelope, tag)

	decodedRecipient, decodedMsg, err := ReadSystemEnvelope(&buf)
	require.NoError(t, err)
	assert.True(t, recipient.Equal(decodedRecipient))
	assert.Equal(t, envelope.SystemWatch, decodedMsg.Type)
	assert.True(t, watchee.Equal(decodedMsg.Watchee))
	assert.True(t, watcher.Equal(decodedMsg.Watcher))
}

func TestTerminatedEnvelopeRoundTrip(t *testing.T) {
	n := testUniqueNode(1)
	ref := address.New(n, []string{"user", "a"}, 1)
	msg := envelope.Terminated(ref, true, false)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteSystemEnvelope(w, ref, msg))
	require.NoError(t, w.Flush())

	_, err := ReadTag(&buf)
	require.NoError(t, err)
	_, decodedMsg, err := ReadSystemEnvelope(&buf)
	require.NoError(t, err)
	assert.Equal(t, envelope.SystemTerminated, decodedMsg.Type)
	assert.True(t, decodedMsg.ExistenceConfirmed)
	assert.False(t, decodedMsg.AddressTerminated)
}

func TestUserEnvelopeRoundTrip(t *testing.T) {
	n := testUniqueNode(1)
	recipient := address.New(n, []string{"user", "a"}, 1)
	payload := []byte("hello world")

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteUserEnvelope(w, recipient, payload))
	require.NoError(t, w.Flush())

	tag, err := ReadTag(&buf)
	require.NoError(t, err)
	require.Equal(t, TagUserEnvelope, tag)

	decodedRecipient, decodedPayload, err := ReadUserEnvelope(&buf)
	require.NoError(t, err)
	assert.True(t, recipient.Equal(decodedRecipient))
	assert.Equal(t, payload, decodedPayload)
}

func TestReadSystemEnvelopeUnknownTypeFails(t *testing.T) {
	n := testUniqueNode(1)
	recipient := address.New(n, []string{"user", "a"}, 1)

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteActorAddress(w, recipient))
	require.NoError(t, w.WriteByte(0x7F)) // unknown discriminator
	require.NoError(t, w.Flush())

	_, _, err := ReadSystemEnvelope(&buf)
	assert.ErrorIs(t, err, errors.ErrUnknownSystemMessageType)
}
