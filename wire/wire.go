// Package wire implements the binary encoding of the association
// subsystem's protocol frames, byte-for-byte as specified: big-endian
// integers, 16-bit length-prefixed strings, tag bytes identifying each frame
// kind. No protobuf, no gRPC — this is the hand-framed protocol spec.md §6
// mandates.
package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/sact-io/sact/address"
	"github.com/sact-io/sact/codec"
	"github.com/sact-io/sact/envelope"
	"github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/handshake"
	"github.com/sact-io/sact/node"
)

// Tag identifies the frame kind on the wire.
type Tag byte

const (
	TagOffer          Tag = 0x01
	TagAccept         Tag = 0x02
	TagReject         Tag = 0x03
	TagUserEnvelope   Tag = 0x10
	TagSystemEnvelope Tag = 0x11
)

// --- primitive helpers ---

func writeString(w *bufio.Writer, s string) error {
	if len(s) > 0xFFFF {
		return errors.WrapInvalidWireFormat("string too long")
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteUniqueNode encodes the 5-tuple (protocol, systemName, host, port, nid).
func WriteUniqueNode(w *bufio.Writer, n node.UniqueNode) error {
	if err := writeString(w, n.Protocol); err != nil {
		return err
	}
	if err := writeString(w, n.SystemName); err != nil {
		return err
	}
	if err := writeString(w, n.Host); err != nil {
		return err
	}
	var portBuf [2]byte
	binary.BigEndian.PutUint16(portBuf[:], n.Port)
	if _, err := w.Write(portBuf[:]); err != nil {
		return err
	}
	var nidBuf [4]byte
	binary.BigEndian.PutUint32(nidBuf[:], uint32(n.ID))
	_, err := w.Write(nidBuf[:])
	return err
}

// ReadUniqueNode decodes a UniqueNode written by WriteUniqueNode.
func ReadUniqueNode(r io.Reader) (node.UniqueNode, error) {
	protocol, err := readString(r)
	if err != nil {
		return node.UniqueNode{}, err
	}
	systemName, err := readString(r)
	if err != nil {
		return node.UniqueNode{}, err
	}
	host, err := readString(r)
	if err != nil {
		return node.UniqueNode{}, err
	}
	var portBuf [2]byte
	if _, err := io.ReadFull(r, portBuf[:]); err != nil {
		return node.UniqueNode{}, err
	}
	var nidBuf [4]byte
	if _, err := io.ReadFull(r, nidBuf[:]); err != nil {
		return node.UniqueNode{}, err
	}
	return node.UniqueNode{
		Node: node.Node{
			Protocol:   protocol,
			SystemName: systemName,
			Host:       host,
			Port:       binary.BigEndian.Uint16(portBuf[:]),
		},
		ID: node.NodeID(binary.BigEndian.Uint32(nidBuf[:])),
	}, nil
}

// WriteActorAddress encodes an Address as {node, path, incarnation}. addr's
// Node must already be resolved (never nil) — callers resolve it through a
// codec.Context first via ResolveAddress.
func WriteActorAddress(w *bufio.Writer, addr address.Address) error {
	if addr.Node == nil {
		return errors.ErrMissingSerializationContext
	}
	if err := WriteUniqueNode(w, *addr.Node); err != nil {
		return err
	}
	if len(addr.Path) > 0xFFFF {
		return errors.WrapInvalidWireFormat("path too long")
	}
	var countBuf [2]byte
	binary.BigEndian.PutUint16(countBuf[:], uint16(len(addr.Path)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return err
	}
	for _, seg := range addr.Path {
		if err := writeString(w, seg); err != nil {
			return err
		}
	}
	var incBuf [4]byte
	binary.BigEndian.PutUint32(incBuf[:], addr.Incarnation)
	_, err := w.Write(incBuf[:])
	return err
}

// ReadActorAddress decodes an Address written by WriteActorAddress.
func ReadActorAddress(r io.Reader) (address.Address, error) {
	n, err := ReadUniqueNode(r)
	if err != nil {
		return address.Address{}, err
	}
	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return address.Address{}, err
	}
	count := binary.BigEndian.Uint16(countBuf[:])
	path := make([]string, 0, count)
	for i := uint16(0); i < count; i++ {
		seg, err := readString(r)
		if err != nil {
			return address.Address{}, err
		}
		if seg == "" {
			return address.Address{}, errors.WrapInvalidWireFormat("empty path segment")
		}
		path = append(path, seg)
	}
	var incBuf [4]byte
	if _, err := io.ReadFull(r, incBuf[:]); err != nil {
		return address.Address{}, err
	}
	return address.Address{Node: &n, Path: path, Incarnation: binary.BigEndian.Uint32(incBuf[:])}, nil
}

// ResolveAddress substitutes ctx.LocalNode for addr.Node when addr.Node is
// nil, returning ErrMissingSerializationContext when neither is available.
func ResolveAddress(ctx *codec.Context, addr address.Address) (address.Address, error) {
	resolved, missing := ctx.ResolveLocalNode(addr)
	if missing {
		return address.Address{}, errors.ErrMissingSerializationContext
	}
	return resolved, nil
}

// --- frames ---

// WriteOffer encodes an Offer frame, tag included.
func WriteOffer(w *bufio.Writer, o handshake.Offer) error {
	if err := w.WriteByte(byte(TagOffer)); err != nil {
		return err
	}
	if err := WriteUniqueNode(w, o.Sender); err != nil {
		return err
	}
	return WriteUniqueNode(w, o.Target)
}

// ReadOffer decodes an Offer frame body (tag already consumed).
func ReadOffer(r io.Reader) (handshake.Offer, error) {
	sender, err := ReadUniqueNode(r)
	if err != nil {
		return handshake.Offer{}, err
	}
	target, err := ReadUniqueNode(r)
	if err != nil {
		return handshake.Offer{}, err
	}
	return handshake.Offer{Sender: sender, Target: target}, nil
}

// WriteAccept encodes an Accept frame, tag included.
func WriteAccept(w *bufio.Writer, a handshake.Accept) error {
	if err := w.WriteByte(byte(TagAccept)); err != nil {
		return err
	}
	return WriteUniqueNode(w, a.Acceptor)
}

// ReadAccept decodes an Accept frame body (tag already consumed).
func ReadAccept(r io.Reader) (handshake.Accept, error) {
	acceptor, err := ReadUniqueNode(r)
	if err != nil {
		return handshake.Accept{}, err
	}
	return handshake.Accept{Acceptor: acceptor}, nil
}

// WriteReject encodes a Reject frame, tag included.
func WriteReject(w *bufio.Writer, rej handshake.Reject) error {
	if err := w.WriteByte(byte(TagReject)); err != nil {
		return err
	}
	if err := w.WriteByte(byte(rej.Reason)); err != nil {
		return err
	}
	return writeString(w, rej.Message)
}

// ReadReject decodes a Reject frame body (tag already consumed).
func ReadReject(r io.Reader) (handshake.Reject, error) {
	var reasonBuf [1]byte
	if _, err := io.ReadFull(r, reasonBuf[:]); err != nil {
		return handshake.Reject{}, err
	}
	msg, err := readString(r)
	if err != nil {
		return handshake.Reject{}, err
	}
	return handshake.Reject{Reason: handshake.RejectReason(reasonBuf[0]), Message: msg}, nil
}

// WriteUserEnvelope encodes a user TransportEnvelope's on-wire shape: tag,
// recipient address, length-prefixed opaque payload. The Promise, being
// local-only, never crosses the wire.
func WriteUserEnvelope(w *bufio.Writer, recipient address.Address, payload []byte) error {
	if err := w.WriteByte(byte(TagUserEnvelope)); err != nil {
		return err
	}
	if err := WriteActorAddress(w, recipient); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadUserEnvelope decodes a user envelope body (tag already consumed).
func ReadUserEnvelope(r io.Reader) (address.Address, []byte, error) {
	recipient, err := ReadActorAddress(r)
	if err != nil {
		return address.Address{}, nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return address.Address{}, nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return address.Address{}, nil, err
	}
	return recipient, payload, nil
}

const (
	sysTypeWatch      byte = 0
	sysTypeTerminated byte = 1
)

// WriteSystemEnvelope encodes a system TransportEnvelope: tag, recipient
// address, then the system-message-specific keyed encoding of §6.
func WriteSystemEnvelope(w *bufio.Writer, recipient address.Address, msg envelope.SystemMessage) error {
	if err := w.WriteByte(byte(TagSystemEnvelope)); err != nil {
		return err
	}
	if err := WriteActorAddress(w, recipient); err != nil {
		return err
	}
	switch msg.Type {
	case envelope.SystemWatch:
		if err := w.WriteByte(sysTypeWatch); err != nil {
			return err
		}
		if err := WriteActorAddress(w, msg.Watchee); err != nil {
			return err
		}
		return WriteActorAddress(w, msg.Watcher)
	case envelope.SystemTerminated:
		if err := w.WriteByte(sysTypeTerminated); err != nil {
			return err
		}
		if err := WriteActorAddress(w, msg.Ref); err != nil {
			return err
		}
		if err := writeBool(w, msg.ExistenceConfirmed); err != nil {
			return err
		}
		return writeBool(w, msg.AddressTerminated)
	default:
		return errors.WrapInvalidWireFormat("unknown system message type")
	}
}

// ReadSystemEnvelope decodes a system envelope body (tag already consumed).
// An unrecognized type discriminator returns ErrUnknownSystemMessageType: the
// caller must fail the enclosing handshake/connection, not skip the frame.
func ReadSystemEnvelope(r io.Reader) (address.Address, envelope.SystemMessage, error) {
	recipient, err := ReadActorAddress(r)
	if err != nil {
		return address.Address{}, envelope.SystemMessage{}, err
	}
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return address.Address{}, envelope.SystemMessage{}, err
	}
	switch typeBuf[0] {
	case sysTypeWatch:
		watchee, err := ReadActorAddress(r)
		if err != nil {
			return address.Address{}, envelope.SystemMessage{}, err
		}
		watcher, err := ReadActorAddress(r)
		if err != nil {
			return address.Address{}, envelope.SystemMessage{}, err
		}
		return recipient, envelope.Watch(watchee, watcher), nil
	case sysTypeTerminated:
		ref, err := ReadActorAddress(r)
		if err != nil {
			return address.Address{}, envelope.SystemMessage{}, err
		}
		existence, err := readBool(r)
		if err != nil {
			return address.Address{}, envelope.SystemMessage{}, err
		}
		terminated, err := readBool(r)
		if err != nil {
			return address.Address{}, envelope.SystemMessage{}, err
		}
		return recipient, envelope.Terminated(ref, existence, terminated), nil
	default:
		return address.Address{}, envelope.SystemMessage{}, errors.ErrUnknownSystemMessageType
	}
}

func writeBool(w *bufio.Writer, b bool) error {
	if b {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

// ReadTag reads the leading tag byte of any frame.
func ReadTag(r io.Reader) (Tag, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Tag(buf[0]), nil
}
