package transport

import (
	"bufio"
	"net"
	"time"

	"github.com/sact-io/sact/codec"
	"github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/handshake"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/wire"
)

// Conn is the raw, not-yet-associated connection a handshake runs over: a
// thin buffered wrapper around net.Conn restricted to the three handshake
// frame kinds (Offer/Accept/Reject). Once the handshake completes, Promote
// hands the same underlying connection — including any bytes already
// buffered past the handshake frames — to a TCPChannel.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
}

// NewConn wraps raw for the handshake phase.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, r: bufio.NewReader(raw), w: bufio.NewWriter(raw)}
}

// WriteOffer writes and flushes an Offer frame.
func (c *Conn) WriteOffer(o handshake.Offer) error {
	if err := wire.WriteOffer(c.w, o); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteAccept writes and flushes an Accept frame.
func (c *Conn) WriteAccept(a handshake.Accept) error {
	if err := wire.WriteAccept(c.w, a); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteReject writes and flushes a Reject frame.
func (c *Conn) WriteReject(rej handshake.Reject) error {
	if err := wire.WriteReject(c.w, rej); err != nil {
		return err
	}
	return c.w.Flush()
}

// HandshakeFrame is the tagged result of ReadHandshakeFrame.
type HandshakeFrame struct {
	Tag    wire.Tag
	Offer  handshake.Offer
	Accept handshake.Accept
	Reject handshake.Reject
}

// ReadHandshakeFrame reads one frame and requires it to be an
// Offer/Accept/Reject; any other tag is ErrInvalidWireFormat, since only
// those three frame kinds are legal before a handshake completes.
func (c *Conn) ReadHandshakeFrame() (HandshakeFrame, error) {
	tag, err := wire.ReadTag(c.r)
	if err != nil {
		return HandshakeFrame{}, err
	}
	switch tag {
	case wire.TagOffer:
		offer, err := wire.ReadOffer(c.r)
		if err != nil {
			return HandshakeFrame{}, err
		}
		return HandshakeFrame{Tag: tag, Offer: offer}, nil
	case wire.TagAccept:
		accept, err := wire.ReadAccept(c.r)
		if err != nil {
			return HandshakeFrame{}, err
		}
		return HandshakeFrame{Tag: tag, Accept: accept}, nil
	case wire.TagReject:
		reject, err := wire.ReadReject(c.r)
		if err != nil {
			return HandshakeFrame{}, err
		}
		return HandshakeFrame{Tag: tag, Reject: reject}, nil
	default:
		return HandshakeFrame{}, errors.WrapInvalidWireFormat("unexpected frame during handshake")
	}
}

// Promote hands the connection to a new TCPChannel, preserving any bytes
// already buffered in the handshake reader/writer.
func (c *Conn) Promote(ctx *codec.Context, logger log.Logger, inbox Inbox) *TCPChannel {
	return NewTCPChannel(c.raw, c.r, c.w, ctx, logger, inbox)
}

// Close closes the underlying connection without promoting it (used on
// rejection).
func (c *Conn) Close() error {
	return c.raw.Close()
}

// RemoteAddr returns the underlying connection's remote address, useful for
// logging before the peer's UniqueNode is known.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// SetDeadline bounds how long the handshake phase may take on this
// connection, per ClusterSettings.HandshakeTimeout. Pass the zero time to
// clear it once the handshake completes.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}
