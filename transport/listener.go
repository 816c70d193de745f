package transport

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/sact-io/sact/handshake"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/wire"
)

// OfferHandler is what a Listener hands each inbound connection's Offer
// frame to. Implementations decide Accept/Reject and, on acceptance, drive
// the connection (including promoting it to a Channel) themselves — this
// keeps transport free of any dependency on cluster/association, avoiding an
// import cycle while still letting cluster.Shell own all handshake
// arbitration.
type OfferHandler interface {
	HandleOffer(conn *Conn, offer handshake.Offer)
}

// Listener accepts inbound connections and reads their opening Offer frame,
// handing each to an OfferHandler. Grounded on the teacher's remote server
// accept-loop shape, adapted from connectrpc/HTTP2 to a raw TCP listener
// since this subsystem's wire protocol is hand-framed, not protobuf.
type Listener struct {
	ln      net.Listener
	handler OfferHandler
	logger  log.Logger
}

// Listen opens a TCP listener at addr.
func Listen(addr string, handler OfferHandler, logger log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &Listener{ln: ln, handler: handler, logger: logger}, nil
}

// Addr returns the bound address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve runs the accept loop until ctx is canceled or Close is called. It is
// meant to be run inside an errgroup alongside the tombstone reaper, per
// cluster.Shell.Serve.
func (l *Listener) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		<-ctx.Done()
		return l.ln.Close()
	})
	group.Go(func() error {
		for {
			raw, err := l.ln.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}
			go l.handleConn(raw)
		}
	})
	return group.Wait()
}

func (l *Listener) handleConn(raw net.Conn) {
	conn := NewConn(raw)
	frame, err := conn.ReadHandshakeFrame()
	if err != nil {
		l.logger.Warnf("dropping connection from %s: %v", raw.RemoteAddr(), err)
		_ = conn.Close()
		return
	}
	if frame.Tag != wire.TagOffer {
		l.logger.Warnf("dropping connection from %s: expected Offer first", raw.RemoteAddr())
		_ = conn.Close()
		return
	}
	l.handler.HandleOffer(conn, frame.Offer)
}

// Close stops the listener.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Dial opens a connection to addr and sends offer, returning the connection
// positioned to read the Accept/Reject response.
func Dial(ctx context.Context, addr string, offer handshake.Offer) (*Conn, error) {
	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	conn := NewConn(raw)
	if err := conn.WriteOffer(offer); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}
