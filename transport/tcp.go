package transport

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sact-io/sact/codec"
	"github.com/sact-io/sact/envelope"
	"github.com/sact-io/sact/errors"
	"github.com/sact-io/sact/log"
	"github.com/sact-io/sact/queue"
	"github.com/sact-io/sact/wire"
)

// TCPChannel is a Channel backed by a net.Conn, framing each outbound
// envelope with the wire package's codec. Writes are serialized through an
// internal PendingQueue drained by one writer goroutine, so WriteAndFlush
// never blocks on network I/O and ordering between calls that happen in
// happens-before order is preserved end to end.
type TCPChannel struct {
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	ctx    *codec.Context
	logger log.Logger
	inbox  Inbox

	outbound *queue.PendingQueue
	notify   chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	closeErr error
	closeMu  sync.Mutex
	wg       sync.WaitGroup
}

var _ Channel = (*TCPChannel)(nil)

// NewTCPChannel wraps conn as a Channel, starting its writer goroutine and,
// if inbox is non-nil, a reader goroutine that dispatches inbound user/system
// envelopes to it. r and w may be nil, in which case fresh buffered
// wrappers are created; a caller that already has a bufio.Reader with
// buffered-but-unconsumed bytes (the handshake Conn, after it has read the
// Offer/Accept/Reject frames off the wire) must pass it in, or those bytes
// are silently lost.
func NewTCPChannel(conn net.Conn, r *bufio.Reader, w *bufio.Writer, ctx *codec.Context, logger log.Logger, inbox Inbox) *TCPChannel {
	if logger == nil {
		logger = log.DiscardLogger
	}
	if r == nil {
		r = bufio.NewReader(conn)
	}
	if w == nil {
		w = bufio.NewWriter(conn)
	}
	c := &TCPChannel{
		conn:     conn,
		r:        r,
		w:        w,
		ctx:      ctx,
		logger:   logger,
		inbox:    inbox,
		outbound: queue.New(),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.writeLoop()
	if inbox != nil {
		c.wg.Add(1)
		go c.readLoop()
	}
	return c
}

// WriteAndFlush enqueues env for writing. See Channel.
func (c *TCPChannel) WriteAndFlush(env envelope.TransportEnvelope) error {
	if c.closed.Load() {
		env.Complete(errors.ErrAssociationTerminated)
		return errors.ErrAssociationTerminated
	}
	c.outbound.Enqueue(env)
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

// Close closes the underlying connection and stops both loops. Idempotent.
func (c *TCPChannel) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed.Swap(true) {
		return c.closeErr
	}
	close(c.done)
	c.closeErr = c.conn.Close()
	c.wg.Wait()
	return c.closeErr
}

func (c *TCPChannel) writeLoop() {
	defer c.wg.Done()
	for {
		env, ok := c.outbound.Dequeue()
		if !ok {
			select {
			case <-c.notify:
				continue
			case <-c.done:
				c.drainOnClose()
				return
			}
		}
		err := c.writeOne(c.w, env)
		env.Complete(err)
		if err != nil {
			c.logger.Errorf("channel write failed: %v", err)
		}
	}
}

// drainOnClose fails every envelope still queued when Close raced the
// writer loop, so no promise is left permanently unresolved.
func (c *TCPChannel) drainOnClose() {
	for _, env := range c.outbound.DequeueAll() {
		env.Complete(errors.ErrAssociationTerminated)
	}
}

func (c *TCPChannel) writeOne(w *bufio.Writer, env envelope.TransportEnvelope) error {
	recipient, err := wire.ResolveAddress(c.ctx, env.Recipient)
	if err != nil {
		return err
	}
	switch env.Kind {
	case envelope.KindUser:
		if err := wire.WriteUserEnvelope(w, recipient, env.Payload); err != nil {
			return errors.WrapChannelWrite(err)
		}
	case envelope.KindSystem:
		if err := wire.WriteSystemEnvelope(w, recipient, env.SysMsg); err != nil {
			return errors.WrapChannelWrite(err)
		}
	}
	if err := w.Flush(); err != nil {
		return errors.WrapChannelWrite(err)
	}
	return nil
}

func (c *TCPChannel) readLoop() {
	defer c.wg.Done()
	for {
		tag, err := wire.ReadTag(c.r)
		if err != nil {
			if err != io.EOF {
				c.logger.Warnf("channel read failed: %v", err)
			}
			return
		}
		switch tag {
		case wire.TagUserEnvelope:
			recipient, payload, err := wire.ReadUserEnvelope(c.r)
			if err != nil {
				c.logger.Warnf("invalid user envelope frame: %v", err)
				return
			}
			c.inbox.Deliver(recipient, payload)
		case wire.TagSystemEnvelope:
			recipient, msg, err := wire.ReadSystemEnvelope(c.r)
			if err != nil {
				c.logger.Warnf("invalid system envelope frame: %v", err)
				return
			}
			c.inbox.DeliverSystem(recipient, msg)
		default:
			c.logger.Warnf("unexpected frame tag %x on associated channel", tag)
			return
		}
	}
}
