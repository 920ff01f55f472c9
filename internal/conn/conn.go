// Package conn runs one SV2 connection's I/O over an established noise
// transport: a reader task decrypts inbound frames and dispatches each
// decoded message inline into zero or more routed sends, and a writer
// task drains an outbound queue. The two run as an errgroup.Group bound
// to the connection's context, so either task's failure (a read error, a
// decode error, a closed socket) cancels the other and tears the
// connection down together — the same session-cancellation semantics
// internal/work/generator.go reaches for with an ad hoc done channel,
// generalized here to a structured task group running one reader and one
// writer per connection.
package conn

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stratum-sv2/sv2core/internal/frame"
	"github.com/stratum-sv2/sv2core/internal/noise"
	"github.com/stratum-sv2/sv2core/internal/sv2msg"
	"github.com/stratum-sv2/sv2core/internal/syncutil"
)

const outboundQueueCapacity = 64

// readBufSize is how much is read off the socket per net.Conn.Read call;
// the noise/frame decoders buffer and reassemble across reads as needed.
const readBufSize = 4096

// Handlers is the capability set a Conn dispatches decoded messages to.
// A nil field means that sub-protocol/direction isn't registered on this
// connection; sv2msg's dispatch returns sv2msg.ErrWrongCapability for it,
// and the Conn logs and drops the frame.
type Handlers struct {
	DownstreamCommon sv2msg.DownstreamCommonHandler
	DownstreamMining sv2msg.DownstreamMiningHandler
	UpstreamCommon   sv2msg.UpstreamCommonHandler
	UpstreamMining   sv2msg.UpstreamMiningHandler
}

// Router carries out the routing a Directive describes: forwarding to a
// named remote, responding to the connection a message arrived on, or
// recording an event. Implemented by a connection registry that knows
// how to look up a remote by name; a Conn has no visibility into its
// siblings.
type Router interface {
	Route(from string, d sv2msg.Directive) error
}

// Conn owns one established SV2 connection: a raw net.Conn, its noise
// transport, and the reader/writer tasks moving frames across it.
type Conn struct {
	ID         string
	IsUpstream bool

	raw       net.Conn
	transport *noise.Transport
	log       *zap.Logger
	handlers  Handlers
	router    Router

	out    *syncutil.BoundedQueue[sv2msg.Message]
	cancel context.CancelFunc
}

// New creates a Conn ready to Run. id names the connection for routing
// and logging (typically the remote address or a negotiated session
// name); transport must already have completed its handshake.
func New(id string, isUpstream bool, raw net.Conn, transport *noise.Transport, handlers Handlers, router Router, log *zap.Logger) *Conn {
	return &Conn{
		ID:         id,
		IsUpstream: isUpstream,
		raw:        raw,
		transport:  transport,
		log:        log,
		handlers:   handlers,
		router:     router,
		out:        syncutil.NewBoundedQueue[sv2msg.Message](outboundQueueCapacity, "conn:"+id, log),
	}
}

// Send queues msg for the writer task. It never blocks; if the outbound
// queue is full the message is dropped and logged (a slow/stalled peer
// must not be able to stall the rest of the system).
func (c *Conn) Send(msg sv2msg.Message) {
	c.out.Push(msg)
}

// Run drives the connection until ctx is canceled, the socket closes, or
// a decode/dispatch error occurs, then closes the raw connection and
// returns the error that ended it (nil on a clean shutdown).
func (c *Conn) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	// readLoop blocks in raw.Read, which does not watch gctx; closing the
	// socket once gctx is done unblocks it.
	go func() {
		<-gctx.Done()
		c.raw.Close()
	}()

	err := g.Wait()
	c.raw.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close stops the connection's tasks; Run's error return will be
// context.Canceled.
func (c *Conn) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

func (c *Conn) readLoop(ctx context.Context) error {
	noiseDec := frame.NewNoiseDecoder()
	plainDec := frame.NewDecoder()
	buf := make([]byte, readBufSize)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := c.raw.Read(buf)
		if err != nil {
			return fmt.Errorf("conn %s: read: %w", c.ID, err)
		}
		noiseDec.Feed(buf[:n])

		for {
			ciphertext, err := noiseDec.Next()
			if err != nil {
				if _, incomplete := err.(*frame.Incomplete); incomplete {
					break
				}
				return fmt.Errorf("conn %s: noise frame: %w", c.ID, err)
			}
			plaintext, err := c.transport.Decrypt(ciphertext)
			if err != nil {
				return fmt.Errorf("conn %s: decrypt: %w", c.ID, err)
			}
			plainDec.Feed(plaintext)

			for {
				f, err := plainDec.Next()
				if err != nil {
					if _, incomplete := err.(*frame.Incomplete); incomplete {
						break
					}
					return fmt.Errorf("conn %s: sv2 frame: %w", c.ID, err)
				}
				if err := c.dispatch(f); err != nil {
					return err
				}
			}
		}
	}
}

func (c *Conn) dispatch(f *frame.Frame) error {
	payload := append([]byte(nil), f.Payload...)

	var d sv2msg.Directive
	var err error
	if c.IsUpstream {
		d, err = sv2msg.DispatchUpstream(c.ID, f.Header.MsgType, payload, c.handlers.UpstreamCommon, c.handlers.UpstreamMining)
	} else {
		d, err = sv2msg.DispatchDownstream(c.ID, f.Header.MsgType, payload, c.handlers.DownstreamCommon, c.handlers.DownstreamMining)
	}
	if err != nil {
		c.log.Warn("dropping undecodable frame",
			zap.String("conn", c.ID), zap.Uint8("msg_type", f.Header.MsgType), zap.Error(err))
		return nil
	}
	if d.IsRespond() {
		c.Send(d.Message)
		return nil
	}
	// RelaySame carries no message of its own (see sv2msg.RelaySame); the
	// original decode, anywhere it appears in the directive tree, is the
	// thing to forward unchanged.
	if orig, decodeErr := sv2msg.Decode(f.Header.MsgType, payload); decodeErr == nil {
		d = resolveRelaySame(d, orig)
	}
	if err := c.router.Route(c.ID, d); err != nil {
		c.log.Warn("routing failed", zap.String("conn", c.ID), zap.Uint8("msg_type", f.Header.MsgType), zap.Error(err))
	}
	return nil
}

// resolveRelaySame replaces every RelaySame directive in d (including
// nested Parts) with a RelayNew carrying orig, the message as originally
// decoded.
func resolveRelaySame(d sv2msg.Directive, orig sv2msg.Message) sv2msg.Directive {
	if d.IsRelaySame() {
		return sv2msg.RelayNew(d.Remote, orig)
	}
	if d.IsMultiple() {
		parts := make([]sv2msg.Directive, len(d.Parts))
		for i, part := range d.Parts {
			parts[i] = resolveRelaySame(part, orig)
		}
		return sv2msg.Multiple(parts...)
	}
	return d
}

func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.out.C():
			if !ok {
				return nil
			}
			if err := c.writeOne(msg); err != nil {
				return err
			}
		}
	}
}

func (c *Conn) writeOne(msg sv2msg.Message) error {
	payload := msg.Encode()
	plaintext, err := frame.Encode(0, msg.MsgType(), payload)
	if err != nil {
		return fmt.Errorf("conn %s: encode frame: %w", c.ID, err)
	}
	ciphertext, err := c.transport.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("conn %s: encrypt: %w", c.ID, err)
	}
	if _, err := c.raw.Write(frame.EncodeNoise(ciphertext)); err != nil {
		return fmt.Errorf("conn %s: write: %w", c.ID, err)
	}
	return nil
}
