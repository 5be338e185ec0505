// Package client talks to a supervisor ctl gateway.
//
// A Client owns one authenticated connection. Calls are sequential: read
// a Reply to completion before issuing the next Call. The gateway closes the
// connection after serving one command, so most callers Connect, Call once
// and Close.
package client

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"supctl/message"
	"supctl/protocol"
	"supctl/transport"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultRetryDelay       = 100 * time.Millisecond
)

type Options struct {
	HandshakeTimeout time.Duration
	// DialRetries is how many extra dials to attempt while the gateway
	// refuses connections. The delay doubles after each attempt.
	DialRetries int
	RetryDelay  time.Duration
	Logger      zerolog.Logger
}

type Option func(*Options)

func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.HandshakeTimeout = d }
}

func WithDialRetries(n int, delay time.Duration) Option {
	return func(o *Options) {
		o.DialRetries = n
		o.RetryDelay = delay
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func newOptions(opts []Option) Options {
	o := Options{
		HandshakeTimeout: DefaultHandshakeTimeout,
		RetryDelay:       DefaultRetryDelay,
		Logger:           log.Logger,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type Client struct {
	conn    *transport.Conn
	nextTxn uint32
	logger  zerolog.Logger
}

// Connect dials addr and authenticates with authKey. It returns once the
// gateway has accepted the handshake.
func Connect(ctx context.Context, addr, authKey string, opts ...Option) (*Client, error) {
	o := newOptions(opts)
	conn, err := dial(ctx, addr, o)
	if err != nil {
		return nil, err
	}

	c := &Client{conn: conn, logger: o.Logger.With().Str("gateway", addr).Logger()}
	if err := c.handshake(ctx, authKey, o.HandshakeTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func dial(ctx context.Context, addr string, o Options) (*transport.Conn, error) {
	delay := o.RetryDelay
	for attempt := 0; ; attempt++ {
		conn, err := transport.Dial(ctx, addr)
		if err == nil {
			return conn, nil
		}
		if attempt >= o.DialRetries || !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, &Error{Kind: KindIO, Err: pkgerrors.Wrapf(err, "dial %s", addr)}
		}

		o.Logger.Debug().Str("addr", addr).Int("attempt", attempt+1).Dur("delay", delay).
			Msg("gateway refused connection, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &Error{Kind: KindIO, Err: ctx.Err()}
		}
		delay *= 2
	}
}

func (c *Client) handshake(ctx context.Context, authKey string, timeout time.Duration) error {
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := c.Call(hctx, &message.Handshake{AuthKey: authKey})
	if err != nil {
		return err
	}
	defer reply.Close()

	w, err := reply.Next()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &Error{Kind: KindIO, Err: ErrHandshakeTimeout}
		}
		return err
	}
	if err := message.TryOK(w); err != nil {
		return netError(err)
	}
	return nil
}

// Call sends payload as a new transaction and returns the reply stream.
// ctx bounds the whole exchange, including reading the replies.
func (c *Client) Call(ctx context.Context, payload message.Payload) (*Reply, error) {
	c.nextTxn = protocol.NextID(c.nextTxn)
	txn := protocol.NewTxn(c.nextTxn)
	w, err := message.ToWire(payload, &txn)
	if err != nil {
		return nil, &Error{Kind: KindIO, Err: err}
	}

	stop := c.bind(ctx)
	if err := c.conn.Send(w); err != nil {
		c.unbind(stop)
		return nil, c.classify(ctx, err)
	}
	c.logger.Trace().Str("message_id", payload.MessageID()).Stringer("txn", txn).Msg("call sent")
	return &Reply{c: c, ctx: ctx, txn: txn.ID(), stop: stop}, nil
}

// Cast sends payload without a transaction. The gateway never answers it.
func (c *Client) Cast(ctx context.Context, payload message.Payload) error {
	w, err := message.ToWire(payload, nil)
	if err != nil {
		return &Error{Kind: KindIO, Err: err}
	}
	stop := c.bind(ctx)
	defer c.unbind(stop)
	if err := c.conn.Send(w); err != nil {
		return c.classify(ctx, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// bind makes ctx's deadline and cancellation interrupt blocked socket I/O.
func (c *Client) bind(ctx context.Context) func() bool {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	}
	return context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
	})
}

func (c *Client) unbind(stop func() bool) {
	if stop() {
		c.conn.SetDeadline(time.Time{})
	}
}

func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, transport.ErrConnectionClosed) {
		return &Error{Kind: KindClosed, Err: err}
	}
	if ctx.Err() != nil {
		return &Error{Kind: KindIO, Err: ctx.Err()}
	}
	// the socket deadline can fire just before ctx's own timer
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Kind: KindIO, Err: context.DeadlineExceeded}
	}
	return &Error{Kind: KindIO, Err: err}
}
