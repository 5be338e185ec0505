package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"supctl/ctl"
	"supctl/message"
	"supctl/metrics"
	"supctl/protocol"
	"supctl/transport"
)

var (
	ErrHandshakeTimeout  = errors.New("server: handshake timed out")
	ErrHandshakeExpected = errors.New("server: first message must be a Handshake")
	ErrHandshakeNoTxn    = errors.New("server: handshake must be a transaction")
	ErrUnauthorized      = errors.New("server: client failed authorization")
)

// handshake reads the first message and authorizes the client. It replies
// NetOk on success and NetErr{Unauthorized} on a key mismatch; every other
// failure closes the connection without a reply.
func handshake(ctx context.Context, conn *transport.Conn, authKey string, timeout time.Duration) error {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()
	defer conn.SetDeadline(time.Time{})

	w, err := conn.ReadMessage()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrHandshakeTimeout
		}
		return err
	}
	if w.MessageID() != message.IDHandshake {
		return ErrHandshakeExpected
	}
	txn, ok := w.Transaction()
	if !ok {
		return ErrHandshakeNoTxn
	}
	m, err := message.Parse[message.Handshake](w)
	if err != nil {
		return err
	}

	if m.Payload.AuthKey != authKey {
		reply, err := message.ToWire(message.Errorf(message.ErrUnauthorized, "%s", message.ErrUnauthorized.Description()), nil)
		if err == nil {
			reply.ReplyFor(txn, true)
			conn.Send(reply)
		}
		return ErrUnauthorized
	}

	reply, err := message.ToWire(&message.NetOk{}, nil)
	if err != nil {
		return err
	}
	reply.ReplyFor(txn, true)
	return conn.Send(reply)
}

type state int

const (
	stateReceiving state = iota
	stateSending
	stateSent
)

func (s state) String() string {
	switch s {
	case stateReceiving:
		return "receiving"
	case stateSending:
		return "sending"
	}
	return "sent"
}

// handler serves one authenticated connection: it reads a single command,
// hands it to the manager and streams the replies back until the
// transaction completes.
type handler struct {
	conn     *transport.Conn
	inbox    *ctl.Inbox
	dispatch map[string]Builder
	queue    *ctl.ReplyQueue
	logger   zerolog.Logger
}

func newHandler(conn *transport.Conn, inbox *ctl.Inbox, dispatch map[string]Builder, logger zerolog.Logger) *handler {
	return &handler{
		conn:     conn,
		inbox:    inbox,
		dispatch: dispatch,
		queue:    ctl.NewReplyQueue(),
		logger:   logger,
	}
}

func (h *handler) run(ctx context.Context) error {
	st := stateReceiving
	for {
		h.logger.Trace().Stringer("state", st).Msg("handler state")
		switch st {
		case stateReceiving:
			next, err := h.receive(ctx)
			if err != nil {
				return err
			}
			st = next
		case stateSending:
			reply, err := h.queue.Recv(ctx)
			if errors.Is(err, ctl.ErrQueueClosed) {
				st = stateSent
				continue
			}
			if err != nil {
				return err
			}
			if err := h.conn.Send(reply); err != nil {
				return err
			}
			metrics.RecordReply(reply.MessageID())
			if reply.IsComplete() {
				st = stateSent
			}
		case stateSent:
			return nil
		}
	}
}

func (h *handler) receive(ctx context.Context) (state, error) {
	w, err := h.conn.ReadMessage()
	if err != nil {
		return stateSent, err
	}

	build, ok := h.dispatch[w.MessageID()]
	if !ok {
		h.logger.Warn().Str("message_id", w.MessageID()).Msg("unhandled message")
		return stateSent, nil
	}
	op, err := build(w)
	if err != nil {
		h.logger.Debug().Err(err).Str("message_id", w.MessageID()).Msg("malformed request")
		if txn, ok := w.Transaction(); ok {
			h.replyError(txn, message.Errorf(message.ErrInternal, "malformed %s request: %v", w.MessageID(), err))
		}
		return stateSent, nil
	}

	txn := w.TransactionPtr()
	cmd := ctl.NewCommand(w.MessageID(), ctl.NewRequest(h.queue, txn), op)
	h.logger.Trace().Str("message_id", w.MessageID()).Msg("dispatching command")
	if err := h.inbox.Submit(ctx, cmd); err != nil {
		return stateSent, err
	}
	if txn == nil {
		return stateSent, nil
	}
	return stateSending, nil
}

func (h *handler) replyError(txn protocol.Txn, netErr *message.NetErr) {
	reply, err := message.ToWire(netErr, nil)
	if err != nil {
		return
	}
	reply.ReplyFor(txn, true)
	if err := h.conn.Send(reply); err == nil {
		metrics.RecordReply(reply.MessageID())
	}
}
