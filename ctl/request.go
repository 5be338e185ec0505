// Package ctl carries commands from the gateway to the service manager and
// their replies back.
//
//	handler ──Submit(Command)──→ Inbox ──→ manager
//	handler ←──Recv── ReplyQueue ←──ReplyPartial/ReplyComplete── Request
//
// Every Command owns one Request, and every Request feeds the ReplyQueue of
// the connection that submitted it.
package ctl

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"supctl/config"
	"supctl/message"
	"supctl/protocol"
)

var ErrTransactionComplete = errors.New("ctl: transaction already completed")

// Request is the reply sink of one command. It is used from the goroutine
// running the command only.
type Request struct {
	txn       *protocol.Txn
	queue     *ReplyQueue
	completed bool
}

// NewRequest returns a sink writing to queue. txn is nil for commands that
// arrived as casts; their replies are dropped.
func NewRequest(queue *ReplyQueue, txn *protocol.Txn) *Request {
	return &Request{txn: txn, queue: queue}
}

func (r *Request) Transaction() *protocol.Txn {
	return r.txn
}

// Completed reports whether the final reply has been sent.
func (r *Request) Completed() bool {
	return r.completed
}

// ReplyPartial sends a non-final reply.
func (r *Request) ReplyPartial(p message.Payload) error {
	return r.reply(p, false)
}

// ReplyComplete sends the final reply and closes the transaction.
func (r *Request) ReplyComplete(p message.Payload) error {
	return r.reply(p, true)
}

func (r *Request) reply(p message.Payload, complete bool) error {
	if r.completed {
		return ErrTransactionComplete
	}
	if r.txn == nil {
		log.Debug().Str("message_id", p.MessageID()).Msg("dropping reply to non-transactional request")
		r.completed = complete
		return nil
	}
	w, err := message.ToWire(p, nil)
	if err != nil {
		return err
	}
	w.ReplyFor(*r.txn, complete)
	if complete {
		r.completed = true
	}
	return r.queue.Push(w)
}

// Write sends p as a ConsoleLine partial reply.
func (r *Request) Write(p []byte) (int, error) {
	line := strings.ToValidUTF8(string(p), "�")
	if err := r.ReplyPartial(&message.ConsoleLine{Line: line}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close releases the reply queue. The connection stops waiting for replies
// even when no final reply was sent.
func (r *Request) Close() {
	r.queue.Close()
}

// Operation is the work a command performs against the manager.
type Operation func(cfg *config.Manager, req *Request) error

// Command is one unit of work submitted to the manager.
type Command struct {
	MessageID string
	Req       *Request
	op        Operation
}

func NewCommand(messageID string, req *Request, op Operation) Command {
	return Command{MessageID: messageID, Req: req, op: op}
}

func (c Command) Run(cfg *config.Manager) error {
	return c.op(cfg, c.Req)
}
