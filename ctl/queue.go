package ctl

import (
	"context"
	"errors"
	"sync"

	"supctl/protocol"
)

var (
	ErrQueueClosed = errors.New("ctl: reply queue closed")
	ErrInboxClosed = errors.New("ctl: manager inbox closed")
)

// ReplyQueue is an unbounded single-producer single-consumer queue of
// replies. Push never blocks, so the manager is never held up by a slow
// client.
type ReplyQueue struct {
	mu     sync.Mutex
	items  []*protocol.WireMessage
	closed bool
	signal chan struct{}
}

func NewReplyQueue() *ReplyQueue {
	return &ReplyQueue{signal: make(chan struct{}, 1)}
}

func (q *ReplyQueue) Push(m *protocol.WireMessage) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.notify()
	return nil
}

// Recv blocks until a reply is available. Replies pushed before Close are
// still delivered; after that Recv returns ErrQueueClosed.
func (q *ReplyQueue) Recv(ctx context.Context) (*protocol.WireMessage, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			m := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return m, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close is idempotent.
func (q *ReplyQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notify()
}

func (q *ReplyQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Inbox is the bounded multi-producer queue feeding the manager. A full
// inbox blocks Submit, which stops the submitting connection from reading.
type Inbox struct {
	ch        chan Command
	done      chan struct{}
	closeOnce sync.Once
}

func NewInbox(size int) *Inbox {
	return &Inbox{
		ch:   make(chan Command, size),
		done: make(chan struct{}),
	}
}

func (in *Inbox) Submit(ctx context.Context, cmd Command) error {
	select {
	case <-in.done:
		return ErrInboxClosed
	default:
	}
	select {
	case in.ch <- cmd:
		return nil
	case <-in.done:
		return ErrInboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv returns the next command, or ErrInboxClosed once the inbox is closed.
func (in *Inbox) Recv(ctx context.Context) (Command, error) {
	select {
	case cmd := <-in.ch:
		return cmd, nil
	case <-in.done:
		return Command{}, ErrInboxClosed
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Close rejects further submissions and hands back the commands that were
// queued but never received.
func (in *Inbox) Close() []Command {
	in.closeOnce.Do(func() { close(in.done) })
	var pending []Command
	for {
		select {
		case cmd := <-in.ch:
			pending = append(pending, cmd)
		default:
			return pending
		}
	}
}
