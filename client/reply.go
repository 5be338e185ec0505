package client

import (
	"context"
	"io"

	"supctl/protocol"
)

// Reply is the stream of replies to one Call.
//
//	Sending ──Send──→ Receiving ──complete reply──→ done (io.EOF)
//	                      └──────socket closed────→ ErrConnectionClosed
type Reply struct {
	c    *Client
	ctx  context.Context
	txn  uint32
	stop func() bool

	done bool
	err  error
}

// Next returns the next reply. After the complete-flagged reply it returns
// io.EOF; if the gateway closes the connection first it returns an error
// matching ErrConnectionClosed.
func (r *Reply) Next() (*protocol.WireMessage, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.done {
		return nil, io.EOF
	}

	for {
		w, err := r.c.conn.ReadMessage()
		if err != nil {
			r.err = r.c.classify(r.ctx, err)
			r.Close()
			return nil, r.err
		}

		txn, ok := w.Transaction()
		if !ok || !txn.IsResponse() || txn.ID() != r.txn {
			r.c.logger.Debug().Str("message_id", w.MessageID()).Msg("dropping reply for another transaction")
			continue
		}
		if txn.IsComplete() {
			r.done = true
			r.Close()
		}
		return w, nil
	}
}

// Collect reads every remaining reply. A NetErr final reply is returned as
// a KindNet error along with the replies read so far.
func (r *Reply) Collect() ([]*protocol.WireMessage, error) {
	var replies []*protocol.WireMessage
	for {
		w, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return replies, err
		}
		replies = append(replies, w)
	}
	if err := finalError(replies); err != nil {
		return replies, err
	}
	return replies, nil
}

// Close stops ctx from interrupting later calls on the same Client. Next
// calls it once the stream ends.
func (r *Reply) Close() {
	if r.stop != nil {
		r.c.unbind(r.stop)
		r.stop = nil
	}
}
