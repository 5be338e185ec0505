package client

import (
	"fmt"
	"io"
	"strings"

	"supctl/message"
	"supctl/protocol"
)

// ReplyPrinter renders replies for an operator: console lines verbatim,
// progress as a bar that is redrawn in place.
type ReplyPrinter struct {
	out   io.Writer
	Total uint64
	Done  uint64
}

func NewReplyPrinter(out io.Writer) *ReplyPrinter {
	return &ReplyPrinter{out: out}
}

// Handle prints one reply and returns the gateway error for a NetErr.
func (p *ReplyPrinter) Handle(w *protocol.WireMessage) error {
	switch w.MessageID() {
	case message.IDConsoleLine:
		m, err := message.Parse[message.ConsoleLine](w)
		if err != nil {
			return &Error{Kind: KindIO, Err: err}
		}
		fmt.Fprint(p.out, m.Payload.Line)
	case message.IDNetProgress:
		m, err := message.Parse[message.NetProgress](w)
		if err != nil {
			return &Error{Kind: KindIO, Err: err}
		}
		p.progress(m.Payload)
	case message.IDNetErr:
		return netError(message.TryOK(w))
	case message.IDNetOk:
	default:
		fmt.Fprintf(p.out, "Unexpected reply %s\n", w.MessageID())
	}
	return nil
}

func (p *ReplyPrinter) progress(m *message.NetProgress) {
	if m.Total != p.Total {
		p.Total, p.Done = m.Total, 0
	}
	p.Done += m.Delta
	if p.Done > p.Total {
		p.Done = p.Total
	}

	const width = 40
	filled := width
	if p.Total > 0 {
		filled = int(p.Done * width / p.Total)
	}
	fmt.Fprintf(p.out, "\r[%s%s] %d/%d", strings.Repeat("=", filled), strings.Repeat(" ", width-filled), p.Done, p.Total)
	if p.Done == p.Total {
		fmt.Fprintln(p.out)
	}
}

// HandleReply prints every reply of reply to out and returns the gateway
// error, if any.
func HandleReply(out io.Writer, reply *Reply) error {
	p := NewReplyPrinter(out)
	for {
		w, err := reply.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := p.Handle(w); err != nil {
			return err
		}
	}
}

func finalError(replies []*protocol.WireMessage) error {
	if len(replies) == 0 {
		return nil
	}
	if err := message.TryOK(replies[len(replies)-1]); err != nil {
		return netError(err)
	}
	return nil
}
