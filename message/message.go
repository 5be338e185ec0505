// Package message defines the payloads exchanged over the control gateway
// and the typed envelope that binds a payload to an optional transaction.
//
// A payload's message id is its type name ("SvcStart", "NetErr", ...). The id
// travels in the frame so the receiver can pick the right type before
// touching the body.
package message

import (
	"errors"
	"fmt"

	"supctl/codec"
	"supctl/protocol"
)

var (
	ErrMessageIDMismatch = errors.New("message: message id does not match payload type")
	bodyCodec            = codec.GetCodec(codec.CodecTypeProto)
)

// Payload is a control message body.
type Payload interface {
	codec.ProtoMessage
	MessageID() string
}

// Message pairs a payload with an optional transaction. It only exists at the
// edges: before encoding an outbound request and after parsing a reply.
type Message[T Payload] struct {
	Transaction *protocol.Txn
	Payload     T
}

// New wraps payload in a non-transactional Message.
func New[T Payload](payload T) *Message[T] {
	return &Message[T]{Payload: payload}
}

// Wire encodes the message into a WireMessage.
func (m *Message[T]) Wire() (*protocol.WireMessage, error) {
	return ToWire(m.Payload, m.Transaction)
}

// ToWire encodes p under its message id.
func ToWire(p Payload, txn *protocol.Txn) (*protocol.WireMessage, error) {
	body, err := bodyCodec.Encode(p)
	if err != nil {
		return nil, err
	}
	return protocol.NewWireMessage(p.MessageID(), body, txn)
}

// Parse decodes the body of w as a *T.
//
//	m, err := message.Parse[message.SvcStart](wire)
func Parse[T any, PT interface {
	*T
	Payload
}](w *protocol.WireMessage) (*Message[PT], error) {
	payload := PT(new(T))
	if w.MessageID() != payload.MessageID() {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrMessageIDMismatch, w.MessageID(), payload.MessageID())
	}
	if err := bodyCodec.Decode(w.Body(), payload); err != nil {
		return nil, fmt.Errorf("message: decode %s: %w", w.MessageID(), err)
	}
	return &Message[PT]{Transaction: w.TransactionPtr(), Payload: payload}, nil
}

// TryOK returns the carried *NetErr when w is an error reply, and nil for
// any other message.
func TryOK(w *protocol.WireMessage) error {
	if w.MessageID() != IDNetErr {
		return nil
	}
	m, err := Parse[NetErr](w)
	if err != nil {
		return err
	}
	return m.Payload
}
