package client

import (
	"errors"
	"fmt"

	"supctl/message"
	"supctl/transport"
)

var (
	// ErrConnectionClosed matches any *Error caused by the gateway closing
	// the socket.
	ErrConnectionClosed = transport.ErrConnectionClosed
	ErrHandshakeTimeout = errors.New("client: timed out waiting for handshake reply")
)

type Kind int

const (
	KindClosed Kind = iota // socket closed by the peer
	KindIO                 // dial, read, write or decode failure
	KindNet                // gateway answered with NetErr
)

func (k Kind) String() string {
	switch k {
	case KindClosed:
		return "closed"
	case KindIO:
		return "io"
	case KindNet:
		return "net"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type returned by Client. Use errors.As to reach
// the *message.NetErr of a KindNet error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindClosed:
		return "client: connection closed"
	case KindNet:
		return "client: " + e.Err.Error()
	}
	return "client: io: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NetErr returns the gateway error carried by err, if any.
func NetErr(err error) (*message.NetErr, bool) {
	var netErr *message.NetErr
	if errors.As(err, &netErr) {
		return netErr, true
	}
	return nil, false
}

func netError(err error) error {
	if _, ok := NetErr(err); ok {
		return &Error{Kind: KindNet, Err: err}
	}
	return &Error{Kind: KindIO, Err: err}
}
