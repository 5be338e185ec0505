// Package transport frames a TCP stream into control wire messages.
//
// Conn is not safe for concurrent readers or concurrent writers, but one
// reader and one writer may run at the same time. Both the client and the
// server handler drive a Conn from a single goroutine.
//
//	net.Conn ──Read──→ rbuf ──protocol.DecodeFrame──→ *WireMessage
//	*WireMessage ──protocol.Encode──→ bufio.Writer ──Flush──→ net.Conn
package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"

	"supctl/metrics"
	"supctl/protocol"
)

// ErrConnectionClosed is returned when the peer closes the stream, including
// in the middle of a frame.
var ErrConnectionClosed = errors.New("transport: connection closed")

const readChunkSize = 4096

type Conn struct {
	conn  net.Conn
	rbuf  []byte // undecoded bytes carried between reads
	chunk []byte
	w     *bufio.Writer
}

func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:  conn,
		chunk: make([]byte, readChunkSize),
		w:     bufio.NewWriter(conn),
	}
}

// Dial opens a framed TCP connection to addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(conn), nil
}

// ReadMessage blocks until a full frame is buffered and returns it. Bytes
// past the frame stay buffered for the next call.
func (c *Conn) ReadMessage() (*protocol.WireMessage, error) {
	for {
		msg, n, err := protocol.DecodeFrame(c.rbuf)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			c.rbuf = c.rbuf[n:]
			metrics.RecordFrame(metrics.DirectionIn, n)
			return msg, nil
		}
		if err := c.fill(); err != nil {
			return nil, err
		}
	}
}

func (c *Conn) fill() error {
	n, err := c.conn.Read(c.chunk)
	if n > 0 {
		c.rbuf = append(c.rbuf, c.chunk[:n]...)
		return nil
	}
	if err == nil {
		return nil
	}
	if isClosed(err) {
		return ErrConnectionClosed
	}
	return pkgerrors.Wrap(err, "transport: read")
}

// WriteMessage buffers one encoded frame. Call Flush to put it on the wire.
func (c *Conn) WriteMessage(m *protocol.WireMessage) error {
	if err := protocol.Encode(c.w, m); err != nil {
		return c.writeErr(err)
	}
	metrics.RecordFrame(metrics.DirectionOut, m.Size())
	return nil
}

func (c *Conn) Flush() error {
	if err := c.w.Flush(); err != nil {
		return c.writeErr(err)
	}
	return nil
}

// Send writes and flushes m.
func (c *Conn) Send(m *protocol.WireMessage) error {
	if err := c.WriteMessage(m); err != nil {
		return err
	}
	return c.Flush()
}

func (c *Conn) writeErr(err error) error {
	if isClosed(err) {
		return ErrConnectionClosed
	}
	return pkgerrors.Wrap(err, "transport: write")
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Buffered reports how many undecoded bytes are held.
func (c *Conn) Buffered() int {
	return len(c.rbuf)
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
