// Package protocol implements the control gateway's binary frame protocol.
//
// Every frame starts with a 4-byte bit-packed header. Sub-fields are narrower
// than a byte boundary, so lengths are recovered with shift/mask rather than
// by reading fixed-width integers. A 4-byte transaction segment follows the
// header only when the header says so.
//
// Frame format (big-endian):
//
//	 31  30..26  25....20  19.............0
//	┌───┬───────┬────────┬─────────────────┐
//	│txn│ flags │ id len │    body len     │  header
//	└───┴───────┴────────┴─────────────────┘
//	┌───┬───┬──────────────────────────────┐
//	│rsp│cmp│        transaction id        │  transaction (iff txn bit)
//	└───┴───┴──────────────────────────────┘
//	┌──────────────────┬───────────────────┐
//	│ message id bytes │    body bytes     │
//	└──────────────────┴───────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"io"
	"unicode/utf8"
)

const (
	HeaderLen = 4
	TxnLen    = 4
)

var (
	ErrMessageIDTooLong = errors.New("protocol: message id exceeds 63 bytes")
	ErrBodyTooLarge     = errors.New("protocol: body exceeds 1048575 bytes")
	ErrInvalidMessageID = errors.New("protocol: message id is not valid utf-8")
)

// AppendFrame appends the encoded frame for m to buf.
// Header lengths are always computed from the message id and body actually
// carried by m, never from a previously decoded header.
func AppendFrame(buf []byte, m *WireMessage) ([]byte, error) {
	if err := checkLengths(len(m.messageID), len(m.body)); err != nil {
		return buf, err
	}
	h := NewHeader(uint32(len(m.body)), uint32(len(m.messageID)), m.hasTxn)

	buf = binary.BigEndian.AppendUint32(buf, uint32(h))
	if m.hasTxn {
		buf = binary.BigEndian.AppendUint32(buf, uint32(m.txn))
	}
	buf = append(buf, m.messageID...)
	buf = append(buf, m.body...)
	return buf, nil
}

// Encode writes one complete frame to w with a single Write call.
// Callers sharing w across goroutines must serialize calls themselves.
func Encode(w io.Writer, m *WireMessage) error {
	buf, err := AppendFrame(make([]byte, 0, m.Size()), m)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// DecodeFrame decodes the first frame in buf.
//
// When buf does not yet hold a complete frame it returns (nil, 0, nil): more
// bytes are needed and nothing has been consumed, so the caller can append to
// the same buffer and retry. On success n is the exact number of bytes the
// frame occupied; anything after it belongs to the next frame.
func DecodeFrame(buf []byte) (*WireMessage, int, error) {
	if len(buf) < HeaderLen {
		return nil, 0, nil
	}
	h := Header(binary.BigEndian.Uint32(buf[:HeaderLen]))
	off := HeaderLen

	var txn Txn
	if h.IsTransaction() {
		if len(buf) < off+TxnLen {
			return nil, 0, nil
		}
		txn = Txn(binary.BigEndian.Uint32(buf[off : off+TxnLen]))
		off += TxnLen
	}

	idLen, bodyLen := h.MessageIDLen(), h.BodyLen()
	if len(buf)-off < idLen+bodyLen {
		return nil, 0, nil
	}

	id := buf[off : off+idLen]
	if !utf8.Valid(id) {
		return nil, 0, ErrInvalidMessageID
	}
	off += idLen

	// Copy out of buf: the caller reuses its read buffer for the next frame.
	body := make([]byte, bodyLen)
	copy(body, buf[off:off+bodyLen])
	off += bodyLen

	return &WireMessage{
		header:    h,
		txn:       txn,
		hasTxn:    h.IsTransaction(),
		messageID: string(id),
		body:      body,
	}, off, nil
}

func checkLengths(idLen, bodyLen int) error {
	if idLen > MaxMessageIDLen {
		return ErrMessageIDTooLong
	}
	if bodyLen > MaxBodyLen {
		return ErrBodyTooLarge
	}
	return nil
}
