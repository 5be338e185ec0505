package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestHeaderPackUnpack(t *testing.T) {
	header := NewHeader(305888, 40, true)
	if header.BodyLen() != 305888 {
		t.Errorf("BodyLen mismatch: got %d, want %d", header.BodyLen(), 305888)
	}
	if header.MessageIDLen() != 40 {
		t.Errorf("MessageIDLen mismatch: got %d, want %d", header.MessageIDLen(), 40)
	}
	if !header.IsTransaction() {
		t.Errorf("expected is_txn to be set")
	}
}

func TestHeaderFieldBoundaries(t *testing.T) {
	bodyLens := []uint32{0, 1, 255, 65536, MaxBodyLen - 1, MaxBodyLen}
	idLens := []uint32{0, 1, 9, 32, MaxMessageIDLen}
	for _, bodyLen := range bodyLens {
		for _, idLen := range idLens {
			for _, isTxn := range []bool{true, false} {
				h := NewHeader(bodyLen, idLen, isTxn)
				if h.BodyLen() != int(bodyLen) || h.MessageIDLen() != int(idLen) || h.IsTransaction() != isTxn {
					t.Fatalf("header %s does not round trip (%d, %d, %t)", h, bodyLen, idLen, isTxn)
				}
			}
		}
	}
}

func TestHeaderSetIsTransaction(t *testing.T) {
	header := NewHeader(10, 5, false)
	if header.IsTransaction() {
		t.Fatal("expected is_txn to be clear")
	}
	header.SetIsTransaction()
	if !header.IsTransaction() || header.BodyLen() != 10 || header.MessageIDLen() != 5 {
		t.Fatalf("SetIsTransaction corrupted header: %s", header)
	}
}

func TestNewHeaderPanicsOnOverWidth(t *testing.T) {
	cases := []struct {
		name          string
		bodyLen, idLn uint32
	}{
		{"body", MaxBodyLen + 1, 0},
		{"message id", 0, MaxMessageIDLen + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for over-width %s", tc.name)
				}
			}()
			NewHeader(tc.bodyLen, tc.idLn, false)
		})
	}
}

func TestTxnPackUnpack(t *testing.T) {
	txn := NewTxn(MaxTxnID)
	if txn.IsComplete() || txn.IsResponse() {
		t.Fatalf("new txn has flags set: %s", txn)
	}

	txn.SetComplete()
	if !txn.IsComplete() || txn.IsResponse() {
		t.Fatalf("after SetComplete: %s", txn)
	}

	txn.SetResponse()
	if !txn.IsComplete() || !txn.IsResponse() {
		t.Fatalf("after SetResponse: %s", txn)
	}
	if txn.ID() != MaxTxnID {
		t.Fatalf("flags corrupted id: got %#x, want %#x", txn.ID(), MaxTxnID)
	}
}

func TestTxnFlagsDoNotTouchID(t *testing.T) {
	for _, id := range []uint32{0, 1, 2, 12345, 0x1FFFFFFF, MaxTxnID - 1, MaxTxnID} {
		rsp := NewTxn(id)
		rsp.SetResponse()
		if rsp.ID() != id || rsp.IsComplete() {
			t.Fatalf("SetResponse on %d: %s", id, rsp)
		}

		cmp := NewTxn(id)
		cmp.SetComplete()
		if cmp.ID() != id || cmp.IsResponse() {
			t.Fatalf("SetComplete on %d: %s", id, cmp)
		}
	}
}

func TestNewTxnPanicsOnReservedBits(t *testing.T) {
	for _, id := range []uint32{1 << 30, 1 << 31} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for id %#x", id)
				}
			}()
			NewTxn(id)
		}()
	}
}

func TestNextIDSkipsReserved(t *testing.T) {
	if got := NextID(0); got != 1 {
		t.Fatalf("NextID(0) = %d, want 1", got)
	}
	if got := NextID(41); got != 42 {
		t.Fatalf("NextID(41) = %d, want 42", got)
	}
	if got := NextID(MaxTxnID - 1); got != 1 {
		t.Fatalf("NextID(%#x) = %d, want 1", MaxTxnID-1, got)
	}
	if got := NextID(MaxTxnID); got != 1 {
		t.Fatalf("NextID(MaxTxnID) = %d, want 1", got)
	}

	id := MaxTxnID - 100
	for i := 0; i < 300; i++ {
		id = NextID(id)
		if id == 0 || id == MaxTxnID {
			t.Fatalf("NextID returned reserved id %#x", id)
		}
	}
}

func newTestMessage(t *testing.T, id string, body []byte, txn *Txn) *WireMessage {
	t.Helper()
	m, err := NewWireMessage(id, body, txn)
	if err != nil {
		t.Fatalf("NewWireMessage failed: %v", err)
	}
	return m
}

func TestEncodeDecode(t *testing.T) {
	txn := NewTxn(77)
	cases := []*WireMessage{
		newTestMessage(t, "NetErr", []byte{0x08, 0x02, 0x12, 0x04, 't', 'h', 'i', 's'}, nil),
		newTestMessage(t, "SvcStart", []byte("hello world"), &txn),
		newTestMessage(t, "NetOk", nil, &txn),
	}

	for _, msg := range cases {
		var buf bytes.Buffer
		if err := Encode(&buf, msg); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if buf.Len() != msg.Size() {
			t.Fatalf("encoded %d bytes, Size() = %d", buf.Len(), msg.Size())
		}

		decoded, n, err := DecodeFrame(buf.Bytes())
		if err != nil {
			t.Fatalf("DecodeFrame failed: %v", err)
		}
		if decoded == nil || n != buf.Len() {
			t.Fatalf("DecodeFrame consumed %d of %d bytes", n, buf.Len())
		}
		if decoded.Header() != msg.Header() {
			t.Errorf("Header mismatch: got %s, want %s", decoded.Header(), msg.Header())
		}
		if decoded.MessageID() != msg.MessageID() {
			t.Errorf("MessageID mismatch: got %s, want %s", decoded.MessageID(), msg.MessageID())
		}
		gotTxn, gotOK := decoded.Transaction()
		wantTxn, wantOK := msg.Transaction()
		if gotTxn != wantTxn || gotOK != wantOK {
			t.Errorf("Transaction mismatch: got %s/%t, want %s/%t", gotTxn, gotOK, wantTxn, wantOK)
		}
		if !bytes.Equal(decoded.Body(), msg.Body()) {
			t.Errorf("Body mismatch: got %x, want %x", decoded.Body(), msg.Body())
		}
	}
}

func TestDecodePartialFrameIsResumable(t *testing.T) {
	txn := NewTxn(9)
	msg := newTestMessage(t, "ConsoleLine", []byte("streamed output line\n"), &txn)
	encoded, err := AppendFrame(nil, msg)
	if err != nil {
		t.Fatalf("AppendFrame failed: %v", err)
	}

	for split := 0; split <= len(encoded); split++ {
		var buf []byte
		buf = append(buf, encoded[:split]...)
		snapshot := append([]byte(nil), buf...)

		got, n, err := DecodeFrame(buf)
		if err != nil {
			t.Fatalf("split %d: unexpected error %v", split, err)
		}
		if split < len(encoded) {
			if got != nil || n != 0 {
				t.Fatalf("split %d: decoded a message from a partial frame", split)
			}
			if !bytes.Equal(buf, snapshot) {
				t.Fatalf("split %d: buffer modified by partial decode", split)
			}
		}

		buf = append(buf, encoded[split:]...)
		got, n, err = DecodeFrame(buf)
		if err != nil || got == nil {
			t.Fatalf("split %d: full decode failed: %v", split, err)
		}
		if n != len(encoded) || got.MessageID() != "ConsoleLine" || !bytes.Equal(got.Body(), msg.Body()) {
			t.Fatalf("split %d: decoded %s (%d bytes)", split, got, n)
		}
	}
}

func TestDecodeByteAtATime(t *testing.T) {
	msg := newTestMessage(t, "NetProgress", []byte{0x08, 0x64, 0x10, 0x0a}, nil)
	encoded, _ := AppendFrame(nil, msg)

	var buf []byte
	for i, b := range encoded {
		buf = append(buf, b)
		got, n, err := DecodeFrame(buf)
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if i < len(encoded)-1 && got != nil {
			t.Fatalf("byte %d: premature decode", i)
		}
		if i == len(encoded)-1 && (got == nil || n != len(encoded)) {
			t.Fatalf("final byte: expected full decode")
		}
	}
}

func TestDecodeLeavesTrailingBytes(t *testing.T) {
	first := newTestMessage(t, "NetProgress", []byte{1, 2, 3}, nil)
	second := newTestMessage(t, "NetOk", nil, nil)
	buf, _ := AppendFrame(nil, first)
	buf, _ = AppendFrame(buf, second)

	got, n, err := DecodeFrame(buf)
	if err != nil || got == nil {
		t.Fatalf("first decode failed: %v", err)
	}
	if got.MessageID() != "NetProgress" {
		t.Fatalf("first message id: %s", got.MessageID())
	}
	got, _, err = DecodeFrame(buf[n:])
	if err != nil || got == nil || got.MessageID() != "NetOk" {
		t.Fatalf("second decode: %v %v", got, err)
	}
}

func TestDecodeInvalidMessageID(t *testing.T) {
	h := NewHeader(0, 2, false)
	buf := []byte{byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h), 0xC3, 0x28}

	_, _, err := DecodeFrame(buf)
	if !errors.Is(err, ErrInvalidMessageID) {
		t.Fatalf("expected ErrInvalidMessageID, got %v", err)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	msg := newTestMessage(t, "NetOk", []byte{}, nil)
	buf, _ := AppendFrame(nil, msg)

	decoded, _, err := DecodeFrame(buf)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if decoded.Header().BodyLen() != 0 || len(decoded.Body()) != 0 {
		t.Errorf("expected empty body, got length %d", len(decoded.Body()))
	}
	if decoded.IsComplete() || decoded.IsResponse() {
		t.Errorf("non-transactional message reports completion/response")
	}
}

func TestDecodeLargeBody(t *testing.T) {
	largeBody := make([]byte, MaxBodyLen)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}
	msg := newTestMessage(t, "SvcLoad", largeBody, nil)

	var buf bytes.Buffer
	if err := Encode(&buf, msg); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, _, err := DecodeFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if !bytes.Equal(decoded.Body(), largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestEncodeRejectsOverWidth(t *testing.T) {
	if _, err := NewWireMessage(strings.Repeat("x", MaxMessageIDLen+1), nil, nil); !errors.Is(err, ErrMessageIDTooLong) {
		t.Fatalf("expected ErrMessageIDTooLong, got %v", err)
	}
	if _, err := NewWireMessage("Big", make([]byte, MaxBodyLen+1), nil); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expected ErrBodyTooLarge, got %v", err)
	}
	if _, err := NewWireMessage(strings.Repeat("x", MaxMessageIDLen), nil, nil); err != nil {
		t.Fatalf("63-byte message id rejected: %v", err)
	}
}

func TestReplyFor(t *testing.T) {
	msg := newTestMessage(t, "NetOk", nil, nil)
	if msg.Header().IsTransaction() {
		t.Fatal("expected non-transactional header")
	}

	msg.ReplyFor(NewTxn(5), false)
	if !msg.IsResponse() || msg.IsComplete() || !msg.Header().IsTransaction() {
		t.Fatalf("partial reply: %s", msg)
	}

	msg.ReplyFor(NewTxn(5), true)
	txn, _ := msg.Transaction()
	if !msg.IsResponse() || !msg.IsComplete() || txn.ID() != 5 {
		t.Fatalf("complete reply: %s", msg)
	}

	buf, _ := AppendFrame(nil, msg)
	decoded, _, _ := DecodeFrame(buf)
	if !decoded.IsComplete() || !decoded.IsResponse() {
		t.Fatalf("reply flags lost over the wire: %s", decoded)
	}
}

func TestSetTransactionNilStripsSegment(t *testing.T) {
	txn := NewTxn(3)
	msg := newTestMessage(t, "SvcStart", []byte{1}, &txn)
	msg.SetTransaction(nil)
	if msg.IsTransaction() || msg.Header().IsTransaction() || msg.Size() != HeaderLen+len("SvcStart")+1 {
		t.Fatalf("transaction not stripped: %s", msg)
	}
}
