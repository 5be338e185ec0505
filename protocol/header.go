package protocol

import "fmt"

const (
	bodyLenMask     = 0xFFFFF
	messageIDMask   = 0x3F
	messageIDOffset = 20
	txnOffset       = 31

	MaxBodyLen      = bodyLenMask
	MaxMessageIDLen = messageIDMask
)

// Header is the packed 32-bit frame header.
type Header uint32

// NewHeader packs the header sub-fields. Lengths wider than their field are a
// programming error and panic instead of bleeding into neighbouring bits.
func NewHeader(bodyLen, messageIDLen uint32, isTxn bool) Header {
	if bodyLen > MaxBodyLen {
		panic(fmt.Sprintf("protocol: body length %d exceeds %d", bodyLen, MaxBodyLen))
	}
	if messageIDLen > MaxMessageIDLen {
		panic(fmt.Sprintf("protocol: message id length %d exceeds %d", messageIDLen, MaxMessageIDLen))
	}
	v := messageIDLen<<messageIDOffset | bodyLen
	if isTxn {
		v |= 1 << txnOffset
	}
	return Header(v)
}

func (h Header) BodyLen() int {
	return int(uint32(h) & bodyLenMask)
}

func (h Header) MessageIDLen() int {
	return int((uint32(h) >> messageIDOffset) & messageIDMask)
}

func (h Header) IsTransaction() bool {
	return (uint32(h)>>txnOffset)&1 == 1
}

// SetIsTransaction marks the frame as carrying a transaction segment.
func (h *Header) SetIsTransaction() {
	*h |= 1 << txnOffset
}

func (h Header) String() string {
	return fmt.Sprintf("Header[body_len: %d, message_id_len: %d, is_txn: %t]",
		h.BodyLen(), h.MessageIDLen(), h.IsTransaction())
}
