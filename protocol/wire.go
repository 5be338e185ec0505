package protocol

import "fmt"

// WireMessage is one frame as it travels on the socket: an optional
// transaction, the message id naming the payload type, and the opaque body.
//
// A WireMessage is built either from an outbound payload (NewWireMessage) or
// by DecodeFrame, and lives for one request/reply cycle.
type WireMessage struct {
	header    Header
	txn       Txn
	hasTxn    bool
	messageID string
	body      []byte
}

// NewWireMessage builds a wire message and its header. txn may be nil for a
// non-transactional message.
func NewWireMessage(messageID string, body []byte, txn *Txn) (*WireMessage, error) {
	if err := checkLengths(len(messageID), len(body)); err != nil {
		return nil, err
	}
	m := &WireMessage{
		header:    NewHeader(uint32(len(body)), uint32(len(messageID)), txn != nil),
		messageID: messageID,
		body:      body,
	}
	if txn != nil {
		m.txn = *txn
		m.hasTxn = true
	}
	return m, nil
}

func (m *WireMessage) Header() Header {
	return m.header
}

func (m *WireMessage) MessageID() string {
	return m.messageID
}

func (m *WireMessage) Body() []byte {
	return m.body
}

// Transaction returns the transaction segment and whether one is present.
func (m *WireMessage) Transaction() (Txn, bool) {
	return m.txn, m.hasTxn
}

// TransactionPtr returns a copy of the transaction, or nil.
func (m *WireMessage) TransactionPtr() *Txn {
	if !m.hasTxn {
		return nil
	}
	t := m.txn
	return &t
}

func (m *WireMessage) IsTransaction() bool {
	return m.hasTxn
}

func (m *WireMessage) IsComplete() bool {
	return m.hasTxn && m.txn.IsComplete()
}

func (m *WireMessage) IsResponse() bool {
	return m.hasTxn && m.txn.IsResponse()
}

// SetTransaction attaches txn as a request transaction, or strips the
// transaction segment when txn is nil.
func (m *WireMessage) SetTransaction(txn *Txn) {
	if txn == nil {
		m.txn, m.hasTxn = 0, false
		m.header = NewHeader(uint32(len(m.body)), uint32(len(m.messageID)), false)
		return
	}
	m.txn, m.hasTxn = *txn, true
	m.header.SetIsTransaction()
}

// ReplyFor turns m into a reply for txn: the response bit is set, the
// completion bit is set when complete is true, and the header is marked as
// carrying a transaction. Every reply written by the server goes through here.
func (m *WireMessage) ReplyFor(txn Txn, complete bool) {
	txn.SetResponse()
	if complete {
		txn.SetComplete()
	}
	m.txn = txn
	m.hasTxn = true
	m.header.SetIsTransaction()
}

// Size is the encoded length of the frame in bytes.
func (m *WireMessage) Size() int {
	size := HeaderLen + len(m.messageID) + len(m.body)
	if m.hasTxn {
		size += TxnLen
	}
	return size
}

func (m *WireMessage) String() string {
	if !m.hasTxn {
		return fmt.Sprintf("%s, None, %q", m.header, m.messageID)
	}
	return fmt.Sprintf("%s, %s, %q", m.header, m.txn, m.messageID)
}
