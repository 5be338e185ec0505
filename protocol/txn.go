package protocol

import "fmt"

const (
	responseOffset = 31
	completeOffset = 30

	// TxnIDMask selects the 30 id bits of a transaction.
	TxnIDMask uint32 = 0x3FFFFFFF
	// MaxTxnID is the largest representable id. It is never handed out by NextID.
	MaxTxnID uint32 = TxnIDMask
)

// Txn is the packed 32-bit transaction segment: a response bit, a completion
// bit and a 30-bit id. The flag bits never overlap the id bits.
type Txn uint32

// NewTxn returns a transaction with no flags set. It panics if id does not fit
// in 30 bits.
func NewTxn(id uint32) Txn {
	if id > MaxTxnID {
		panic(fmt.Sprintf("protocol: transaction id %#x exceeds MaxTxnID", id))
	}
	return Txn(id)
}

// NextID returns the transaction id to use after cur. Ids wrap within 30 bits
// and the reserved values 0 and MaxTxnID are skipped.
func NextID(cur uint32) uint32 {
	id := (cur + 1) & TxnIDMask
	for id == 0 || id == MaxTxnID {
		id = (id + 1) & TxnIDMask
	}
	return id
}

func (t Txn) ID() uint32 {
	return uint32(t) & TxnIDMask
}

// IsComplete reports whether this is the last reply of a transactional request.
func (t Txn) IsComplete() bool {
	return (uint32(t)>>completeOffset)&1 == 1
}

// IsResponse reports whether this is a reply to a transactional request.
func (t Txn) IsResponse() bool {
	return (uint32(t)>>responseOffset)&1 == 1
}

func (t *Txn) SetComplete() {
	*t |= 1 << completeOffset
}

func (t *Txn) SetResponse() {
	*t |= 1 << responseOffset
}

func (t Txn) String() string {
	return fmt.Sprintf("Txn[id: %d, is_complete: %t, is_response: %t]",
		t.ID(), t.IsComplete(), t.IsResponse())
}
