// this code is adapted from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package types

import (
	"bytes"
	"encoding/binary"
)

// TxnID is the monotonically increasing transaction identifier assigned
// by the transaction manager's txn-state file.
type TxnID uint32

// InvalidTxnID marks a record or slot with no owning transaction.
const InvalidTxnID = TxnID(0)

func (id TxnID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, id)
	return buf.Bytes()
}

func NewTxnIDFromBytes(data []byte) (ret TxnID) {
	binary.Read(bytes.NewReader(data), binary.BigEndian, &ret)
	return ret
}
