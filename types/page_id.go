// this code is adapted from https://github.com/brunocalza/go-bustub
// there is license and copyright notice in licenses/go-bustub dir

package types

import (
	"bytes"
	"encoding/binary"
)

// PageID is the 0-based ordinal of a page within a single DBFile. Page 0
// is always the file's self-describing header page.
type PageID uint32

// InvalidPageID marks the absence of a page.
const InvalidPageID = PageID(0xFFFFFFFF)

func (id PageID) IsValid() bool {
	return id != InvalidPageID
}

func (id PageID) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, id)
	return buf.Bytes()
}

func NewPageIDFromBytes(data []byte) (ret PageID) {
	binary.Read(bytes.NewReader(data), binary.BigEndian, &ret)
	return ret
}
