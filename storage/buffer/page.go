package buffer

import (
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// DBPage is an in-memory image of one block: the owning file, page
// number, current bytes, the pre-image since the last log emission,
// and the bookkeeping the buffer pool needs to decide eviction safety.
type DBPage struct {
	File    *file.DBFile
	PageNo  uint32
	Data    []byte
	OldData []byte
	Dirty   bool
	// PinCount is the number of outstanding pins; a page with
	// PinCount > 0 must never be evicted.
	PinCount int
	// PageLSN is the LSN of the most recent WAL record describing this
	// page's current contents, or nil if the page has never been logged.
	PageLSN *types.LSN
}

// ResyncOldData copies Data into OldData. The transaction manager
// calls it each time it logs or rolls back a page's mutation, and the
// buffer pool calls it after writing a dirty page to its file.
func (p *DBPage) ResyncOldData() {
	copy(p.OldData, p.Data)
}
