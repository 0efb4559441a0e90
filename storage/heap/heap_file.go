// HeapFile implements spec §4.4: slotted pages, tuple add/update/
// delete, the free-page list, full scan, and ANALYZE. The free-list
// algorithm is adapted from original_source's HeapTupleFile (the
// teacher's own TableHeap always appends a fresh page and never
// reuses one); the byte-level slot/tuple mutation below is adapted
// from storage/access/table_page.go's InsertTuple/ApplyDelete.
package heap

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// Logger is the WAL seam a heap file mutates through: txn.Manager
// implements it, recording each dirtied page's diff and advancing its
// pageLSN before the buffer pool is allowed to evict it.
type Logger interface {
	WriteUpdatePageRecord(page *buffer.DBPage) error
}

type HeapFile struct {
	dbFile *file.DBFile
	pool   *buffer.Pool
	fileMgr *file.Manager
	schema *Schema
}

// Create formats a brand-new heap file with the given schema, along
// with its first data page already initialized and on the free list.
// Both writes are a file-format bootstrap, not a logged transactional
// mutation, so the first insert a caller makes logs only that data
// page's own write, never a free-list header mutation too.
func Create(fileMgr *file.Manager, pool *buffer.Pool, path string, pageSize int, schema *Schema) (*HeapFile, error) {
	f, err := fileMgr.Create(path, file.TypeHeapData, pageSize)
	if err != nil {
		return nil, err
	}
	header, err := fileMgr.LoadPage(f, 0, false)
	if err != nil {
		return nil, err
	}
	setHeaderFreeHead(header, 1)
	schemaBytes := schema.Serialize()
	setHeaderSchemaSize(header, len(schemaBytes))
	copy(headerSchemaDataRegion(header, len(schemaBytes)), schemaBytes)
	setHeaderStatsSize(header, 0)
	if err := fileMgr.SavePage(f, 0, header); err != nil {
		return nil, err
	}

	firstPage := make([]byte, pageSize)
	initDataPage(firstPage)
	setPageFreeNext(firstPage, NoFreePage)
	if err := fileMgr.SavePage(f, 1, firstPage); err != nil {
		return nil, err
	}

	return &HeapFile{dbFile: f, pool: pool, fileMgr: fileMgr, schema: schema}, nil
}

func headerSchemaDataRegion(buf []byte, n int) []byte {
	return buf[offsetSchemaData : offsetSchemaData+n]
}

// Open reopens an existing heap file, recovering its schema from the
// header page.
func Open(fileMgr *file.Manager, pool *buffer.Pool, path string) (*HeapFile, error) {
	f, err := fileMgr.Open(path, file.TypeHeapData)
	if err != nil {
		return nil, err
	}
	header, err := fileMgr.LoadPage(f, 0, false)
	if err != nil {
		return nil, err
	}
	schema, err := DeserializeSchema(headerSchemaBytes(header))
	if err != nil {
		return nil, err
	}
	return &HeapFile{dbFile: f, pool: pool, fileMgr: fileMgr, schema: schema}, nil
}

func (h *HeapFile) Schema() *Schema  { return h.schema }
func (h *HeapFile) File() *file.DBFile { return h.dbFile }

func (h *HeapFile) dataPageCapacity() int {
	return h.dbFile.PageSize - footerSize
}

// AddTuple implements spec §4.4's insert: walk the free list for a
// page with enough space, falling back to a freshly appended page
// pushed onto the list; allocate a slot, write the tuple image.
func (h *HeapFile) AddTuple(tx Logger, values []Value) (*types.RID, error) {
	tupleSize := EncodedSize(h.schema, values)
	if tupleSize == 0 {
		return nil, errors.EmptyTuple
	}
	required := tupleSize + 2
	if required > h.dataPageCapacity() {
		return nil, errors.TupleTooLarge
	}

	header, err := h.pool.Pin(h.dbFile, 0, false)
	if err != nil {
		return nil, err
	}
	headerDirty := false
	defer func() {
		if headerDirty {
			tx.WriteUpdatePageRecord(header)
		}
		h.pool.Unpin(header, headerDirty)
	}()

	var page *buffer.DBPage
	var pageNo PgNo

	candidate := headerFreeHead(header.Data)
	for candidate != NoFreePage {
		cand, err := h.pool.Pin(h.dbFile, uint32(candidate), false)
		if err != nil {
			return nil, err
		}
		if freeSpace(cand.Data) >= required {
			page = cand
			pageNo = candidate
			break
		}
		next := pageFreeNext(cand.Data)
		setPageFreeNext(cand.Data, InvalidPgNo)
		setHeaderFreeHead(header.Data, next)
		headerDirty = true
		if err := tx.WriteUpdatePageRecord(cand); err != nil {
			h.pool.Unpin(cand, true)
			return nil, err
		}
		if err := h.pool.Unpin(cand, true); err != nil {
			return nil, err
		}
		candidate = next
	}

	if page == nil {
		numPages, err := h.dbFile.NumPages()
		if err != nil {
			return nil, err
		}
		newPageNo := numPages
		newPage, err := h.pool.Pin(h.dbFile, newPageNo, true)
		if err != nil {
			return nil, err
		}
		initDataPage(newPage.Data)
		setPageFreeNext(newPage.Data, headerFreeHead(header.Data))
		setHeaderFreeHead(header.Data, PgNo(newPageNo))
		headerDirty = true
		page = newPage
		pageNo = PgNo(newPageNo)
	}

	slotIdx := -1
	for i := 0; i < slotCount(page.Data); i++ {
		if slotOffset(page.Data, i) == emptySlot {
			slotIdx = i
			break
		}
	}
	if slotIdx == -1 {
		slotIdx = slotCount(page.Data)
		setSlotCount(page.Data, slotIdx+1)
	}

	tupleBytes, err := EncodeTuple(h.schema, values)
	if err != nil {
		h.pool.Unpin(page, false)
		return nil, err
	}
	newOffset := tupleRegionStart(page.Data) - tupleSize
	if newOffset < slotArrayEnd(page.Data) {
		h.pool.Unpin(page, false)
		return nil, errors.NotEnoughSpace
	}
	copy(page.Data[newOffset:newOffset+tupleSize], tupleBytes)
	setSlotOffset(page.Data, slotIdx, newOffset)

	if err := tx.WriteUpdatePageRecord(page); err != nil {
		h.pool.Unpin(page, true)
		return nil, err
	}
	if err := h.pool.Unpin(page, true); err != nil {
		return nil, err
	}

	return types.NewRID(types.PageID(pageNo), uint16(slotIdx)), nil
}

// shiftTupleRegion moves the contiguous byte range [regionStart,
// boundary) by -delta, and fixes up every slot offset that pointed
// into that range, preserving the no-gaps invariant after a tuple's
// region grows or shrinks.
func shiftTupleRegion(buf []byte, regionStart, boundary, delta int) {
	if boundary <= regionStart || delta == 0 {
		return
	}
	copy(buf[regionStart-delta:boundary-delta], buf[regionStart:boundary])
	for i := 0; i < slotCount(buf); i++ {
		off := slotOffset(buf, i)
		if off != emptySlot && off >= regionStart && off < boundary {
			setSlotOffset(buf, i, off-delta)
		}
	}
}

// DeleteTuple implements spec §4.4's delete: clear the slot, compact
// trailing empty slots, reclaim the tuple's bytes, and push the page
// onto the free list if it was not already on it.
func (h *HeapFile) DeleteTuple(tx Logger, rid types.RID) error {
	pageNo := uint32(rid.PageNo)
	slotIdx := int(rid.SlotNum)

	header, err := h.pool.Pin(h.dbFile, 0, false)
	if err != nil {
		return err
	}
	page, err := h.pool.Pin(h.dbFile, pageNo, false)
	if err != nil {
		h.pool.Unpin(header, false)
		return err
	}

	if slotIdx >= slotCount(page.Data) || slotOffset(page.Data, slotIdx) == emptySlot {
		h.pool.Unpin(page, false)
		h.pool.Unpin(header, false)
		return errors.InvalidFilePointer
	}

	start, _ := tupleBounds(page.Data, slotIdx)
	tlen := tupleLen(page.Data, slotIdx)
	regionStart := tupleRegionStart(page.Data)
	shiftTupleRegion(page.Data, regionStart, start, -tlen)
	setSlotOffset(page.Data, slotIdx, emptySlot)

	for n := slotCount(page.Data); n > 0 && slotOffset(page.Data, n-1) == emptySlot; n = slotCount(page.Data) {
		setSlotCount(page.Data, n-1)
	}

	headerDirty := false
	if pageFreeNext(page.Data) == InvalidPgNo {
		setPageFreeNext(page.Data, headerFreeHead(header.Data))
		setHeaderFreeHead(header.Data, PgNo(pageNo))
		headerDirty = true
	}

	if err := tx.WriteUpdatePageRecord(page); err != nil {
		h.pool.Unpin(page, true)
		h.pool.Unpin(header, headerDirty)
		return err
	}
	if err := h.pool.Unpin(page, true); err != nil {
		h.pool.Unpin(header, headerDirty)
		return err
	}
	if headerDirty {
		if err := tx.WriteUpdatePageRecord(header); err != nil {
			h.pool.Unpin(header, headerDirty)
			return err
		}
	}
	if err := h.pool.Unpin(header, headerDirty); err != nil {
		return err
	}
	return nil
}

func tupleLen(buf []byte, slotIdx int) int {
	start, end := tupleBounds(buf, slotIdx)
	return end - start
}

// UpdateTuple implements spec §4.4's update: decode the tuple,
// mutate the one column, and re-encode, resizing its byte range in
// place. PageFullOnUpdate is returned rather than relocating the
// tuple when the page cannot accommodate growth.
func (h *HeapFile) UpdateTuple(tx Logger, rid types.RID, colIdx int, v Value) error {
	pageNo := uint32(rid.PageNo)
	slotIdx := int(rid.SlotNum)

	page, err := h.pool.Pin(h.dbFile, pageNo, false)
	if err != nil {
		return err
	}
	if slotIdx >= slotCount(page.Data) || slotOffset(page.Data, slotIdx) == emptySlot {
		h.pool.Unpin(page, false)
		return errors.InvalidFilePointer
	}
	start, end := tupleBounds(page.Data, slotIdx)
	oldLen := end - start

	values, err := DecodeTuple(h.schema, page.Data[start:end])
	if err != nil {
		h.pool.Unpin(page, false)
		return err
	}
	values[colIdx] = v
	newBytes, err := EncodeTuple(h.schema, values)
	if err != nil {
		h.pool.Unpin(page, false)
		return err
	}
	newLen := len(newBytes)
	delta := newLen - oldLen

	if delta > 0 && freeSpace(page.Data) < delta {
		h.pool.Unpin(page, false)
		return errors.PageFullOnUpdate
	}

	regionStart := tupleRegionStart(page.Data)
	shiftTupleRegion(page.Data, regionStart, start, delta)
	newStart := start - delta
	copy(page.Data[newStart:newStart+newLen], newBytes)
	setSlotOffset(page.Data, slotIdx, newStart)

	if err := tx.WriteUpdatePageRecord(page); err != nil {
		h.pool.Unpin(page, true)
		return err
	}
	return h.pool.Unpin(page, true)
}

// FreePages returns every page number currently on the free list, in
// traversal order from the header's free head, letting callers verify
// free-list membership directly rather than inferring it from reuse.
func (h *HeapFile) FreePages() ([]PgNo, error) {
	header, err := h.pool.Pin(h.dbFile, 0, false)
	if err != nil {
		return nil, err
	}
	defer h.pool.Unpin(header, false)

	var pages []PgNo
	for p := headerFreeHead(header.Data); p != NoFreePage; {
		pages = append(pages, p)
		page, err := h.pool.Pin(h.dbFile, uint32(p), false)
		if err != nil {
			return nil, err
		}
		next := pageFreeNext(page.Data)
		if err := h.pool.Unpin(page, false); err != nil {
			return nil, err
		}
		p = next
	}
	return pages, nil
}

// FirstTuple finds the lowest-numbered non-empty slot on the
// lowest-numbered data page, or nil at end of file.
func (h *HeapFile) FirstTuple() (*Tuple, error) {
	numPages, err := h.dbFile.NumPages()
	if err != nil {
		return nil, err
	}
	for pageNo := uint32(1); pageNo < numPages; pageNo++ {
		t, err := h.firstTupleOnPage(pageNo)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

func (h *HeapFile) firstTupleOnPage(pageNo uint32) (*Tuple, error) {
	page, err := h.pool.Pin(h.dbFile, pageNo, false)
	if err != nil {
		return nil, err
	}
	defer h.pool.Unpin(page, false)

	for slot := 0; slot < slotCount(page.Data); slot++ {
		if slotOffset(page.Data, slot) != emptySlot {
			return h.readTuple(pageNo, slot, page)
		}
	}
	return nil, nil
}

func (h *HeapFile) readTuple(pageNo uint32, slot int, page *buffer.DBPage) (*Tuple, error) {
	start, end := tupleBounds(page.Data, slot)
	values, err := DecodeTuple(h.schema, page.Data[start:end])
	if err != nil {
		return nil, err
	}
	rid := *types.NewRID(types.PageID(pageNo), uint16(slot))
	return newPageTuple(h.schema, rid, values), nil
}

// NextTuple advances from t's RID to the next non-empty slot, rolling
// onto successive pages, and reloads the page by (file, pageNo) so it
// works whether t is still pinned or not. Returns nil at end of file.
func (h *HeapFile) NextTuple(t *Tuple) (*Tuple, error) {
	rid := t.RID()
	if rid == nil {
		return nil, errors.IllegalState
	}
	pageNo := uint32(rid.PageNo)
	slot := int(rid.SlotNum) + 1

	numPages, err := h.dbFile.NumPages()
	if err != nil {
		return nil, err
	}
	for pageNo < numPages {
		page, err := h.pool.Pin(h.dbFile, pageNo, false)
		if err != nil {
			return nil, err
		}
		sc := slotCount(page.Data)
		for ; slot < sc; slot++ {
			if slotOffset(page.Data, slot) != emptySlot {
				res, err := h.readTuple(pageNo, slot, page)
				h.pool.Unpin(page, false)
				return res, err
			}
		}
		h.pool.Unpin(page, false)
		pageNo++
		slot = 0
	}
	return nil, nil
}
