// Package heap implements the slotted-page heap tuple file: free-page
// list, tuple add/update/delete, full scan and ANALYZE. The slotted
// layout and free-list algorithm are adapted from original_source's
// HeapTupleFile (the NanoDB heap file package this spec was distilled
// from); the byte-offset mutation primitives below are adapted
// line-for-line from storage/access/table_page.go's
// InsertTuple/ApplyDelete.
package heap

import (
	"github.com/waldb/waldb/storage/codec"
)

// PgNo is a page number local to one heap file's free list and header,
// an unsigned short per spec so INVALID_PGNO can be a value (0xFFFF)
// distinct from 0 ("end of free list" / "no free pages").
type PgNo = uint16

const (
	// InvalidPgNo marks a data page not currently on the free list.
	InvalidPgNo PgNo = 0xFFFF
	// NoFreePage is freeHead's value when the free list is empty.
	NoFreePage PgNo = 0
)

// Header page field offsets (page 0). Byte 0/1 are the common DBFile
// type/page-size-exponent header; the heap-specific fields follow.
const (
	offsetFreeHead   = 2
	offsetSchemaSize = 4
	offsetStatsSize  = 6
	offsetSchemaData = 8
)

func headerFreeHead(buf []byte) PgNo          { return codec.ReadShort(buf, offsetFreeHead) }
func setHeaderFreeHead(buf []byte, v PgNo)    { codec.WriteShort(buf, offsetFreeHead, v) }
func headerSchemaSize(buf []byte) int         { return int(codec.ReadShort(buf, offsetSchemaSize)) }
func setHeaderSchemaSize(buf []byte, n int)   { codec.WriteShort(buf, offsetSchemaSize, uint16(n)) }
func headerStatsSize(buf []byte) int          { return int(codec.ReadShort(buf, offsetStatsSize)) }
func setHeaderStatsSize(buf []byte, n int)    { codec.WriteShort(buf, offsetStatsSize, uint16(n)) }

func headerSchemaBytes(buf []byte) []byte {
	n := headerSchemaSize(buf)
	return buf[offsetSchemaData : offsetSchemaData+n]
}

func headerStatsBytes(buf []byte) []byte {
	schemaEnd := offsetSchemaData + headerSchemaSize(buf)
	n := headerStatsSize(buf)
	return buf[schemaEnd : schemaEnd+n]
}

// Data page footer: the last 4 bytes are slotCount (u16) then
// freeNext (u16); the slot array grows upward from byte 0, tuple data
// grows downward from the footer, packed contiguously with no gaps.
const footerSize = 4

func footerStart(buf []byte) int { return len(buf) - footerSize }

func slotCount(buf []byte) int {
	return int(codec.ReadShort(buf, footerStart(buf)))
}
func setSlotCount(buf []byte, n int) {
	codec.WriteShort(buf, footerStart(buf), uint16(n))
}

func pageFreeNext(buf []byte) PgNo       { return codec.ReadShort(buf, footerStart(buf)+2) }
func setPageFreeNext(buf []byte, v PgNo) { codec.WriteShort(buf, footerStart(buf)+2, v) }

const emptySlot = 0

func slotOffset(buf []byte, i int) int {
	return int(codec.ReadShort(buf, i*2))
}
func setSlotOffset(buf []byte, i int, off int) {
	codec.WriteShort(buf, i*2, uint16(off))
}

func slotArrayEnd(buf []byte) int { return slotCount(buf) * 2 }

// tupleRegionStart is the lowest offset any live tuple currently
// occupies (the boundary between tuple data and free space).
func tupleRegionStart(buf []byte) int {
	min := footerStart(buf)
	for i := 0; i < slotCount(buf); i++ {
		off := slotOffset(buf, i)
		if off != emptySlot && off < min {
			min = off
		}
	}
	return min
}

func freeSpace(buf []byte) int {
	return tupleRegionStart(buf) - slotArrayEnd(buf)
}

// tupleBounds returns [start, end) for the tuple at slot i, deriving
// end as the lowest offset among all other live slots that exceeds
// start (or footerStart if none), relying on the no-gaps invariant.
func tupleBounds(buf []byte, i int) (start, end int) {
	start = slotOffset(buf, i)
	end = footerStart(buf)
	for j := 0; j < slotCount(buf); j++ {
		if j == i {
			continue
		}
		off := slotOffset(buf, j)
		if off != emptySlot && off > start && off < end {
			end = off
		}
	}
	return start, end
}

func initDataPage(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	setSlotCount(buf, 0)
	setPageFreeNext(buf, InvalidPgNo)
}
