// Stats recovers the ANALYZE feature original_source's StatsAccumulator
// provides (dropped by the distillation's focus on CRUD): a single
// pass over all data pages computing table- and column-level
// statistics, persisted through the heap file's SaveMetadata.
package heap

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/codec"
)

type ColumnStats struct {
	NumDistinct int64
	NumNull     int64
	// Min/Max are omitted (left at their zero value) for ColVarChar,
	// matching spec §4.4's "min/max omitted for strings".
	Min int64
	Max int64
	hasMinMax bool
	seen      map[int64]bool
	seenStr   map[string]bool
}

type TableStats struct {
	NumPages       int
	NumTuples      int64
	TotalTupleBytes int64
	NumColumns     int
	Columns        []ColumnStats
}

func (t *TableStats) AvgTupleSize() float64 {
	if t.NumTuples == 0 {
		return 0
	}
	return float64(t.TotalTupleBytes) / float64(t.NumTuples)
}

func newTableStats(numColumns int) *TableStats {
	cols := make([]ColumnStats, numColumns)
	for i := range cols {
		cols[i] = ColumnStats{seen: make(map[int64]bool)}
	}
	return &TableStats{NumColumns: numColumns, Columns: cols}
}

func (c *ColumnStats) observe(v Value, colType ColumnType) {
	if v.Null {
		c.NumNull++
		return
	}
	if colType == ColVarChar {
		if c.seenStr == nil {
			c.seenStr = make(map[string]bool)
		}
		if !c.seenStr[v.S] {
			c.seenStr[v.S] = true
			c.NumDistinct++
		}
		return
	}
	var n int64
	switch colType {
	case ColInt32:
		n = int64(v.I32)
	case ColInt64:
		n = v.I64
	case ColBool:
		if v.B {
			n = 1
		}
	case ColFloat64:
		n = int64(v.F64)
	}
	if !c.seen[n] {
		c.seen[n] = true
		c.NumDistinct++
	}
	if !c.hasMinMax || n < c.Min {
		c.Min = n
	}
	if !c.hasMinMax || n > c.Max {
		c.Max = n
	}
	c.hasMinMax = true
}

// Analyze performs spec §4.4's ANALYZE: a single pass over all data
// pages accumulating numPages/numTuples/totalTupleBytes and
// per-column distinct/null/min/max, then persists the result through
// tx so the header page's stats write is logged and WAL-forced like
// any other mutation.
func (h *HeapFile) Analyze(tx Logger) (*TableStats, error) {
	numPages, err := h.dbFile.NumPages()
	if err != nil {
		return nil, err
	}
	stats := newTableStats(h.schema.NumColumns())

	for pageNo := uint32(1); pageNo < numPages; pageNo++ {
		page, err := h.pool.Pin(h.dbFile, pageNo, false)
		if err != nil {
			return nil, err
		}
		for slot := 0; slot < slotCount(page.Data); slot++ {
			if slotOffset(page.Data, slot) == emptySlot {
				continue
			}
			start, end := tupleBounds(page.Data, slot)
			values, err := DecodeTuple(h.schema, page.Data[start:end])
			if err != nil {
				h.pool.Unpin(page, false)
				return nil, err
			}
			stats.NumTuples++
			stats.TotalTupleBytes += int64(end - start)
			for i, v := range values {
				stats.Columns[i].observe(v, h.schema.Columns[i].Type)
			}
		}
		h.pool.Unpin(page, false)
	}
	stats.NumPages = int(numPages) - 1

	return stats, h.SaveMetadata(tx, stats)
}

// SaveMetadata persists stats into the header page's stats-bytes
// region, growing or shrinking that region as needed, logging the
// write through tx the same way AddTuple/DeleteTuple log theirs so
// the header's PageLSN stays current and an unrelated transaction's
// diff against OldData never silently folds in an ANALYZE write.
func (h *HeapFile) SaveMetadata(tx Logger, stats *TableStats) error {
	header, err := h.pool.Pin(h.dbFile, 0, false)
	if err != nil {
		return err
	}
	encoded := encodeStats(stats)
	schemaEnd := offsetSchemaData + headerSchemaSize(header.Data)
	if schemaEnd+len(encoded) > len(header.Data) {
		h.pool.Unpin(header, false)
		return errors.NotEnoughSpace
	}
	setHeaderStatsSize(header.Data, len(encoded))
	copy(header.Data[schemaEnd:schemaEnd+len(encoded)], encoded)
	if err := tx.WriteUpdatePageRecord(header); err != nil {
		h.pool.Unpin(header, true)
		return err
	}
	return h.pool.Unpin(header, true)
}

func encodeStats(stats *TableStats) []byte {
	buf := make([]byte, 8+4+4+4+stats.NumColumns*(8+8+8+8))
	off := 0
	codec.WriteLong(buf, off, uint64(stats.NumTuples))
	off += 8
	codec.WriteInt(buf, off, uint32(stats.NumPages))
	off += 4
	codec.WriteInt(buf, off, uint32(stats.TotalTupleBytes))
	off += 4
	codec.WriteInt(buf, off, uint32(stats.NumColumns))
	off += 4
	for _, c := range stats.Columns {
		codec.WriteLong(buf, off, uint64(c.NumDistinct))
		off += 8
		codec.WriteLong(buf, off, uint64(c.NumNull))
		off += 8
		codec.WriteLong(buf, off, uint64(c.Min))
		off += 8
		codec.WriteLong(buf, off, uint64(c.Max))
		off += 8
	}
	return buf
}
