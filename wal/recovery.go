package wal

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// PageOpener resolves a WAL record's filename to the open DBFile it
// refers to. The WAL manager never holds heap files open itself; the
// caller (the transaction manager, which already tracks every open
// table) supplies this.
type PageOpener func(filename string) (*file.DBFile, error)

// RecoveryInfo is Redo's report to Undo: which transactions reached a
// COMMIT or ABORT record (winners, left alone) versus which were still
// in progress at crash time (losers, to be rolled back), plus each
// transaction's last-seen LSN to seed the backward walk.
type RecoveryInfo struct {
	CompletedTxns mapset.Set[types.TxnID]
	InProgress    mapset.Set[types.TxnID]
	LastLSN       map[types.TxnID]types.LSN
}

func newRecoveryInfo() *RecoveryInfo {
	return &RecoveryInfo{
		CompletedTxns: mapset.NewSet[types.TxnID](),
		InProgress:    mapset.NewSet[types.TxnID](),
		LastLSN:       make(map[types.TxnID]types.LSN),
	}
}

func posToPage(offset uint32, pageSize int) (uint32, int) {
	return offset / uint32(pageSize), int(offset % uint32(pageSize))
}

// fileEndOffset reports where fileNo's valid records stop: the
// manager's own nextLSN.Offset if fileNo is the current (still being
// appended to) file, otherwise the "previous file's end" field stored
// in the header of fileNo+1.
func (m *Manager) fileEndOffset(fileNo uint16) (uint32, error) {
	if fileNo == m.nextLSN.FileNo {
		return m.nextLSN.Offset, nil
	}
	return m.prevFileEndOffset(fileNo + 1)
}

// Redo replays every WAL record from firstLSN to nextLSN, applying
// each UPDATE/UPDATE_REDO_ONLY record to its target page whenever that
// page's current PageLSN is older than the record (the idempotence
// check that makes redo safe to run against a partially-flushed
// database), and returns which transactions committed, aborted, or
// were still open at crash time.
func (m *Manager) Redo(pool *buffer.Pool, opener PageOpener) (*RecoveryInfo, error) {
	info := newRecoveryInfo()
	openFiles := make(map[string]*file.DBFile)

	resolve := func(filename string) (*file.DBFile, error) {
		if f, ok := openFiles[filename]; ok {
			return f, nil
		}
		f, err := opener(filename)
		if err != nil {
			return nil, err
		}
		openFiles[filename] = f
		return f, nil
	}

	cur := m.firstLSN
	for cur.Less(m.nextLSN) {
		endOffset, err := m.fileEndOffset(cur.FileNo)
		if err != nil {
			return nil, err
		}
		f, err := m.fileForRead(cur.FileNo)
		if err != nil {
			return nil, err
		}
		pageNo, inPageOff := posToPage(cur.Offset, m.pageSize)
		reader, err := codec.NewReader(pool, f, pageNo, inPageOff)
		if err != nil {
			return nil, err
		}
		for cur.Offset < endOffset {
			rec, n, err := DeserializeRecord(reader)
			if err != nil {
				reader.Close()
				common.Dump("[waldb] redo failed at lsn ", cur)
				return nil, err
			}
			rec.LSN = cur
			if err := applyRedo(pool, resolve, rec, info); err != nil {
				reader.Close()
				return nil, err
			}
			cur.Offset += uint32(n)
		}
		reader.Close()
		if cur.FileNo != m.nextLSN.FileNo {
			cur = types.NewLSN(cur.FileNo+1, common.OffsetFirstRecord)
		}
	}
	return info, nil
}

// ReadRecords forward-scans every record in [start, end) without
// applying any of them, for diagnostics and tests that need to
// inspect the WAL's exact record sequence rather than drive recovery.
func (m *Manager) ReadRecords(pool *buffer.Pool, start, end types.LSN) ([]*Record, error) {
	var recs []*Record
	cur := start
	for cur.Less(end) {
		endOffset, err := m.fileEndOffset(cur.FileNo)
		if err != nil {
			return nil, err
		}
		f, err := m.fileForRead(cur.FileNo)
		if err != nil {
			return nil, err
		}
		pageNo, inPageOff := posToPage(cur.Offset, m.pageSize)
		reader, err := codec.NewReader(pool, f, pageNo, inPageOff)
		if err != nil {
			return nil, err
		}
		for cur.Offset < endOffset && cur.Less(end) {
			rec, n, err := DeserializeRecord(reader)
			if err != nil {
				reader.Close()
				return nil, err
			}
			rec.LSN = cur
			recs = append(recs, rec)
			cur.Offset += uint32(n)
		}
		reader.Close()
		if cur.FileNo != end.FileNo && cur.Offset >= endOffset {
			cur = types.NewLSN(cur.FileNo+1, common.OffsetFirstRecord)
		}
	}
	return recs, nil
}

func applyRedo(pool *buffer.Pool, resolve PageOpener, rec *Record, info *RecoveryInfo) error {
	switch rec.Type {
	case RecStart:
		info.InProgress.Add(rec.TxnID)
		info.LastLSN[rec.TxnID] = rec.LSN
	case RecCommit, RecAbort:
		info.CompletedTxns.Add(rec.TxnID)
		info.InProgress.Remove(rec.TxnID)
		info.LastLSN[rec.TxnID] = rec.LSN
	case RecUpdate, RecUpdateRedoOnly:
		info.LastLSN[rec.TxnID] = rec.LSN
		f, err := resolve(rec.Filename)
		if err != nil {
			return err
		}
		page, err := pool.Pin(f, uint32(rec.PageNo), true)
		if err != nil {
			return err
		}
		if page.PageLSN == nil || page.PageLSN.Less(rec.LSN) {
			for _, seg := range rec.Segments {
				copy(page.Data[seg.StartIdx():int(seg.StartIdx())+int(seg.Size())], seg.NewBytes)
			}
			lsn := rec.LSN
			page.PageLSN = &lsn
			return pool.Unpin(page, true)
		}
		return pool.Unpin(page, false)
	}
	return nil
}

// recordTypeAndStart identifies the record whose last byte is
// endOffset-1 within f, returning its type and its own starting
// offset, without needing to know its length in advance: fixed-size
// records are identified by their trailing type byte alone; variable
// UPDATE records carry their own start offset in the 4 bytes just
// before that trailing byte.
func (m *Manager) recordTypeAndStart(pool *buffer.Pool, f *file.DBFile, endOffset uint32) (RecordType, uint32, error) {
	typeByte, err := m.readRange(pool, f, endOffset-1, endOffset)
	if err != nil {
		return 0, 0, err
	}
	t := RecordType(typeByte[0])
	switch t {
	case RecStart:
		return t, endOffset - fixedSizeStart, nil
	case RecCommit, RecAbort:
		return t, endOffset - fixedSizeCommit, nil
	case RecUpdate, RecUpdateRedoOnly:
		b, err := m.readRange(pool, f, endOffset-5, endOffset-1)
		if err != nil {
			return 0, 0, err
		}
		return t, uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
	default:
		return 0, 0, errors.DataFormat
	}
}

func (m *Manager) readRange(pool *buffer.Pool, f *file.DBFile, start, end uint32) ([]byte, error) {
	pageNo, inPageOff := posToPage(start, m.pageSize)
	r, err := codec.NewReader(pool, f, pageNo, inPageOff)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadBytes(int(end - start))
}

// Undo rolls back every transaction info marks InProgress, walking
// each one's record chain backward from its last-seen LSN, restoring
// each UPDATE record's pre-image and writing a redo-only compensation
// record so the undo itself survives a second crash, then terminates
// the chain with an ABORT record.
func (m *Manager) Undo(pool *buffer.Pool, info *RecoveryInfo, opener PageOpener) error {
	openFiles := make(map[string]*file.DBFile)
	resolve := func(filename string) (*file.DBFile, error) {
		if f, ok := openFiles[filename]; ok {
			return f, nil
		}
		f, err := opener(filename)
		if err != nil {
			return nil, err
		}
		openFiles[filename] = f
		return f, nil
	}

	for _, txnID := range info.InProgress.ToSlice() {
		// info.LastLSN[txnID] is already the start offset of that
		// transaction's last record (Redo records rec.LSN, not its end),
		// so each step of this walk follows rec.PrevLSN directly rather
		// than locating a start from a trailing end-offset.
		cur := info.LastLSN[txnID]
		lastWritten := cur
		for {
			f, err := m.fileForRead(cur.FileNo)
			if err != nil {
				return err
			}
			pageNo, inPageOff := posToPage(cur.Offset, m.pageSize)
			reader, err := codec.NewReader(pool, f, pageNo, inPageOff)
			if err != nil {
				return err
			}
			rec, _, err := DeserializeRecord(reader)
			reader.Close()
			if err != nil {
				return err
			}
			if rec.Type == RecStart {
				break
			}

			if rec.Type == RecUpdate {
				if rec.PrevLSN == nil {
					return errors.DataFormat
				}
				tf, err := resolve(rec.Filename)
				if err != nil {
					return err
				}
				page, err := pool.Pin(tf, uint32(rec.PageNo), true)
				if err != nil {
					return err
				}
				for _, seg := range rec.Segments {
					copy(page.Data[seg.StartIdx():int(seg.StartIdx())+int(seg.Size())], seg.OldBytes)
				}
				// The CLR's own PrevLSN is rec.PrevLSN, the next record
				// still needing undo (ARIES's UndoNxtLSN), not lastWritten
				// (the record just compensated). If a crash interrupts
				// undo and recovery resumes here, the backward walk must
				// skip straight past every record this CLR (and its
				// predecessors) already compensated rather than re-undo
				// them.
				clrLSN, err := m.AppendCLR(txnID, *rec.PrevLSN, rec.Filename, rec.PageNo, rec.Segments)
				if err != nil {
					return err
				}
				lsn := clrLSN
				page.PageLSN = &lsn
				if err := pool.Unpin(page, true); err != nil {
					return err
				}
				lastWritten = clrLSN
			}

			if rec.PrevLSN == nil {
				break
			}
			cur = *rec.PrevLSN
		}
		if _, err := m.AppendAbort(txnID, lastWritten); err != nil {
			return err
		}
	}
	return nil
}

// AppendCLR writes a redo-only compensation record that restores segs'
// old images, used by Undo so a rollback is itself crash-safe.
func (m *Manager) AppendCLR(txnID types.TxnID, prevLSN types.LSN, filename string, pageNo uint16, segs []Segment) (types.LSN, error) {
	clrSegs := make([]Segment, len(segs))
	for i, s := range segs {
		clrSegs[i] = NewSegment(s.StartIdx(), s.Size(), nil, s.OldBytes)
	}
	return m.append(&Record{
		Type: RecUpdateRedoOnly, TxnID: txnID, PrevLSN: &prevLSN,
		Filename: filename, PageNo: pageNo, Segments: clrSegs,
	})
}
