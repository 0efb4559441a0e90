package wal

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// Manager owns the sequence of WAL files and is the single point
// every appender and reader serializes through (spec §5's single
// WAL-manager mutex), adapted in role from recovery/log_manager.go's
// AppendLogRecord/Flush pairing.
type Manager struct {
	mu *deadlock.Mutex

	fileMgr  *file.Manager
	pool     *buffer.Pool
	dir      string
	pageSize int

	files map[uint16]*file.DBFile

	nextLSN  types.LSN
	firstLSN types.LSN
}

func walPath(dir string, fileNo uint16) string {
	return fmt.Sprintf("%s/wal-%05d.log", dir, fileNo)
}

// NewManager opens or creates WAL file 0 and starts logging at the
// first record offset.
func NewManager(fileMgr *file.Manager, pool *buffer.Pool, dir string, pageSize int) (*Manager, error) {
	m := &Manager{
		mu:       common.NewMutex(),
		fileMgr:  fileMgr,
		pool:     pool,
		dir:      dir,
		pageSize: pageSize,
		files:    make(map[uint16]*file.DBFile),
		nextLSN:  types.NewLSN(0, common.OffsetFirstRecord),
		firstLSN: types.NewLSN(0, common.OffsetFirstRecord),
	}
	if _, err := m.openOrCreateFile(0, 0); err != nil {
		return nil, err
	}
	return m, nil
}

// Reopen reconstructs a Manager against an existing WAL directory at
// recovery time, given the last-persisted nextLSN/firstLSN from the
// transaction-state file.
func Reopen(fileMgr *file.Manager, pool *buffer.Pool, dir string, pageSize int, firstLSN, nextLSN types.LSN) (*Manager, error) {
	m := &Manager{
		mu:       common.NewMutex(),
		fileMgr:  fileMgr,
		pool:     pool,
		dir:      dir,
		pageSize: pageSize,
		files:    make(map[uint16]*file.DBFile),
		nextLSN:  nextLSN,
		firstLSN: firstLSN,
	}
	if _, err := m.fileForRead(nextLSN.FileNo); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) NextLSN() types.LSN  { return m.nextLSN }
func (m *Manager) FirstLSN() types.LSN { return m.firstLSN }

// openOrCreateFile opens WAL file fileNo, creating it if absent and
// stamping its header with prevEndOffset, the previous file's
// last-record end offset, so a cold-start forward scan knows where
// that earlier file's valid records stop.
func (m *Manager) openOrCreateFile(fileNo uint16, prevEndOffset uint32) (*file.DBFile, error) {
	if f, ok := m.files[fileNo]; ok {
		return f, nil
	}
	path := walPath(m.dir, fileNo)
	f, err := m.fileMgr.Open(path, file.TypeWALLog)
	if err == errors.NotFound {
		f, err = m.fileMgr.Create(path, file.TypeWALLog, m.pageSize)
		if err != nil {
			return nil, err
		}
		header, herr := m.fileMgr.LoadPage(f, 0, true)
		if herr != nil {
			return nil, herr
		}
		codec.WriteInt(header, 2, prevEndOffset)
		if err := m.fileMgr.SavePage(f, 0, header); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	m.files[fileNo] = f
	return f, nil
}

func (m *Manager) fileForRead(fileNo uint16) (*file.DBFile, error) {
	if f, ok := m.files[fileNo]; ok {
		return f, nil
	}
	f, err := m.fileMgr.Open(walPath(m.dir, fileNo), file.TypeWALLog)
	if err != nil {
		return nil, err
	}
	m.files[fileNo] = f
	return f, nil
}

// prevFileEndOffset reads the "previous file's last-record end
// offset" header field out of fileNo's own page 0 (written when
// fileNo was created, at the moment of wraparound).
func (m *Manager) prevFileEndOffset(fileNo uint16) (uint32, error) {
	f, err := m.fileForRead(fileNo)
	if err != nil {
		return 0, err
	}
	page, err := m.pool.Pin(f, 0, false)
	if err != nil {
		return 0, err
	}
	defer m.pool.Unpin(page, false)
	return codec.ReadInt(page.Data, 2), nil
}

// append is the shared append path: it decides whether rec fits in
// the current WAL file or must wrap into a fresh one first, writes
// the serialized bytes, and advances nextLSN.
func (m *Manager) append(rec *Record) (types.LSN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := recordSize(rec)
	candidate := m.nextLSN
	if uint64(candidate.Offset)+uint64(size) > common.MaxWALFileSize {
		newFileNo := candidate.FileNo + 1
		if _, err := m.openOrCreateFile(newFileNo, candidate.Offset); err != nil {
			return types.LSN{}, err
		}
		candidate = types.NewLSN(newFileNo, common.OffsetFirstRecord)
	}

	f, err := m.openOrCreateFile(candidate.FileNo, 0)
	if err != nil {
		return types.LSN{}, err
	}

	blob := Serialize(rec, candidate.Offset)
	common.Assert(len(blob) == size, "wal: recordSize and Serialize disagree on record length")
	pageNo := candidate.Offset / uint32(m.pageSize)
	inPageOff := int(candidate.Offset % uint32(m.pageSize))
	w, err := codec.NewExtendingWriter(m.pool, f, pageNo, inPageOff)
	if err != nil {
		return types.LSN{}, err
	}
	if err := w.WriteBytes(blob); err != nil {
		w.Close()
		return types.LSN{}, err
	}
	if err := w.Close(); err != nil {
		return types.LSN{}, err
	}

	m.nextLSN = types.NewLSN(candidate.FileNo, candidate.Offset+uint32(len(blob)))
	return candidate, nil
}

func (m *Manager) AppendStart(txnID types.TxnID) (types.LSN, error) {
	return m.append(&Record{Type: RecStart, TxnID: txnID})
}

func (m *Manager) AppendCommit(txnID types.TxnID, prevLSN types.LSN) (types.LSN, error) {
	return m.append(&Record{Type: RecCommit, TxnID: txnID, PrevLSN: &prevLSN})
}

func (m *Manager) AppendAbort(txnID types.TxnID, prevLSN types.LSN) (types.LSN, error) {
	return m.append(&Record{Type: RecAbort, TxnID: txnID, PrevLSN: &prevLSN})
}

// AppendUpdate logs a page mutation from its before/after images,
// computing the changed-byte segments itself.
func (m *Manager) AppendUpdate(txnID types.TxnID, prevLSN types.LSN, filename string, pageNo uint16, oldData, newData []byte, redoOnly bool) (types.LSN, error) {
	return m.AppendUpdateSegments(txnID, prevLSN, filename, pageNo, computeSegments(oldData, newData), redoOnly)
}

// AppendUpdateSegments is AppendUpdate for a caller that has already
// computed (or cached) the segment diff itself, e.g. the transaction
// manager's write-set stack.
func (m *Manager) AppendUpdateSegments(txnID types.TxnID, prevLSN types.LSN, filename string, pageNo uint16, segs []Segment, redoOnly bool) (types.LSN, error) {
	t := RecUpdate
	if redoOnly {
		t = RecUpdateRedoOnly
	}
	return m.append(&Record{
		Type: t, TxnID: txnID, PrevLSN: &prevLSN,
		Filename: filename, PageNo: pageNo, Segments: segs,
	})
}

// ComputeSegments exposes the page-diff segmentation used internally
// by AppendUpdate, for callers (the transaction manager's write-set
// stack) that need the same segments both to append a record now and
// to undo it later without re-reading the WAL.
func ComputeSegments(oldData, newData []byte) []Segment {
	return computeSegments(oldData, newData)
}

// Flush makes every WAL record up to and including uptoLSN durable,
// writing back only the dirty WAL pages themselves (never a data
// file's pages) so forcing the WAL never incidentally flushes a dirty
// heap page that has not yet been through writeUpdatePageRecord.
func (m *Manager) Flush(uptoLSN types.LSN) error {
	m.mu.Lock()
	files := make([]*file.DBFile, 0, len(m.files))
	for fileNo, f := range m.files {
		if fileNo <= uptoLSN.FileNo {
			files = append(files, f)
		}
	}
	m.mu.Unlock()
	for _, f := range files {
		if err := m.pool.FlushFile(f, true); err != nil {
			return err
		}
	}
	return nil
}
