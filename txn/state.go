package txn

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// PeekState reports whether a txn-state file already exists at path
// and, if so, its persisted fields — used by the engine to decide
// whether to construct the WAL manager fresh or via wal.Reopen before
// the transaction manager itself is constructed.
func PeekState(fileMgr *file.Manager, path string) (exists bool, nextTxnID types.TxnID, firstLSN, nextLSN types.LSN, err error) {
	f, err := fileMgr.Open(path, file.TypeTxnState)
	if err == errors.NotFound {
		return false, 0, types.LSN{}, types.LSN{}, nil
	}
	if err != nil {
		return false, 0, types.LSN{}, types.LSN{}, err
	}
	s := &stateFile{fileMgr: fileMgr, dbFile: f}
	nextTxnID, firstLSN, nextLSN, err = s.Load()
	return true, nextTxnID, firstLSN, nextLSN, err
}

// stateFile is the single-sector txn-state file: nextTxnId, firstLSN,
// and nextLSN, rewritten as one atomic sector write on every durable
// state change (the OS is assumed to make a single-sector write
// atomic, so a crash mid-write never leaves a torn record).
type stateFile struct {
	fileMgr *file.Manager
	dbFile  *file.DBFile
}

const (
	stateOffsetNextTxnID   = 2
	stateOffsetFirstLSN    = 6
	stateOffsetNextLSN     = 12
	stateSectorSize        = 512
)

// openOrCreateState opens path as a txn-state file, creating it (and
// reporting isNew) if it does not already exist.
func openOrCreateState(fileMgr *file.Manager, path string) (s *stateFile, isNew bool, err error) {
	f, err := fileMgr.Open(path, file.TypeTxnState)
	if err == nil {
		return &stateFile{fileMgr: fileMgr, dbFile: f}, false, nil
	}
	f, err = fileMgr.Create(path, file.TypeTxnState, stateSectorSize)
	if err != nil {
		return nil, false, err
	}
	return &stateFile{fileMgr: fileMgr, dbFile: f}, true, nil
}

func (s *stateFile) Load() (nextTxnID types.TxnID, firstLSN, nextLSN types.LSN, err error) {
	buf, err := s.fileMgr.LoadPage(s.dbFile, 0, true)
	if err != nil {
		return 0, types.LSN{}, types.LSN{}, err
	}
	nextTxnID = types.TxnID(codec.ReadInt(buf, stateOffsetNextTxnID))
	firstLSN = types.NewLSN(codec.ReadShort(buf, stateOffsetFirstLSN), codec.ReadInt(buf, stateOffsetFirstLSN+2))
	nextLSN = types.NewLSN(codec.ReadShort(buf, stateOffsetNextLSN), codec.ReadInt(buf, stateOffsetNextLSN+2))
	return nextTxnID, firstLSN, nextLSN, nil
}

// Save rewrites the whole sector in a single SavePage+Sync call.
func (s *stateFile) Save(nextTxnID types.TxnID, firstLSN, nextLSN types.LSN) error {
	buf, err := s.fileMgr.LoadPage(s.dbFile, 0, true)
	if err != nil {
		return err
	}
	codec.WriteInt(buf, stateOffsetNextTxnID, uint32(nextTxnID))
	codec.WriteShort(buf, stateOffsetFirstLSN, firstLSN.FileNo)
	codec.WriteInt(buf, stateOffsetFirstLSN+2, firstLSN.Offset)
	codec.WriteShort(buf, stateOffsetNextLSN, nextLSN.FileNo)
	codec.WriteInt(buf, stateOffsetNextLSN+2, nextLSN.Offset)
	if err := s.fileMgr.SavePage(s.dbFile, 0, buf); err != nil {
		return err
	}
	return s.fileMgr.Sync(s.dbFile)
}
