// Package txn implements the transaction manager: lazy transaction
// start, page-write logging, the two-phase forceWAL durability
// protocol, commit, rollback, and the startup recovery driver. Begin/
// Commit/Abort's control-flow shape is grounded on
// storage/access/transaction_manager.go's Begin/Commit/Abort (next-id
// allocation under a mutex, a per-transaction write set walked LIFO
// at rollback), generalized from the teacher's lock-manager-and-table
// semantics to this spec's page-diff WAL.
package txn

import (
	"github.com/golang-collections/collections/stack"
	"github.com/sasha-s/go-deadlock"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
	"github.com/waldb/waldb/wal"
)

type writeSetEntry struct {
	lsn      types.LSN
	filename string
	pageNo   uint16
	segs     []wal.Segment
}

type txnState struct {
	loggedStart bool
	lastLSN     types.LSN
	writeSet    *stack.Stack
}

// Manager is the per-database transaction manager. One Manager per
// open database; it implements buffer.WALForcer (so the buffer pool
// can force the WAL before evicting a dirty page), and the Txn handles
// it hands out implement heap.Logger (so heap files can log their
// mutations), without either package importing this one.
type Manager struct {
	mu *deadlock.Mutex

	wal     *wal.Manager
	pool    *buffer.Pool
	fileMgr *file.Manager
	state   *stateFile

	tables map[string]*file.DBFile

	nextTxnID types.TxnID
	firstLSN  types.LSN

	txns map[types.TxnID]*txnState
}

// NewManager opens or creates the txn-state file at statePath and
// reconciles it against walMgr, which the caller must already have
// constructed (fresh via wal.NewManager for a new database, or via
// wal.Reopen using this same state file's persisted firstLSN/nextLSN
// when recovering an existing one).
func NewManager(fileMgr *file.Manager, pool *buffer.Pool, walMgr *wal.Manager, statePath string) (*Manager, error) {
	state, isNew, err := openOrCreateState(fileMgr, statePath)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		mu:  common.NewMutex(),
		wal: walMgr, pool: pool, fileMgr: fileMgr, state: state,
		tables: make(map[string]*file.DBFile),
		txns:   make(map[types.TxnID]*txnState),
	}
	if isNew {
		m.nextTxnID = 0
		m.firstLSN = walMgr.FirstLSN()
		if err := state.Save(m.nextTxnID, m.firstLSN, walMgr.NextLSN()); err != nil {
			return nil, err
		}
		return m, nil
	}
	nextTxnID, firstLSN, _, err := state.Load()
	if err != nil {
		return nil, err
	}
	m.nextTxnID = nextTxnID
	m.firstLSN = firstLSN
	return m, nil
}

// RegisterTable makes f's pages reachable by the filename a WAL
// record carries, needed by both ordinary logging and recovery's redo
// and undo passes.
func (m *Manager) RegisterTable(f *file.DBFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[f.Path] = f
}

// resolve looks up filename among tables already registered via
// RegisterTable, falling back to opening it directly through fileMgr.
// The fallback matters at startup: Recover runs before CreateTable/
// OpenTable have registered anything, so every table named by the
// WAL's in-progress/committed record set must still be reachable.
func (m *Manager) resolve(filename string) (*file.DBFile, error) {
	m.mu.Lock()
	f, ok := m.tables[filename]
	m.mu.Unlock()
	if ok {
		return f, nil
	}
	f, err := m.fileMgr.Open(filename, file.TypeInvalid)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.tables[filename] = f
	m.mu.Unlock()
	return f, nil
}

// Txn is a handle to one in-progress transaction, implementing
// heap.Logger so heap-file operations can log through it directly.
type Txn struct {
	mgr *Manager
	id  types.TxnID
}

func (t *Txn) ID() types.TxnID { return t.id }

func (t *Txn) WriteUpdatePageRecord(page *buffer.DBPage) error {
	return t.mgr.writeUpdatePageRecord(t.id, page)
}

func (t *Txn) Commit() error   { return t.mgr.commit(t.id) }
func (t *Txn) Rollback() error { return t.mgr.rollback(t.id) }

// Begin assigns a new transaction id. No START_TXN record is emitted
// yet; that happens lazily on the transaction's first page write.
func (m *Manager) Begin() *Txn {
	m.mu.Lock()
	m.nextTxnID++
	id := m.nextTxnID
	m.txns[id] = &txnState{writeSet: stack.New()}
	m.mu.Unlock()
	return &Txn{mgr: m, id: id}
}

func (m *Manager) ensureStarted(id types.TxnID, ts *txnState) error {
	if ts.loggedStart {
		return nil
	}
	lsn, err := m.wal.AppendStart(id)
	if err != nil {
		return err
	}
	ts.lastLSN = lsn
	ts.loggedStart = true
	return nil
}

// writeUpdatePageRecord logs page's current mutation against its
// last-synced OldData, advances the transaction's lastLSN, and pushes
// the diff onto the transaction's write-set stack for a fast,
// WAL-reread-free rollback.
func (m *Manager) writeUpdatePageRecord(id types.TxnID, page *buffer.DBPage) error {
	m.mu.Lock()
	ts, ok := m.txns[id]
	m.mu.Unlock()
	if !ok {
		return errors.IllegalState
	}
	if err := m.ensureStarted(id, ts); err != nil {
		return err
	}

	segs := wal.ComputeSegments(page.OldData, page.Data)
	if len(segs) == 0 {
		return nil
	}
	filename := page.File.Path
	pageNo := uint16(page.PageNo)

	lsn, err := m.wal.AppendUpdateSegments(id, ts.lastLSN, filename, pageNo, segs, false)
	if err != nil {
		return err
	}
	ts.lastLSN = lsn
	page.PageLSN = &lsn
	page.ResyncOldData()
	ts.writeSet.Push(writeSetEntry{lsn: lsn, filename: filename, pageNo: pageNo, segs: segs})
	return nil
}

// ForceWAL implements buffer.WALForcer and is the durability protocol
// of spec §4.6. If uptoLSN lies below the persisted nextLSN, the
// record there is already durable and nothing is written. Otherwise
// it flushes every WAL page through the WAL's current end, fsyncs,
// then atomically publishes that end as the new persisted nextLSN, so
// the whole record starting at uptoLSN lies inside the range recovery
// replays. If a crash lands between the two steps, the already-durable
// WAL tail is harmless; recovery is driven by the txn-state file's
// nextLSN, not by how far the WAL happens to extend.
func (m *Manager) ForceWAL(uptoLSN types.LSN) error {
	_, _, persisted, err := m.state.Load()
	if err != nil {
		return err
	}
	if uptoLSN.Less(persisted) {
		return nil
	}
	end := m.wal.NextLSN()
	if err := m.wal.Flush(end); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Save(m.nextTxnID, m.firstLSN, end)
}

// BeforeWriteDirtyPages is the buffer pool's single chokepoint for the
// WAL rule: before any of pages is written to its data file, every WAL
// byte through the greatest pageLSN among them must be durable.
func (m *Manager) BeforeWriteDirtyPages(pages []*buffer.DBPage) error {
	var max types.LSN
	has := false
	for _, p := range pages {
		if p.PageLSN != nil && (!has || max.Less(*p.PageLSN)) {
			max = *p.PageLSN
			has = true
		}
	}
	if !has {
		return nil
	}
	return m.ForceWAL(max)
}

// commit emits COMMIT_TXN and forces the WAL through it before
// returning, so a committed transaction's durability is guaranteed the
// instant Commit returns.
func (m *Manager) commit(id types.TxnID) error {
	m.mu.Lock()
	ts, ok := m.txns[id]
	delete(m.txns, id)
	m.mu.Unlock()
	if !ok {
		return errors.IllegalState
	}
	if !ts.loggedStart {
		return nil
	}
	lsn, err := m.wal.AppendCommit(id, ts.lastLSN)
	if err != nil {
		return err
	}
	common.ShPrintf(common.RDB_OP_FUNC_CALL, "txn %d commit at %v\n", id, lsn)
	return m.ForceWAL(lsn)
}

// rollback pops the transaction's write-set stack, restoring each
// page's pre-image and emitting a redo-only compensation record for
// it, then a final ABORT_TXN — equivalent in effect to spec's
// backward prevLSN walk, since every stack entry already carries the
// exact segments that walk would rediscover from the WAL itself.
func (m *Manager) rollback(id types.TxnID) error {
	m.mu.Lock()
	ts, ok := m.txns[id]
	delete(m.txns, id)
	m.mu.Unlock()
	if !ok {
		return errors.IllegalState
	}
	if !ts.loggedStart {
		return nil
	}

	lastWritten := ts.lastLSN
	for ts.writeSet.Len() > 0 {
		entry := ts.writeSet.Pop().(writeSetEntry)
		f, err := m.resolve(entry.filename)
		if err != nil {
			return err
		}
		page, err := m.pool.Pin(f, uint32(entry.pageNo), true)
		if err != nil {
			return err
		}
		for _, seg := range entry.segs {
			copy(page.Data[seg.StartIdx():int(seg.StartIdx())+int(seg.Size())], seg.OldBytes)
		}
		clrLSN, err := m.wal.AppendCLR(id, lastWritten, entry.filename, entry.pageNo, entry.segs)
		if err != nil {
			m.pool.Unpin(page, true)
			return err
		}
		lsn := clrLSN
		page.PageLSN = &lsn
		page.ResyncOldData()
		if err := m.pool.Unpin(page, true); err != nil {
			return err
		}
		lastWritten = clrLSN
	}

	abortLSN, err := m.wal.AppendAbort(id, lastWritten)
	if err != nil {
		return err
	}
	common.ShPrintf(common.RDB_OP_FUNC_CALL, "txn %d abort at %v\n", id, abortLSN)
	return m.ForceWAL(abortLSN)
}

// Recover is the startup recovery driver: if firstLSN already equals
// the WAL's nextLSN there is nothing to replay. Otherwise it runs redo
// (idempotent, forward from firstLSN) followed by undo (every
// transaction still in progress at crash time), then advances
// firstLSN — the only point in the baseline design where firstLSN
// moves.
func (m *Manager) Recover() error {
	if m.firstLSN.Equals(m.wal.NextLSN()) {
		return nil
	}
	common.ShPrintf(common.INFO, "recovering from firstLSN=%v to nextLSN=%v\n", m.firstLSN, m.wal.NextLSN())
	info, err := m.wal.Redo(m.pool, m.resolve)
	if err != nil {
		return err
	}
	if err := m.wal.Undo(m.pool, info, m.resolve); err != nil {
		return err
	}
	next := m.wal.NextLSN()
	if err := m.ForceWAL(next); err != nil {
		return err
	}
	if err := m.pool.WriteAll(true); err != nil {
		return err
	}
	m.mu.Lock()
	m.firstLSN = next
	err = m.state.Save(m.nextTxnID, m.firstLSN, next)
	m.mu.Unlock()
	return err
}
