// Package engine composes the file manager, buffer pool, WAL manager,
// transaction manager, and any number of heap files into one opened
// database, the wiring spec §2's control-flow paragraph describes:
// the planner/evaluator's calls land on a heap file, pinned pages are
// mutated through the page codec, and the buffer pool forces the WAL
// before any dirty page leaves memory.
package engine

import (
	"fmt"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/storage/heap"
	"github.com/waldb/waldb/txn"
	"github.com/waldb/waldb/wal"
)

// Config configures a newly opened Engine. Zero values fall back to
// common's defaults.
type Config struct {
	Dir              string
	PageSize         int
	BufferPoolFrames uint32
	UseMemDevices    bool // tests only; a real deployment always uses OS files
}

func (c Config) pageSize() int {
	if c.PageSize == 0 {
		return common.DefaultPageSize
	}
	return c.PageSize
}

func (c Config) bufferFrames() uint32 {
	if c.BufferPoolFrames == 0 {
		return common.DefaultBufferPoolSize
	}
	return c.BufferPoolFrames
}

// Engine is one opened database: its file manager, buffer pool, WAL,
// transaction manager, and the set of heap files currently open.
type Engine struct {
	cfg     Config
	fileMgr *file.Manager
	pool    *buffer.Pool
	wal     *wal.Manager
	txn     *txn.Manager
	tables  map[string]*heap.HeapFile
}

func (e *Engine) statePath() string { return e.cfg.Dir + "/txn-state" }
func (e *Engine) walDir() string    { return e.cfg.Dir + "/wal" }
func (e *Engine) tablePath(name string) string {
	return fmt.Sprintf("%s/%s.heap", e.cfg.Dir, name)
}

// Open opens (creating if absent) the database at cfg.Dir and runs
// crash recovery before returning, per spec §4.6's recover(): a no-op
// if the txn-state file's firstLSN already equals nextLSN.
func Open(cfg Config) (*Engine, error) {
	return OpenWithFileManager(file.NewManager(cfg.UseMemDevices), cfg)
}

// OpenWithFileManager opens a database against an already-constructed
// file.Manager. Production callers never need this (Open is enough);
// it exists so tests can simulate a crash — drop every in-memory
// object (Pool, WAL manager, transaction manager) while keeping the
// same file.Manager, whose in-memory block devices stand in for bytes
// a real crash would leave exactly as durable as the last fsync made
// them — and then reopen against it.
func OpenWithFileManager(fileMgr *file.Manager, cfg Config) (*Engine, error) {
	e := &Engine{cfg: cfg, fileMgr: fileMgr, tables: make(map[string]*heap.HeapFile)}
	e.pool = buffer.NewPool(e.cfg.bufferFrames(), e.fileMgr, nil)

	exists, _, firstLSN, nextLSN, err := txn.PeekState(e.fileMgr, e.statePath())
	if err != nil {
		return nil, err
	}

	var walMgr *wal.Manager
	if exists {
		walMgr, err = wal.Reopen(e.fileMgr, e.pool, e.walDir(), e.cfg.pageSize(), firstLSN, nextLSN)
	} else {
		walMgr, err = wal.NewManager(e.fileMgr, e.pool, e.walDir(), e.cfg.pageSize())
	}
	if err != nil {
		return nil, err
	}
	e.wal = walMgr

	txnMgr, err := txn.NewManager(e.fileMgr, e.pool, e.wal, e.statePath())
	if err != nil {
		return nil, err
	}
	e.txn = txnMgr
	e.pool.SetForcer(txnMgr)

	if err := e.txn.Recover(); err != nil {
		return nil, err
	}
	return e, nil
}

// CreateTable formats a new heap file named name with schema and
// registers it with the transaction manager so WAL records naming it
// resolve during logging and recovery.
func (e *Engine) CreateTable(name string, schema *heap.Schema) (*heap.HeapFile, error) {
	hf, err := heap.Create(e.fileMgr, e.pool, e.tablePath(name), e.cfg.pageSize(), schema)
	if err != nil {
		return nil, err
	}
	e.txn.RegisterTable(hf.File())
	e.tables[name] = hf
	return hf, nil
}

// OpenTable reopens an existing heap file and registers it, the same
// registration CreateTable performs, needed whenever a table outlives
// the Engine instance that created it (including across recovery).
func (e *Engine) OpenTable(name string) (*heap.HeapFile, error) {
	if hf, ok := e.tables[name]; ok {
		return hf, nil
	}
	hf, err := heap.Open(e.fileMgr, e.pool, e.tablePath(name))
	if err != nil {
		return nil, err
	}
	e.txn.RegisterTable(hf.File())
	e.tables[name] = hf
	return hf, nil
}

func (e *Engine) Table(name string) (*heap.HeapFile, bool) {
	hf, ok := e.tables[name]
	return hf, ok
}

// Begin starts a new transaction.
func (e *Engine) Begin() *txn.Txn { return e.txn.Begin() }

// Pool and WAL expose the lower layers for tests and tools that need
// to drive eviction or inspect WAL internals directly.
func (e *Engine) Pool() *buffer.Pool   { return e.pool }
func (e *Engine) WAL() *wal.Manager    { return e.wal }
func (e *Engine) FileManager() *file.Manager { return e.fileMgr }
