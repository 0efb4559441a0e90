package engine

import (
	"testing"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/storage/heap"
	"github.com/waldb/waldb/wal"
)

func testSchema() *heap.Schema {
	return &heap.Schema{Columns: []heap.Column{
		{Name: "id", Type: heap.ColInt32},
		{Name: "name", Type: heap.ColVarChar},
	}}
}

func testConfig(dir string) Config {
	return Config{Dir: dir, PageSize: 512, BufferPoolFrames: 16, UseMemDevices: true}
}

// crash drops every in-memory object but keeps fileMgr, simulating a
// crash at whatever durability state the last flush/fsync left.
func crash(t *testing.T, fileMgr *file.Manager, cfg Config) *Engine {
	t.Helper()
	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestS1InsertThenCrashBeforeCommitLeavesTableEmpty(t *testing.T) {
	fileMgr := file.NewManager(true)
	cfg := testConfig("db1")

	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	tx := e.Begin()
	if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(42), heap.StringValue("hello")}); err != nil {
		t.Fatal(err)
	}
	// crash: no Commit call, so no ForceWAL, so nothing in the WAL's
	// buffer-pool pages ever reached the simulated disk.

	e2 := crash(t, fileMgr, cfg)
	hf2, err := e2.OpenTable("t1")
	if err != nil {
		t.Fatal(err)
	}
	tup, err := hf2.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup != nil {
		t.Fatal("expected an empty table after crash before commit")
	}
}

func TestS2InsertCommitThenCrashBeforeDataFlushStillRedone(t *testing.T) {
	fileMgr := file.NewManager(true)
	cfg := testConfig("db2")

	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	tx := e.Begin()
	if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(42), heap.StringValue("hello")}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	// commit forces the WAL durable but never flushes the heap data
	// page itself, so the insert only survives via redo.

	e2 := crash(t, fileMgr, cfg)
	hf2, err := e2.OpenTable("t1")
	if err != nil {
		t.Fatal(err)
	}
	tup, err := hf2.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup == nil {
		t.Fatal("expected redo to recover the committed insert")
	}
	if tup.GetInt32(0) != 42 || tup.GetString(1) != "hello" {
		t.Fatalf("got (%d, %q)", tup.GetInt32(0), tup.GetString(1))
	}
}

func TestS3InsertDeleteCommitScanSurvivor(t *testing.T) {
	fileMgr := file.NewManager(true)
	cfg := testConfig("db3")

	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	tx := e.Begin()
	rid1, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(1), heap.StringValue("one")})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(2), heap.StringValue("two")}); err != nil {
		t.Fatal(err)
	}
	if err := hf.DeleteTuple(tx, *rid1); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	tup, err := hf.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup == nil || tup.GetInt32(0) != 2 {
		t.Fatal("expected the surviving tuple (2, \"two\")")
	}
	next, err := hf.NextTuple(tup)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatal("expected exactly one surviving tuple")
	}

	// Both tuples landed on page 1, which Create put on the free list
	// at table-creation time; neither insert needed to pop it off since
	// it already had room, so it must still be there after the delete
	// frees even more space on it.
	free, err := hf.FreePages()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range free {
		if p == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected page 1 on the free list, got %v", free)
	}
}

func TestS4AbortRollsBackTwoInserts(t *testing.T) {
	fileMgr := file.NewManager(true)
	cfg := testConfig("db4")

	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	tx := e.Begin()
	if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(1), heap.StringValue("one")}); err != nil {
		t.Fatal(err)
	}
	if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(2), heap.StringValue("two")}); err != nil {
		t.Fatal(err)
	}
	startLSN := e.WAL().NextLSN()
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}

	tup, err := hf.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup != nil {
		t.Fatal("expected no surviving tuples after abort")
	}

	recs, err := e.WAL().ReadRecords(e.Pool(), startLSN, e.WAL().NextLSN())
	if err != nil {
		t.Fatal(err)
	}
	var redoOnly, aborts int
	for _, rec := range recs {
		switch rec.Type {
		case wal.RecUpdateRedoOnly:
			redoOnly++
		case wal.RecAbort:
			aborts++
		case wal.RecUpdate:
			t.Fatal("expected rollback to log compensation records, not plain UPDATE_PAGE records")
		}
	}
	if redoOnly != 2 {
		t.Fatalf("expected 2 UPDATE_PAGE_REDO_ONLY compensation records, got %d", redoOnly)
	}
	if aborts != 1 {
		t.Fatalf("expected exactly 1 ABORT_TXN record, got %d", aborts)
	}
}

func TestS5WALWrapAdvancesFileNo(t *testing.T) {
	old := common.MaxWALFileSize
	common.MaxWALFileSize = 64 // force a wrap after very few records
	defer func() { common.MaxWALFileSize = old }()

	fileMgr := file.NewManager(true)
	cfg := testConfig("db5")
	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}

	var lsn uint16
	for i := 0; i < 10; i++ {
		tx := e.Begin()
		if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(int32(i)), heap.StringValue("x")}); err != nil {
			t.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatal(err)
		}
		lsn = e.WAL().NextLSN().FileNo
		if lsn > 0 {
			break
		}
	}
	if lsn == 0 {
		t.Fatal("expected enough small updates to force a WAL file wrap")
	}
}

func TestS6AnalyzeAccuracy(t *testing.T) {
	fileMgr := file.NewManager(true)
	cfg := testConfig("db6")
	e, err := OpenWithFileManager(fileMgr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	hf, err := e.CreateTable("t1", testSchema())
	if err != nil {
		t.Fatal(err)
	}
	tx := e.Begin()
	names := []string{"a", "a", "b", "c"}
	for i, n := range names {
		if _, err := hf.AddTuple(tx, []heap.Value{heap.Int32Value(int32(i)), heap.StringValue(n)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	atx := e.Begin()
	stats, err := hf.Analyze(atx)
	if err != nil {
		t.Fatal(err)
	}
	if err := atx.Commit(); err != nil {
		t.Fatal(err)
	}
	if stats.NumTuples != int64(len(names)) {
		t.Fatalf("expected %d tuples, got %d", len(names), stats.NumTuples)
	}
	if stats.Columns[0].NumDistinct != int64(len(names)) {
		t.Fatalf("expected %d distinct ids, got %d", len(names), stats.Columns[0].NumDistinct)
	}
	if stats.Columns[0].Min != 0 || stats.Columns[0].Max != 3 {
		t.Fatalf("expected min=0 max=3, got min=%d max=%d", stats.Columns[0].Min, stats.Columns[0].Max)
	}
}
