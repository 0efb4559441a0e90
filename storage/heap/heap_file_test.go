package heap

import (
	"testing"

	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

type noopForcer struct{}

func (noopForcer) ForceWAL(types.LSN) error { return nil }

type noopLogger struct{}

func (noopLogger) WriteUpdatePageRecord(*buffer.DBPage) error { return nil }

func newTestHeapFile(t *testing.T, pageSize int) *HeapFile {
	t.Helper()
	fm := file.NewManager(true)
	pool := buffer.NewPool(16, fm, noopForcer{})
	schema := &Schema{Columns: []Column{
		{Name: "id", Type: ColInt32},
		{Name: "name", Type: ColVarChar},
	}}
	hf, err := Create(fm, pool, "t1.heap", pageSize, schema)
	if err != nil {
		t.Fatal(err)
	}
	return hf
}

func row(id int32, name string) []Value {
	return []Value{Int32Value(id), StringValue(name)}
}

func TestInsertDeleteThenScanYieldsSurvivor(t *testing.T) {
	hf := newTestHeapFile(t, 512)
	lg := noopLogger{}

	rid1, err := hf.AddTuple(lg, row(1, "one"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := hf.AddTuple(lg, row(2, "two")); err != nil {
		t.Fatal(err)
	}
	if err := hf.DeleteTuple(lg, *rid1); err != nil {
		t.Fatal(err)
	}

	tup, err := hf.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup == nil {
		t.Fatal("expected one surviving tuple")
	}
	if tup.GetInt32(0) != 2 || tup.GetString(1) != "two" {
		t.Fatalf("unexpected survivor: %d %q", tup.GetInt32(0), tup.GetString(1))
	}
	next, err := hf.NextTuple(tup)
	if err != nil {
		t.Fatal(err)
	}
	if next != nil {
		t.Fatal("expected scan to end after one tuple")
	}
}

func TestUpdateTupleColumnInPlace(t *testing.T) {
	hf := newTestHeapFile(t, 512)
	lg := noopLogger{}

	rid, err := hf.AddTuple(lg, row(1, "short"))
	if err != nil {
		t.Fatal(err)
	}
	if err := hf.UpdateTuple(lg, *rid, 1, StringValue("a much longer replacement string")); err != nil {
		t.Fatal(err)
	}

	tup, err := hf.FirstTuple()
	if err != nil {
		t.Fatal(err)
	}
	if tup.GetString(1) != "a much longer replacement string" {
		t.Fatalf("got %q", tup.GetString(1))
	}
}

func TestUpdateTupleTooBigFailsWithPageFullOnUpdate(t *testing.T) {
	hf := newTestHeapFile(t, 512)
	lg := noopLogger{}

	rid, err := hf.AddTuple(lg, row(1, "x"))
	if err != nil {
		t.Fatal(err)
	}
	huge := make([]byte, 600)
	err = hf.UpdateTuple(lg, *rid, 1, StringValue(string(huge)))
	if err != errors.PageFullOnUpdate {
		t.Fatalf("expected PageFullOnUpdate for an oversized update, got %v", err)
	}
}

func TestAnalyzeAccuracy(t *testing.T) {
	hf := newTestHeapFile(t, 512)
	lg := noopLogger{}

	names := []string{"a", "a", "b"}
	for i, n := range names {
		if _, err := hf.AddTuple(lg, row(int32(i), n)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := hf.Analyze(lg)
	if err != nil {
		t.Fatal(err)
	}
	if stats.NumTuples != 3 {
		t.Fatalf("expected 3 tuples, got %d", stats.NumTuples)
	}
	if stats.Columns[0].NumDistinct != 3 {
		t.Fatalf("expected 3 distinct ids, got %d", stats.Columns[0].NumDistinct)
	}
	if stats.Columns[0].Min != 0 || stats.Columns[0].Max != 2 {
		t.Fatalf("expected min=0 max=2, got min=%d max=%d", stats.Columns[0].Min, stats.Columns[0].Max)
	}
}

func TestFreeListReuseAfterDelete(t *testing.T) {
	hf := newTestHeapFile(t, 512)
	lg := noopLogger{}

	var rids []types.RID
	for i := 0; i < 3; i++ {
		rid, err := hf.AddTuple(lg, row(int32(i), "abcdefgh"))
		if err != nil {
			t.Fatal(err)
		}
		rids = append(rids, *rid)
	}
	for _, rid := range rids {
		if err := hf.DeleteTuple(lg, rid); err != nil {
			t.Fatal(err)
		}
	}

	rid, err := hf.AddTuple(lg, row(99, "reuse-me"))
	if err != nil {
		t.Fatal(err)
	}
	if rid.PageNo > types.PageID(3) {
		t.Fatalf("expected insert to reuse a freed page, got page %d", rid.PageNo)
	}
}
