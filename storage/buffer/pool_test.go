package buffer

import (
	"bytes"
	"testing"

	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

type noopForcer struct{ forced []types.LSN }

func (f *noopForcer) ForceWAL(uptoLSN types.LSN) error {
	f.forced = append(f.forced, uptoLSN)
	return nil
}

func newTestPool(t *testing.T, capacity uint32) (*Pool, *file.DBFile, *noopForcer) {
	t.Helper()
	fm := file.NewManager(true)
	f, err := fm.Create("heap.db", file.TypeHeapData, 512)
	if err != nil {
		t.Fatal(err)
	}
	forcer := &noopForcer{}
	return NewPool(capacity, fm, forcer), f, forcer
}

func TestPinOnMissLoadsFromDisk(t *testing.T) {
	pool, f, _ := newTestPool(t, 4)

	page, err := pool.Pin(f, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if page.PinCount != 1 {
		t.Fatalf("expected pin count 1, got %d", page.PinCount)
	}
	if page.File != f || page.PageNo != 0 {
		t.Fatal("unexpected page identity")
	}
}

func TestPinTwiceReturnsSamePageAndIncrementsRefcount(t *testing.T) {
	pool, f, _ := newTestPool(t, 4)

	p1, _ := pool.Pin(f, 1, true)
	p2, err := pool.Pin(f, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("expected identical cached page on second pin")
	}
	if p1.PinCount != 2 {
		t.Fatalf("expected pin count 2, got %d", p1.PinCount)
	}
}

func TestEvictionForcesWALBeforeWritingDirtyPage(t *testing.T) {
	pool, f, forcer := newTestPool(t, 1)

	page, _ := pool.Pin(f, 0, false)
	copy(page.Data, []byte("dirty"))
	lsn := types.NewLSN(0, 6)
	page.PageLSN = &lsn
	if err := pool.Unpin(page, true); err != nil {
		t.Fatal(err)
	}

	// Pinning a second page forces eviction of page 0, the pool's only frame.
	if _, err := pool.Pin(f, 1, true); err != nil {
		t.Fatal(err)
	}
	if len(forcer.forced) != 1 || !forcer.forced[0].Equals(lsn) {
		t.Fatalf("expected ForceWAL(%v), got %v", lsn, forcer.forced)
	}
}

func TestWriteAllFlushesEveryDirtyPage(t *testing.T) {
	pool, f, _ := newTestPool(t, 4)

	p0, _ := pool.Pin(f, 0, false)
	copy(p0.Data, bytes.Repeat([]byte{1}, len(p0.Data)))
	pool.Unpin(p0, true)

	p1, _ := pool.Pin(f, 1, true)
	copy(p1.Data, bytes.Repeat([]byte{2}, len(p1.Data)))
	pool.Unpin(p1, true)

	if err := pool.WriteAll(true); err != nil {
		t.Fatal(err)
	}
	if p0.Dirty || p1.Dirty {
		t.Fatal("expected both pages clean after WriteAll")
	}
}

func TestUnpinWithoutMatchingPinIsIllegalState(t *testing.T) {
	pool, f, _ := newTestPool(t, 4)
	page, _ := pool.Pin(f, 0, false)
	pool.Unpin(page, false)
	if err := pool.Unpin(page, false); err == nil {
		t.Fatal("expected error unpinning a page with zero refcount")
	}
}
