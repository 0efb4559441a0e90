package file

import (
	"bytes"
	"testing"

	"github.com/waldb/waldb/errors"
)

func TestCreateWritesSelfDescribingHeader(t *testing.T) {
	m := NewManager(true)
	f, err := m.Create("heap.db", TypeHeapData, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != TypeHeapData || f.PageSize != 4096 {
		t.Fatalf("unexpected file attributes: %+v", f)
	}

	page0, err := m.LoadPage(f, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if page0[0] != byte(TypeHeapData) {
		t.Fatalf("expected type byte %d, got %d", TypeHeapData, page0[0])
	}
	if page0[1] != 12 { // log2(4096)
		t.Fatalf("expected page size exponent 12, got %d", page0[1])
	}
}

func TestOpenRediscoversTypeAndPageSize(t *testing.T) {
	m := NewManager(true)
	if _, err := m.Create("wal.db", TypeWALLog, 8192); err != nil {
		t.Fatal(err)
	}

	f, err := m.Open("wal.db", TypeWALLog)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != TypeWALLog || f.PageSize != 8192 {
		t.Fatalf("open did not rediscover attributes: %+v", f)
	}

	if _, err := m.Open("wal.db", TypeHeapData); err != errors.TypeMismatch {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestLoadPagePastEndReadsZeros(t *testing.T) {
	m := NewManager(true)
	f, err := m.Create("heap2.db", TypeHeapData, 512)
	if err != nil {
		t.Fatal(err)
	}

	page, err := m.LoadPage(f, 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(page, make([]byte, 512)) {
		t.Fatal("expected zero-filled page")
	}
	n, _ := f.NumPages()
	if n != 1 {
		t.Fatalf("non-extending read must not grow the file, got %d pages", n)
	}
}

func TestLoadPageCreateIfPastExtendsFile(t *testing.T) {
	m := NewManager(true)
	f, err := m.Create("heap3.db", TypeHeapData, 512)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.LoadPage(f, 3, true); err != nil {
		t.Fatal(err)
	}
	n, _ := f.NumPages()
	if n != 4 {
		t.Fatalf("expected 4 pages after create-if-past of page 3, got %d", n)
	}
}

func TestSavePageThenLoadRoundTrips(t *testing.T) {
	m := NewManager(true)
	f, err := m.Create("heap4.db", TypeHeapData, 512)
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte{0xAB}, 512)
	if err := m.SavePage(f, 1, data); err != nil {
		t.Fatal(err)
	}
	got, err := m.LoadPage(f, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round trip mismatch")
	}
}
