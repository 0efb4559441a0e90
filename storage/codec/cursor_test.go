package codec

import (
	"testing"

	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

type noopForcer struct{}

func (noopForcer) ForceWAL(types.LSN) error { return nil }

func newTestPool(t *testing.T, pageSize int) (*buffer.Pool, *file.DBFile) {
	t.Helper()
	fm := file.NewManager(true)
	f, err := fm.Create("wal.db", file.TypeWALLog, pageSize)
	if err != nil {
		t.Fatal(err)
	}
	return buffer.NewPool(4, fm, noopForcer{}), f
}

func TestCrossPageScalarWriteThenRead(t *testing.T) {
	pool, f := newTestPool(t, 512)

	w, err := NewExtendingWriter(pool, f, 0, 510)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteLong(0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(pool, f, 0, 510)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.ReadLong()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x0102030405060708 {
		t.Fatalf("got %x", got)
	}
	r.Close()
}

func TestExtendingWriterAllocatesNewPages(t *testing.T) {
	pool, f := newTestPool(t, 512)

	w, err := NewExtendingWriter(pool, f, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, 1100)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := w.WriteBytes(payload); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(pool, f, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := r.ReadBytes(len(payload))
	if err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}
