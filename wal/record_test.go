package wal

import (
	"bytes"
	"testing"

	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

type noopForcer struct{}

func (noopForcer) ForceWAL(types.LSN) error { return nil }

func newTestPool(t *testing.T) (*file.Manager, *buffer.Pool) {
	t.Helper()
	fm := file.NewManager(true)
	pool := buffer.NewPool(32, fm, noopForcer{})
	return fm, pool
}

func TestComputeSegmentsCoalescesShortGaps(t *testing.T) {
	old := []byte("aaaaXaaaaYaaaa")
	neu := []byte("aaaaZaaaaWaaaa")
	segs := computeSegments(old, neu)
	if len(segs) != 1 {
		t.Fatalf("expected the two one-byte diffs separated by 4 identical bytes to coalesce into one segment, got %d", len(segs))
	}
}

func TestComputeSegmentsSplitsLongGaps(t *testing.T) {
	old := []byte("XaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaY")
	neu := []byte("ZaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaW")
	segs := computeSegments(old, neu)
	if len(segs) != 2 {
		t.Fatalf("expected a >4-byte identical run to keep segments separate, got %d", len(segs))
	}
}

func TestRecordRoundTripAllTypes(t *testing.T) {
	fm, pool := newTestPool(t)
	f, err := fm.Create("rt.wal", file.TypeWALLog, 512)
	if err != nil {
		t.Fatal(err)
	}

	prev := types.NewLSN(0, 6)
	cases := []*Record{
		{Type: RecStart, TxnID: 1},
		{Type: RecCommit, TxnID: 1, PrevLSN: &prev},
		{Type: RecAbort, TxnID: 1, PrevLSN: &prev},
		{
			Type: RecUpdate, TxnID: 2, PrevLSN: &prev,
			Filename: "t1.heap", PageNo: 3,
			Segments: []Segment{NewSegment(10, 4, []byte{1, 2, 3, 4}, []byte{5, 6, 7, 8})},
		},
		{
			Type: RecUpdateRedoOnly, TxnID: 2, PrevLSN: &prev,
			Filename: "t1.heap", PageNo: 3,
			Segments: []Segment{NewSegment(10, 4, nil, []byte{5, 6, 7, 8})},
		},
	}

	for _, rec := range cases {
		blob := Serialize(rec, 100)
		w, err := codec.NewExtendingWriter(pool, f, 0, 6)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteBytes(blob); err != nil {
			t.Fatal(err)
		}
		w.Close()

		r, err := codec.NewReader(pool, f, 0, 6)
		if err != nil {
			t.Fatal(err)
		}
		got, n, err := DeserializeRecord(r)
		r.Close()
		if err != nil {
			t.Fatalf("type %d: %v", rec.Type, err)
		}
		if n != len(blob) {
			t.Fatalf("type %d: consumed %d, expected %d", rec.Type, n, len(blob))
		}
		if got.Type != rec.Type || got.TxnID != rec.TxnID {
			t.Fatalf("type %d: mismatch on round trip", rec.Type)
		}
		for i, seg := range got.Segments {
			if !bytes.Equal(seg.NewBytes, rec.Segments[i].NewBytes) {
				t.Fatalf("type %d: segment %d NewBytes mismatch", rec.Type, i)
			}
		}
	}
}

func TestBackwardScanFindsRecordStart(t *testing.T) {
	fm, pool := newTestPool(t)
	f, err := fm.Create("bw.wal", file.TypeWALLog, 512)
	if err != nil {
		t.Fatal(err)
	}

	rec := &Record{Type: RecStart, TxnID: 7}
	blob := Serialize(rec, 6)
	w, err := codec.NewExtendingWriter(pool, f, 0, 6)
	if err != nil {
		t.Fatal(err)
	}
	w.WriteBytes(blob)
	w.Close()

	m := &Manager{pageSize: 512, files: map[uint16]*file.DBFile{0: f}, fileMgr: fm}
	typ, start, err := m.recordTypeAndStart(pool, f, uint32(6+len(blob)))
	if err != nil {
		t.Fatal(err)
	}
	if typ != RecStart || start != 6 {
		t.Fatalf("expected (RecStart, 6), got (%d, %d)", typ, start)
	}
}
