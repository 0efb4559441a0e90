// Package wal implements the write-ahead log manager: append,
// forward/backward scan, redo, and undo-with-CLR, adapted in shape
// from recovery/log_manager.go and recovery/log_recovery.go (a
// buffered AppendLogRecord and a Redo/Undo pair driven by an
// active-txn map), whose own Redo/Undo/DeserializeLogRecord bodies
// are stubbed in the retrieved source — the record format and both
// traversal directions below are new, grounded directly on spec §4.5
// rather than ported from teacher logic that was never implemented.
package wal

import (
	"github.com/notEpsilon/go-pair"

	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/types"
)

type RecordType byte

const (
	RecStart          RecordType = 1
	RecCommit         RecordType = 2
	RecAbort          RecordType = 3
	RecUpdate         RecordType = 4
	RecUpdateRedoOnly RecordType = 5
)

const (
	fixedSizeStart  = 6
	fixedSizeCommit = 12
)

// Segment is one changed byte range of a page diff: its (startIdx,
// size) pair plus the pre- and post-image bytes. The teacher's go.mod
// carries no pair type; go-pair is wired in here for exactly the
// (startIdx, size) position grounded on how other example repos in
// the pack use small generic value-pair libraries for coordinate-like
// data.
type Segment struct {
	Pos      pair.Pair[uint16, uint16] // (StartIdx, Size)
	OldBytes []byte
	NewBytes []byte
}

func NewSegment(startIdx, size uint16, oldBytes, newBytes []byte) Segment {
	return Segment{Pos: *pair.New(startIdx, size), OldBytes: oldBytes, NewBytes: newBytes}
}

func (s Segment) StartIdx() uint16 { return s.Pos.First }
func (s Segment) Size() uint16     { return s.Pos.Second }

// Record is the in-memory form of any WAL record.
type Record struct {
	Type     RecordType
	TxnID    types.TxnID
	PrevLSN  *types.LSN // nil for RecStart
	Filename string      // RecUpdate/RecUpdateRedoOnly only
	PageNo   uint16      // RecUpdate/RecUpdateRedoOnly only
	Segments []Segment   // RecUpdate/RecUpdateRedoOnly only
	LSN      types.LSN   // the record's own starting LSN, filled on read
}

// computeSegments finds the changed byte ranges between oldData and
// newData per spec §4.5: short identical runs (<=4 bytes) between
// changed regions are coalesced into the surrounding segment.
func computeSegments(oldData, newData []byte) []Segment {
	n := len(oldData)
	var segs []Segment
	i := 0
	for i < n {
		if oldData[i] == newData[i] {
			i++
			continue
		}
		start := i
		end := i + 1
		for end < n {
			if oldData[end] != newData[end] {
				end++
				continue
			}
			runEnd := end
			for runEnd < n && oldData[runEnd] == newData[runEnd] {
				runEnd++
			}
			runLen := runEnd - end
			if runLen <= 4 && runEnd < n {
				end = runEnd
				continue
			}
			break
		}
		segs = append(segs, NewSegment(
			uint16(start), uint16(end-start),
			cloneBytes(oldData[start:end]), cloneBytes(newData[start:end]),
		))
		i = end
	}
	return segs
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func sizeOfLSN() int { return 6 }

// recordSize reports the exact serialized length Serialize will
// produce for rec, needed up front to decide whether it fits in the
// current WAL file before writing it (the wraparound rule).
func recordSize(rec *Record) int {
	switch rec.Type {
	case RecStart:
		return fixedSizeStart
	case RecCommit, RecAbort:
		return fixedSizeCommit
	case RecUpdate, RecUpdateRedoOnly:
		size := 1 + 4 + sizeOfLSN() + (1 + len(rec.Filename)) + 2 + 2
		for _, s := range rec.Segments {
			size += 2 + 2
			if rec.Type == RecUpdate {
				size += len(s.OldBytes)
			}
			size += len(s.NewBytes)
		}
		size += 4 + 1 // recordStartOffset + trailing type
		return size
	}
	return 0
}

// Serialize builds the complete on-disk byte image of rec, whose
// first byte will land at startOffset within its WAL file — needed
// only by update records, which embed it so backward scans can locate
// their own start.
func Serialize(rec *Record, startOffset uint32) []byte {
	buf := make([]byte, recordSize(rec))
	off := 0
	writeByte := func(b byte) { buf[off] = b; off++ }
	writeLSN := func(l types.LSN) {
		codec.WriteShort(buf, off, l.FileNo)
		off += 2
		codec.WriteInt(buf, off, l.Offset)
		off += 4
	}

	switch rec.Type {
	case RecStart:
		writeByte(byte(RecStart))
		codec.WriteInt(buf, off, uint32(rec.TxnID))
		off += 4
		writeByte(byte(RecStart))
	case RecCommit, RecAbort:
		writeByte(byte(rec.Type))
		codec.WriteInt(buf, off, uint32(rec.TxnID))
		off += 4
		writeLSN(*rec.PrevLSN)
		writeByte(byte(rec.Type))
	case RecUpdate, RecUpdateRedoOnly:
		writeByte(byte(rec.Type))
		codec.WriteInt(buf, off, uint32(rec.TxnID))
		off += 4
		writeLSN(*rec.PrevLSN)
		n, _ := codec.WriteVarString255(buf, off, rec.Filename)
		off += n
		codec.WriteShort(buf, off, rec.PageNo)
		off += 2
		codec.WriteShort(buf, off, uint16(len(rec.Segments)))
		off += 2
		for _, s := range rec.Segments {
			codec.WriteShort(buf, off, s.StartIdx())
			off += 2
			codec.WriteShort(buf, off, s.Size())
			off += 2
			if rec.Type == RecUpdate {
				copy(buf[off:off+len(s.OldBytes)], s.OldBytes)
				off += len(s.OldBytes)
			}
			copy(buf[off:off+len(s.NewBytes)], s.NewBytes)
			off += len(s.NewBytes)
		}
		codec.WriteInt(buf, off, startOffset)
		off += 4
		writeByte(byte(rec.Type))
	}
	return buf
}

// DeserializeRecord forward-parses one record from r, returning the
// record and the number of bytes consumed.
func DeserializeRecord(r *codec.Reader) (*Record, int, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, 0, err
	}
	rec := &Record{Type: RecordType(typeByte)}
	n := 1

	switch rec.Type {
	case RecStart:
		txnID, err := r.ReadInt()
		if err != nil {
			return nil, 0, err
		}
		trailer, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		if RecordType(trailer) != RecStart {
			return nil, 0, errors.DataFormat
		}
		rec.TxnID = types.TxnID(txnID)
		n += 4 + 1
	case RecCommit, RecAbort:
		txnID, err := r.ReadInt()
		if err != nil {
			return nil, 0, err
		}
		lsn, consumed, err := readLSN(r)
		if err != nil {
			return nil, 0, err
		}
		trailer, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		if RecordType(trailer) != rec.Type {
			return nil, 0, errors.DataFormat
		}
		rec.TxnID = types.TxnID(txnID)
		rec.PrevLSN = &lsn
		n += 4 + consumed + 1
	case RecUpdate, RecUpdateRedoOnly:
		txnID, err := r.ReadInt()
		if err != nil {
			return nil, 0, err
		}
		lsn, consumed, err := readLSN(r)
		if err != nil {
			return nil, 0, err
		}
		n += 4 + consumed
		fname, err := r.ReadVarString255()
		if err != nil {
			return nil, 0, err
		}
		n += 1 + len(fname)
		pageNo, err := r.ReadShort()
		if err != nil {
			return nil, 0, err
		}
		n += 2
		numSegs, err := r.ReadShort()
		if err != nil {
			return nil, 0, err
		}
		n += 2
		segs := make([]Segment, numSegs)
		for i := 0; i < int(numSegs); i++ {
			startIdx, err := r.ReadShort()
			if err != nil {
				return nil, 0, err
			}
			size, err := r.ReadShort()
			if err != nil {
				return nil, 0, err
			}
			n += 4
			var oldBytes []byte
			if rec.Type == RecUpdate {
				oldBytes, err = r.ReadBytes(int(size))
				if err != nil {
					return nil, 0, err
				}
				n += int(size)
			}
			newBytes, err := r.ReadBytes(int(size))
			if err != nil {
				return nil, 0, err
			}
			n += int(size)
			segs[i] = NewSegment(startIdx, size, oldBytes, newBytes)
		}
		if _, err := r.ReadInt(); err != nil { // recordStartOffset, unused on forward parse
			return nil, 0, err
		}
		n += 4
		trailer, err := r.ReadByte()
		if err != nil {
			return nil, 0, err
		}
		if RecordType(trailer) != rec.Type {
			return nil, 0, errors.DataFormat
		}
		n += 1

		rec.TxnID = types.TxnID(txnID)
		rec.PrevLSN = &lsn
		rec.Filename = fname
		rec.PageNo = pageNo
		rec.Segments = segs
	default:
		return nil, 0, errors.DataFormat
	}
	return rec, n, nil
}

func readLSN(r *codec.Reader) (types.LSN, int, error) {
	fileNo, err := r.ReadShort()
	if err != nil {
		return types.LSN{}, 0, err
	}
	offset, err := r.ReadInt()
	if err != nil {
		return types.LSN{}, 0, err
	}
	return types.NewLSN(fileNo, offset), 6, nil
}
