// Package codec provides typed, big-endian reads and writes at an
// explicit byte offset within a single pinned page, adapted from the
// byte-offset accessor style of storage/access/table_page.go
// (GetTupleSize/SetTupleSize/Copy).
package codec

import (
	"encoding/binary"
	"math"

	"github.com/waldb/waldb/errors"
)

func ReadByte(buf []byte, off int) byte     { return buf[off] }
func WriteByte(buf []byte, off int, v byte) { buf[off] = v }

func ReadBool(buf []byte, off int) bool { return buf[off] != 0 }
func WriteBool(buf []byte, off int, v bool) {
	if v {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
}

func ReadShort(buf []byte, off int) uint16 {
	return binary.BigEndian.Uint16(buf[off : off+2])
}
func WriteShort(buf []byte, off int, v uint16) {
	binary.BigEndian.PutUint16(buf[off:off+2], v)
}

func ReadInt(buf []byte, off int) uint32 {
	return binary.BigEndian.Uint32(buf[off : off+4])
}
func WriteInt(buf []byte, off int, v uint32) {
	binary.BigEndian.PutUint32(buf[off:off+4], v)
}

func ReadLong(buf []byte, off int) uint64 {
	return binary.BigEndian.Uint64(buf[off : off+8])
}
func WriteLong(buf []byte, off int, v uint64) {
	binary.BigEndian.PutUint64(buf[off:off+8], v)
}

func ReadFloat(buf []byte, off int) float32 {
	return math.Float32frombits(ReadInt(buf, off))
}
func WriteFloat(buf []byte, off int, v float32) {
	WriteInt(buf, off, math.Float32bits(v))
}

func ReadDouble(buf []byte, off int) float64 {
	return math.Float64frombits(ReadLong(buf, off))
}
func WriteDouble(buf []byte, off int, v float64) {
	WriteLong(buf, off, math.Float64bits(v))
}

// VARSTRING255 is a 1-byte length prefix, US-ASCII string up to 255
// bytes long.
func ReadVarString255(buf []byte, off int) (string, int) {
	n := int(buf[off])
	s := string(buf[off+1 : off+1+n])
	return s, 1 + n
}

func WriteVarString255(buf []byte, off int, s string) (int, error) {
	if len(s) > 255 {
		return 0, errors.DataFormat
	}
	buf[off] = byte(len(s))
	copy(buf[off+1:off+1+len(s)], s)
	return 1 + len(s), nil
}

// VARSTRING65535 is a 2-byte length prefix string up to 65535 bytes.
func ReadVarString65535(buf []byte, off int) (string, int) {
	n := int(ReadShort(buf, off))
	s := string(buf[off+2 : off+2+n])
	return s, 2 + n
}

func WriteVarString65535(buf []byte, off int, s string) (int, error) {
	if len(s) > 65535 {
		return 0, errors.DataFormat
	}
	WriteShort(buf, off, uint16(len(s)))
	copy(buf[off+2:off+2+len(s)], s)
	return 2 + len(s), nil
}
