package heap

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/codec"
)

// ColumnType is the minimal external-collaborator type vocabulary
// spec §6 requires of a Schema ("ordered column list with types").
type ColumnType byte

const (
	ColInt32 ColumnType = iota
	ColInt64
	ColFloat64
	ColBool
	ColVarChar
)

type Column struct {
	Name string
	Type ColumnType
}

// Schema is the ordered column list an external planner would supply.
type Schema struct {
	Columns []Column
}

func (s *Schema) NumColumns() int { return len(s.Columns) }

// Serialize/DeserializeSchema persist a Schema into the heap header
// page's schema-bytes region.
func (s *Schema) Serialize() []byte {
	buf := make([]byte, 2)
	codec.WriteShort(buf, 0, uint16(len(s.Columns)))
	for _, c := range s.Columns {
		col := make([]byte, 2)
		col[0] = byte(c.Type)
		nameBuf := make([]byte, 256)
		n, _ := codec.WriteVarString255(nameBuf, 0, c.Name)
		buf = append(buf, col[0])
		buf = append(buf, nameBuf[:n]...)
	}
	return buf
}

func DeserializeSchema(data []byte) (*Schema, error) {
	if len(data) < 2 {
		return nil, errors.DataFormat
	}
	numCols := int(codec.ReadShort(data, 0))
	off := 2
	cols := make([]Column, numCols)
	for i := 0; i < numCols; i++ {
		if off >= len(data) {
			return nil, errors.DataFormat
		}
		ct := ColumnType(data[off])
		off++
		name, n := codec.ReadVarString255(data, off)
		off += n
		cols[i] = Column{Name: name, Type: ct}
	}
	return &Schema{Columns: cols}, nil
}

// Value is a tagged-union column value; Null true means the other
// fields are meaningless for this value.
type Value struct {
	Null bool
	I32  int32
	I64  int64
	F64  float64
	B    bool
	S    string
}

func NullValue() Value             { return Value{Null: true} }
func Int32Value(v int32) Value     { return Value{I32: v} }
func Int64Value(v int64) Value     { return Value{I64: v} }
func Float64Value(v float64) Value { return Value{F64: v} }
func BoolValue(v bool) Value       { return Value{B: v} }
func StringValue(v string) Value   { return Value{S: v} }
