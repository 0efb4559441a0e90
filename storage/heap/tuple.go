// Tuple is specified only by capability set per spec §9 Design Notes
// ("Polymorphism of tuple implementations"): read column by index,
// know schema, know file pointer. Implemented here as a single tagged
// variant rather than an inheritance hierarchy — page-backed tuples
// keep the values decoded when the scan read them plus their RID, and
// hold no pin on the page, and literal tuples carry their values
// directly with no backing page at all.
package heap

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/codec"
	"github.com/waldb/waldb/types"
)

func fixedColumnSize(ct ColumnType) (size int, fixed bool) {
	switch ct {
	case ColInt32:
		return 4, true
	case ColInt64:
		return 8, true
	case ColFloat64:
		return 8, true
	case ColBool:
		return 1, true
	default:
		return 0, false
	}
}

func valueSize(ct ColumnType, v Value) int {
	if size, fixed := fixedColumnSize(ct); fixed {
		return size
	}
	return 2 + len(v.S)
}

func nullBitmapSize(numCols int) int { return (numCols + 7) / 8 }

func isNullBit(bitmap []byte, idx int) bool {
	return bitmap[idx/8]&(1<<uint(idx%8)) != 0
}

func setNullBit(bitmap []byte, idx int, isNull bool) {
	if isNull {
		bitmap[idx/8] |= 1 << uint(idx%8)
	} else {
		bitmap[idx/8] &^= 1 << uint(idx%8)
	}
}

// EncodedSize returns the on-disk size EncodeTuple would produce,
// without allocating, so callers can check page capacity first.
func EncodedSize(schema *Schema, values []Value) int {
	size := nullBitmapSize(schema.NumColumns())
	for i, v := range values {
		if v.Null {
			continue
		}
		size += valueSize(schema.Columns[i].Type, v)
	}
	return size
}

// EncodeTuple serializes values per schema: a leading null bitmap
// followed by each non-null column's bytes in schema order.
func EncodeTuple(schema *Schema, values []Value) ([]byte, error) {
	if len(values) != schema.NumColumns() {
		return nil, errors.IllegalState
	}
	buf := make([]byte, EncodedSize(schema, values))
	bmSize := nullBitmapSize(schema.NumColumns())
	off := bmSize
	for i, v := range values {
		if v.Null {
			setNullBit(buf[:bmSize], i, true)
			continue
		}
		switch schema.Columns[i].Type {
		case ColInt32:
			codec.WriteInt(buf, off, uint32(v.I32))
			off += 4
		case ColInt64:
			codec.WriteLong(buf, off, uint64(v.I64))
			off += 8
		case ColFloat64:
			codec.WriteDouble(buf, off, v.F64)
			off += 8
		case ColBool:
			codec.WriteBool(buf, off, v.B)
			off += 1
		case ColVarChar:
			n, err := codec.WriteVarString65535(buf, off, v.S)
			if err != nil {
				return nil, err
			}
			off += n
		}
	}
	return buf, nil
}

// DecodeTuple is EncodeTuple's inverse.
func DecodeTuple(schema *Schema, data []byte) ([]Value, error) {
	numCols := schema.NumColumns()
	bmSize := nullBitmapSize(numCols)
	if len(data) < bmSize {
		return nil, errors.DataFormat
	}
	values := make([]Value, numCols)
	off := bmSize
	for i := 0; i < numCols; i++ {
		if isNullBit(data[:bmSize], i) {
			values[i] = NullValue()
			continue
		}
		if off > len(data) {
			return nil, errors.DataFormat
		}
		switch schema.Columns[i].Type {
		case ColInt32:
			values[i] = Int32Value(int32(codec.ReadInt(data, off)))
			off += 4
		case ColInt64:
			values[i] = Int64Value(int64(codec.ReadLong(data, off)))
			off += 8
		case ColFloat64:
			values[i] = Float64Value(codec.ReadDouble(data, off))
			off += 8
		case ColBool:
			values[i] = BoolValue(codec.ReadBool(data, off))
			off += 1
		case ColVarChar:
			s, n := codec.ReadVarString65535(data, off)
			values[i] = StringValue(s)
			off += n
		}
	}
	return values, nil
}

// Tuple is the tagged variant: kindPage tuples carry their RID and
// the values decoded when they were read, and getters return those
// cached values without rereading the page; kindLiteral tuples carry
// values with no backing page.
type tupleKind int

const (
	kindPage tupleKind = iota
	kindLiteral
)

type Tuple struct {
	kind   tupleKind
	schema *Schema
	values []Value // populated for kindLiteral; cached last-read for kindPage
	rid    types.RID
}

func NewLiteralTuple(schema *Schema, values []Value) *Tuple {
	return &Tuple{kind: kindLiteral, schema: schema, values: values}
}

func newPageTuple(schema *Schema, rid types.RID, values []Value) *Tuple {
	return &Tuple{kind: kindPage, schema: schema, rid: rid, values: values}
}

func (t *Tuple) Schema() *Schema { return t.schema }

// RID returns the tuple's location, or nil for a literal tuple that
// is not backed by any page.
func (t *Tuple) RID() *types.RID {
	if t.kind != kindPage {
		return nil
	}
	r := t.rid
	return &r
}

func (t *Tuple) IsNull(col int) bool    { return t.values[col].Null }
func (t *Tuple) GetInt32(col int) int32 { return t.values[col].I32 }
func (t *Tuple) GetInt64(col int) int64 { return t.values[col].I64 }
func (t *Tuple) GetFloat64(col int) float64 { return t.values[col].F64 }
func (t *Tuple) GetBool(col int) bool   { return t.values[col].B }
func (t *Tuple) GetString(col int) string { return t.values[col].S }
func (t *Tuple) Values() []Value        { return t.values }
