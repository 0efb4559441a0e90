// Package codec also provides a sequential byte-stream cursor over a
// DBFile, generalized from the single-page-pinned-at-a-time traversal
// idiom of storage/access/table_heap_iterator.go to byte granularity:
// the teacher has no streaming cursor of its own (table pages are
// always addressed by RID), so this is new relative to the teacher.
package codec

import (
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/buffer"
	"github.com/waldb/waldb/storage/file"
)

// Reader streams bytes out of f starting at (pageNo, offset), keeping
// exactly one page pinned at a time and unpinning as it advances.
// Close unpins the current page; it is the only safe way to release
// the last page a Reader touched.
type Reader struct {
	pool   *buffer.Pool
	file   *file.DBFile
	pageNo uint32
	offset int
	page   *buffer.DBPage
}

func NewReader(pool *buffer.Pool, f *file.DBFile, startPageNo uint32, startOffset int) (*Reader, error) {
	page, err := pool.Pin(f, startPageNo, false)
	if err != nil {
		return nil, err
	}
	return &Reader{pool: pool, file: f, pageNo: startPageNo, offset: startOffset, page: page}, nil
}

// Position reports the cursor's current (pageNo, offset).
func (r *Reader) Position() (uint32, int) { return r.pageNo, r.offset }

func (r *Reader) advancePage() error {
	if err := r.pool.Unpin(r.page, false); err != nil {
		return err
	}
	r.pageNo++
	r.offset = 0
	page, err := r.pool.Pin(r.file, r.pageNo, false)
	if err != nil {
		return err
	}
	r.page = page
	return nil
}

// ReadBytes returns the next n bytes, splitting the read across a
// page boundary via a small staging buffer when n straddles one.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	out := make([]byte, n)
	read := 0
	for read < n {
		avail := len(r.page.Data) - r.offset
		if avail <= 0 {
			if err := r.advancePage(); err != nil {
				return nil, err
			}
			continue
		}
		take := n - read
		if take > avail {
			take = avail
		}
		copy(out[read:read+take], r.page.Data[r.offset:r.offset+take])
		r.offset += take
		read += take
	}
	return out, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func (r *Reader) ReadShort() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return ReadShort(b, 0), nil
}

func (r *Reader) ReadInt() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return ReadInt(b, 0), nil
}

func (r *Reader) ReadLong() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return ReadLong(b, 0), nil
}

func (r *Reader) ReadFloat() (float32, error) {
	v, err := r.ReadInt()
	if err != nil {
		return 0, err
	}
	return ReadFloat(uint32ToBytes(v), 0), nil
}

func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadLong()
	if err != nil {
		return 0, err
	}
	return ReadDouble(uint64ToBytes(v), 0), nil
}

func (r *Reader) ReadVarString255() (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) ReadVarString65535() (string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) Close() error {
	if r.page == nil {
		return nil
	}
	err := r.pool.Unpin(r.page, false)
	r.page = nil
	return err
}

// Writer streams bytes into f starting at (pageNo, offset). In
// extending mode it allocates new pages as it crosses the current end
// of file; in non-extending (in-place overwrite) mode crossing the
// end of file is an error. These are the cursor's two distinct
// constructor modes (spec's "extendFile dual-mode writer" redesign:
// two constructors, not a mutable flag).
type Writer struct {
	pool      *buffer.Pool
	file      *file.DBFile
	pageNo    uint32
	offset    int
	page      *buffer.DBPage
	extending bool
}

func NewWriter(pool *buffer.Pool, f *file.DBFile, startPageNo uint32, startOffset int) (*Writer, error) {
	page, err := pool.Pin(f, startPageNo, false)
	if err != nil {
		return nil, err
	}
	return &Writer{pool: pool, file: f, pageNo: startPageNo, offset: startOffset, page: page}, nil
}

func NewExtendingWriter(pool *buffer.Pool, f *file.DBFile, startPageNo uint32, startOffset int) (*Writer, error) {
	page, err := pool.Pin(f, startPageNo, true)
	if err != nil {
		return nil, err
	}
	return &Writer{pool: pool, file: f, pageNo: startPageNo, offset: startOffset, page: page, extending: true}, nil
}

func (w *Writer) Position() (uint32, int) { return w.pageNo, w.offset }

func (w *Writer) advancePage() error {
	if err := w.pool.Unpin(w.page, true); err != nil {
		return err
	}
	w.pageNo++
	w.offset = 0
	if !w.extending {
		numPages, err := w.file.NumPages()
		if err != nil {
			w.page = nil
			return err
		}
		if w.pageNo >= numPages {
			w.page = nil
			return errors.NotFound
		}
	}
	page, err := w.pool.Pin(w.file, w.pageNo, w.extending)
	if err != nil {
		return err
	}
	w.page = page
	return nil
}

func (w *Writer) WriteBytes(data []byte) error {
	written := 0
	for written < len(data) {
		avail := len(w.page.Data) - w.offset
		if avail <= 0 {
			if err := w.advancePage(); err != nil {
				return err
			}
			continue
		}
		take := len(data) - written
		if take > avail {
			take = avail
		}
		copy(w.page.Data[w.offset:w.offset+take], data[written:written+take])
		w.offset += take
		written += take
	}
	return nil
}

func (w *Writer) WriteByte(v byte) error  { return w.WriteBytes([]byte{v}) }
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

func (w *Writer) WriteShort(v uint16) error {
	b := make([]byte, 2)
	WriteShort(b, 0, v)
	return w.WriteBytes(b)
}

func (w *Writer) WriteInt(v uint32) error {
	b := make([]byte, 4)
	WriteInt(b, 0, v)
	return w.WriteBytes(b)
}

func (w *Writer) WriteLong(v uint64) error {
	b := make([]byte, 8)
	WriteLong(b, 0, v)
	return w.WriteBytes(b)
}

func (w *Writer) WriteVarString255(s string) error {
	if len(s) > 255 {
		return errors.DataFormat
	}
	if err := w.WriteByte(byte(len(s))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(s))
}

func (w *Writer) WriteVarString65535(s string) error {
	if len(s) > 65535 {
		return errors.DataFormat
	}
	if err := w.WriteShort(uint16(len(s))); err != nil {
		return err
	}
	return w.WriteBytes([]byte(s))
}

func (w *Writer) Close() error {
	if w.page == nil {
		return nil
	}
	err := w.pool.Unpin(w.page, true)
	w.page = nil
	return err
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	WriteInt(b, 0, v)
	return b
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	WriteLong(b, 0, v)
	return b
}
