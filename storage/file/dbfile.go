// this code is adapted from storage/disk/disk_manager_impl.go

package file

import (
	"math/bits"
	"sync"

	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/errors"
)

// DBFile is a typed, page-addressed file. Page 0 of every DBFile
// encodes, in its first two bytes, the file's Type and log2(PageSize)
// so the file can self-identify on Open.
type DBFile struct {
	Path     string
	Type     Type
	PageSize int

	device BlockDevice
}

func isValidPageSize(size int) bool {
	if size < common.MinPageSize || size > common.MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// NumPages reports how many pages currently exist in the file,
// derived from the device's extent rather than cached separately so
// it can never drift from the backing store.
func (f *DBFile) NumPages() (uint32, error) {
	size, err := f.device.Size()
	if err != nil {
		return 0, errors.IO
	}
	if f.PageSize == 0 {
		return 0, nil
	}
	return uint32(size / int64(f.PageSize)), nil
}

func (f *DBFile) Close() error {
	return f.device.Close()
}

// Manager creates and opens DBFiles, choosing a real or in-memory
// BlockDevice per the useMemDevices flag set at construction (tests
// use the in-memory form exclusively, grounded on the teacher's own
// virtual disk manager used the same way).
type Manager struct {
	useMemDevices bool
	mu            sync.Mutex
	memDevices    map[string]BlockDevice
}

func NewManager(useMemDevices bool) *Manager {
	return &Manager{useMemDevices: useMemDevices, memDevices: make(map[string]BlockDevice)}
}

// newDevice returns the BlockDevice for path, creating it for the
// in-memory case or opening/creating the OS file for the real case.
// existed reports whether the path already had content before this
// call, mirroring os.Stat's role in the real path.
func (m *Manager) newDevice(path string) (device BlockDevice, existed bool, err error) {
	if m.useMemDevices {
		m.mu.Lock()
		defer m.mu.Unlock()
		if d, ok := m.memDevices[path]; ok {
			return d, true, nil
		}
		d := newMemBlockDevice()
		m.memDevices[path] = d
		return d, false, nil
	}
	return openOSBlockDevice(path)
}

// Create makes a new file of the given type and page size, writing
// its self-describing page 0 header.
func (m *Manager) Create(path string, ftype Type, pageSize int) (*DBFile, error) {
	if !isValidPageSize(pageSize) {
		return nil, errors.DataFormat
	}
	device, _, err := m.newDevice(path)
	if err != nil {
		return nil, errors.IO
	}
	f := &DBFile{Path: path, Type: ftype, PageSize: pageSize, device: device}

	header := make([]byte, pageSize)
	header[common.OffsetFileType] = byte(ftype)
	header[common.OffsetPageSizeExp] = byte(bits.TrailingZeros(uint(pageSize)))
	if _, err := device.WriteAt(header, 0); err != nil {
		return nil, errors.IO
	}
	if err := device.Sync(); err != nil {
		return nil, errors.IO
	}
	return f, nil
}

// Open opens an existing file and determines its type/page size from
// its page 0 header. Returns errors.NotFound if the path does not
// already exist. If expectType is not TypeInvalid, a mismatch returns
// errors.TypeMismatch.
func (m *Manager) Open(path string, expectType Type) (*DBFile, error) {
	device, existed, err := m.newDevice(path)
	if err != nil {
		return nil, errors.IO
	}
	if !existed {
		device.Close()
		if m.useMemDevices {
			m.mu.Lock()
			delete(m.memDevices, path)
			m.mu.Unlock()
		}
		return nil, errors.NotFound
	}

	header := make([]byte, common.DBFileHeaderSize)
	if _, err := device.ReadAt(header, 0); err != nil {
		device.Close()
		return nil, errors.IO
	}
	ftype := Type(header[common.OffsetFileType])
	pageSize := 1 << header[common.OffsetPageSizeExp]
	if !isValidPageSize(pageSize) {
		device.Close()
		return nil, errors.DataFormat
	}
	if expectType != TypeInvalid && ftype != expectType {
		device.Close()
		return nil, errors.TypeMismatch
	}
	return &DBFile{Path: path, Type: ftype, PageSize: pageSize, device: device}, nil
}

// LoadPage reads page pageNo into a freshly allocated PageSize buffer.
// Reading past the current end of file returns a zero-filled page; if
// createIfPast is true, the zero page is written so the file is
// extended to include it (and future reads of it no longer need
// createIfPast); the write is not synced.
func (m *Manager) LoadPage(f *DBFile, pageNo uint32, createIfPast bool) ([]byte, error) {
	buf := make([]byte, f.PageSize)
	offset := int64(pageNo) * int64(f.PageSize)

	numPages, err := f.NumPages()
	if err != nil {
		return nil, err
	}
	if pageNo >= numPages {
		if createIfPast {
			if err := m.SavePage(f, pageNo, buf); err != nil {
				return nil, err
			}
		}
		return buf, nil
	}

	if _, err := f.device.ReadAt(buf, offset); err != nil {
		return nil, errors.IO
	}
	return buf, nil
}

// SavePage writes data (must be exactly PageSize bytes) to pageNo,
// extending the file if pageNo is past the current end.
func (m *Manager) SavePage(f *DBFile, pageNo uint32, data []byte) error {
	if len(data) != f.PageSize {
		return errors.DataFormat
	}
	offset := int64(pageNo) * int64(f.PageSize)
	n, err := f.device.WriteAt(data, offset)
	if err != nil {
		return errors.IO
	}
	if n != f.PageSize {
		return errors.IO
	}
	return nil
}

// Sync durably flushes every byte written to f so far.
func (m *Manager) Sync(f *DBFile) error {
	if err := f.device.Sync(); err != nil {
		return errors.IO
	}
	return nil
}
