// this code is adapted from storage/disk/disk_manager_impl.go and
// storage/disk/virtual_disk_manager_impl.go

package file

import (
	"os"
	"sync"

	"github.com/dsnet/golib/memfile"
)

// BlockDevice is the block-aligned read/write/sync surface a DBFile is
// built on. osBlockDevice backs real files; memBlockDevice backs tests,
// grounded on the teacher's own use of an in-memory disk manager for
// exactly the same reason.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Sync() error
	Size() (int64, error)
	Close() error
}

type osBlockDevice struct {
	f *os.File
}

func openOSBlockDevice(path string) (BlockDevice, bool, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, false, err
	}
	return &osBlockDevice{f: f}, existed, nil
}

func (d *osBlockDevice) ReadAt(p []byte, off int64) (int, error)  { return d.f.ReadAt(p, off) }
func (d *osBlockDevice) WriteAt(p []byte, off int64) (int, error) { return d.f.WriteAt(p, off) }
func (d *osBlockDevice) Sync() error                              { return d.f.Sync() }
func (d *osBlockDevice) Close() error                             { return d.f.Close() }
func (d *osBlockDevice) Size() (int64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// memBlockDevice backs an in-memory DBFile for tests. memfile.File
// grows on WriteAt past its current length, mirroring os.File, but
// offers no Stat; size is tracked alongside it.
type memBlockDevice struct {
	mu   sync.Mutex
	mf   *memfile.File
	size int64
}

func newMemBlockDevice() BlockDevice {
	return &memBlockDevice{mf: memfile.New(nil)}
}

func (d *memBlockDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mf.ReadAt(p, off)
}

func (d *memBlockDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.mf.WriteAt(p, off)
	if end := off + int64(n); end > d.size {
		d.size = end
	}
	return n, err
}

func (d *memBlockDevice) Sync() error  { return nil }
func (d *memBlockDevice) Close() error { return nil }

func (d *memBlockDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size, nil
}
