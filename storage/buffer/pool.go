// this code is adapted from storage/buffer/buffer_pool_manager.go

package buffer

import (
	"github.com/waldb/waldb/common"
	"github.com/waldb/waldb/errors"
	"github.com/waldb/waldb/storage/file"
	"github.com/waldb/waldb/types"
)

// WALForcer is the seam the pool uses to enforce the WAL rule without
// importing the transaction manager directly (txn.Manager would need
// to import buffer for recovery's writeAll, which would cycle).
type WALForcer interface {
	ForceWAL(uptoLSN types.LSN) error
}

type pageKey struct {
	file   *file.DBFile
	pageNo uint32
}

// Pool is a bounded cache of (file, pageNo) -> DBPage. Eviction of a
// dirty page always forces the WAL through that page's pageLSN first,
// the single chokepoint where the WAL rule (spec §5) is enforced.
type Pool struct {
	latch    common.ReaderWriterLatch
	fileMgr  *file.Manager
	forcer   WALForcer
	replacer *ClockReplacer

	capacity  uint32
	frames    []*DBPage
	pageTable map[pageKey]FrameID
	freeList  []FrameID
}

// SetForcer rebinds the pool's WALForcer, for the construction order
// the transaction manager requires: the pool must exist before the
// WAL manager can be built, and the transaction manager (the real
// forcer) is not constructed until after that, so callers wire a nil
// forcer in at NewPool and fill it in once the transaction manager
// exists.
func (p *Pool) SetForcer(forcer WALForcer) {
	p.latch.WLock()
	defer p.latch.WUnlock()
	p.forcer = forcer
}

func NewPool(capacity uint32, fileMgr *file.Manager, forcer WALForcer) *Pool {
	free := make([]FrameID, capacity)
	for i := range free {
		free[i] = FrameID(i)
	}
	return &Pool{
		latch:     common.NewRWLatch(),
		fileMgr:   fileMgr,
		forcer:    forcer,
		replacer:  NewClockReplacer(capacity),
		capacity:  capacity,
		frames:    make([]*DBPage, capacity),
		pageTable: make(map[pageKey]FrameID),
		freeList:  free,
	}
}

// Pin returns the page at (f, pageNo), loading it from disk on a
// cache miss. createIfPast extends f when pageNo is past its current
// end, the same semantics as file.Manager.LoadPage.
func (p *Pool) Pin(f *file.DBFile, pageNo uint32, createIfPast bool) (*DBPage, error) {
	p.latch.WLock()
	defer p.latch.WUnlock()

	key := pageKey{f, pageNo}
	if fid, ok := p.pageTable[key]; ok {
		page := p.frames[fid]
		page.PinCount++
		p.replacer.Pin(fid)
		return page, nil
	}

	fid, err := p.allocFrame()
	if err != nil {
		return nil, err
	}

	data, err := p.fileMgr.LoadPage(f, pageNo, createIfPast)
	if err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, err
	}
	old := make([]byte, len(data))
	copy(old, data)

	page := &DBPage{File: f, PageNo: pageNo, Data: data, OldData: old, PinCount: 1}
	p.frames[fid] = page
	p.pageTable[key] = fid
	p.replacer.Pin(fid)
	return page, nil
}

// Unpin decrements a page's refcount. isDirty sticks: once a page has
// been marked dirty it stays dirty until a flush clears it.
func (p *Pool) Unpin(page *DBPage, isDirty bool) error {
	p.latch.WLock()
	defer p.latch.WUnlock()

	if isDirty {
		page.Dirty = true
	}
	if page.PinCount == 0 {
		return errors.IllegalState
	}
	page.PinCount--
	if page.PinCount == 0 {
		fid := p.pageTable[pageKey{page.File, page.PageNo}]
		p.replacer.Unpin(fid)
	}
	return nil
}

// allocFrame returns a free frame, evicting the replacer's victim if
// the pool has none free. Caller must hold the write latch.
func (p *Pool) allocFrame() (FrameID, error) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, nil
	}

	victim := p.replacer.Victim()
	if victim == nil {
		return 0, errors.IllegalState
	}
	fid := *victim
	old := p.frames[fid]
	if old != nil {
		if err := p.flushLocked(old); err != nil {
			return 0, err
		}
		delete(p.pageTable, pageKey{old.File, old.PageNo})
	}
	return fid, nil
}

// flushLocked forces the WAL through page's pageLSN, then writes it
// and clears the dirty flag. Caller must hold the write latch.
func (p *Pool) flushLocked(page *DBPage) error {
	if !page.Dirty {
		return nil
	}
	if page.PageLSN != nil {
		if err := p.forcer.ForceWAL(*page.PageLSN); err != nil {
			return err
		}
	}
	if err := p.fileMgr.SavePage(page.File, page.PageNo, page.Data); err != nil {
		return err
	}
	page.Dirty = false
	page.ResyncOldData()
	return nil
}

// FlushPage forces and writes a single page if dirty.
func (p *Pool) FlushPage(page *DBPage) error {
	p.latch.WLock()
	defer p.latch.WUnlock()
	return p.flushLocked(page)
}

// FlushFile flushes every currently cached dirty page belonging to f,
// leaving pages of every other file untouched. The WAL manager uses
// this so forcing the WAL durable never also flushes unrelated dirty
// data pages still waiting on a later commit or eviction.
func (p *Pool) FlushFile(f *file.DBFile, sync bool) error {
	p.latch.WLock()
	defer p.latch.WUnlock()
	for _, page := range p.frames {
		if page == nil || page.File != f {
			continue
		}
		if err := p.flushLocked(page); err != nil {
			return err
		}
	}
	if sync {
		return p.fileMgr.Sync(f)
	}
	return nil
}

// WriteAll flushes every dirty page (WAL-forced first) and, if sync
// is true, fsyncs every file touched.
func (p *Pool) WriteAll(sync bool) error {
	p.latch.WLock()
	defer p.latch.WUnlock()

	synced := make(map[*file.DBFile]bool)
	for _, page := range p.frames {
		if page == nil {
			continue
		}
		if err := p.flushLocked(page); err != nil {
			return err
		}
		if sync && !synced[page.File] {
			if err := p.fileMgr.Sync(page.File); err != nil {
				return err
			}
			synced[page.File] = true
		}
	}
	return nil
}
