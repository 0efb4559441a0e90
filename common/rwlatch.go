// this code is adapted from https://github.com/pzhzqt/goostub
// there is license and copyright notice in licenses/goostub dir

package common

import (
	"github.com/sasha-s/go-deadlock"
)

type ReaderWriterLatch interface {
	WLock()
	WUnlock()
	RLock()
	RUnlock()
}

type readerWriterLatch struct {
	mutex deadlock.RWMutex
}

// NewRWLatch returns a latch backed by go-deadlock, so any lock-ordering
// cycle across the buffer pool, WAL manager and transaction manager panics
// with the offending goroutine stacks instead of hanging.
func NewRWLatch() ReaderWriterLatch {
	return &readerWriterLatch{}
}

func (l *readerWriterLatch) WLock()   { l.mutex.Lock() }
func (l *readerWriterLatch) WUnlock() { l.mutex.Unlock() }
func (l *readerWriterLatch) RLock()   { l.mutex.RLock() }
func (l *readerWriterLatch) RUnlock() { l.mutex.RUnlock() }

// NewMutex returns a plain mutual-exclusion lock, also go-deadlock backed,
// for call sites that never need the reader path.
func NewMutex() *deadlock.Mutex {
	return &deadlock.Mutex{}
}
