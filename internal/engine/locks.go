package engine

import (
	"sync"

	"github.com/google/uuid"
)

// marketLocks serializes settlement operations per market id. Operations on
// distinct markets proceed concurrently; two operations on the same market
// never interleave between validation and commit.
type marketLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*marketLock
}

type marketLock struct {
	mu   sync.Mutex
	refs int
}

func newMarketLocks() *marketLocks {
	return &marketLocks{locks: make(map[uuid.UUID]*marketLock)}
}

// acquire blocks until the market's lock is held and returns the release
// function. Lock entries are reference counted and dropped when idle so the
// map does not grow with every market ever touched.
func (l *marketLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &marketLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
