package ecs

import (
	"sync"

	"github.com/kestrelworks/ecs/registry"
)

// typeLocks implements the coarse, per-component-type read/write discipline
// the scheduler relies on: a system writing T blocks every other system
// touching T; many readers of T may overlap. Per-type reader counts and
// writer flags are kept in maps keyed by type id, all guarded by one mutex.
type typeLocks struct {
	mu      sync.Mutex
	readers map[registry.TypeID]int
	writer  map[registry.TypeID]bool
}

func newTypeLocks() *typeLocks {
	return &typeLocks{
		readers: make(map[registry.TypeID]int),
		writer:  make(map[registry.TypeID]bool),
	}
}

// tryAcquire attempts to lock every type in reads for read and every type in
// writes for write, atomically: either all locks are granted or none are.
// Returns false (granting nothing) on conflict, leaving the caller to
// retry or fail the system's run for this tick.
func (l *typeLocks) tryAcquire(reads, writes []registry.TypeID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range writes {
		if l.writer[t] || l.readers[t] > 0 {
			return false
		}
	}
	for _, t := range reads {
		if l.writer[t] {
			return false
		}
	}
	for _, t := range writes {
		l.writer[t] = true
	}
	for _, t := range reads {
		l.readers[t]++
	}
	return true
}

func (l *typeLocks) release(reads, writes []registry.TypeID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range writes {
		delete(l.writer, t)
	}
	for _, t := range reads {
		if l.readers[t] > 0 {
			l.readers[t]--
			if l.readers[t] == 0 {
				delete(l.readers, t)
			}
		}
	}
}
