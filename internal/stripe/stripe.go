// Package stripe provides a fixed set of read/write locks addressed by key.
package stripe

import (
	"hash/fnv"
	"sync"
)

const DefaultStripes = 128

// Locks hashes keys onto a power-of-two number of RW mutexes.
// Whole-set operations take every stripe in index order so they never
// deadlock against each other.
type Locks struct {
	mask    uint32
	stripes []sync.RWMutex
}

// New rounds n up to a power of two; n <= 0 means DefaultStripes.
func New(n int) *Locks {
	if n <= 0 {
		n = DefaultStripes
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return &Locks{mask: uint32(size - 1), stripes: make([]sync.RWMutex, size)}
}

func (l *Locks) Len() int { return len(l.stripes) }

// For returns the stripe guarding key.
func (l *Locks) For(key string) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.stripes[h.Sum32()&l.mask]
}

func (l *Locks) ReadLock(key string) func() {
	m := l.For(key)
	m.RLock()
	return m.RUnlock
}

func (l *Locks) WriteLock(key string) func() {
	m := l.For(key)
	m.Lock()
	return m.Unlock
}

// TryWriteLock takes key's stripe only if it is free right now.
func (l *Locks) TryWriteLock(key string) (func(), bool) {
	m := l.For(key)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

func (l *Locks) ReadLockAll() func() {
	for i := range l.stripes {
		l.stripes[i].RLock()
	}
	return func() {
		for i := len(l.stripes) - 1; i >= 0; i-- {
			l.stripes[i].RUnlock()
		}
	}
}

func (l *Locks) WriteLockAll() func() {
	for i := range l.stripes {
		l.stripes[i].Lock()
	}
	return func() {
		for i := len(l.stripes) - 1; i >= 0; i-- {
			l.stripes[i].Unlock()
		}
	}
}
