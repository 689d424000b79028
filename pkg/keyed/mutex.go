// Package keyed provides per-key mutual exclusion. Used to serialize
// read-modify-write cycles on a single entity's records while leaving
// work on different entities fully parallel.
package keyed

import "sync"

// Mutex hands out one lock per key. Keys are never evicted; the expected
// key population (entities with live positions) is small and stable.
type Mutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

// NewMutex creates an empty keyed mutex.
func NewMutex[K comparable]() *Mutex[K] {
	return &Mutex[K]{locks: make(map[K]*sync.Mutex)}
}

// Lock acquires the lock for key, creating it on first use.
func (m *Mutex[K]) Lock(key K) {
	m.get(key).Lock()
}

// Unlock releases the lock for key. It panics if Lock was not called
// first, same as sync.Mutex.
func (m *Mutex[K]) Unlock(key K) {
	m.get(key).Unlock()
}

func (m *Mutex[K]) get(key K) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}
