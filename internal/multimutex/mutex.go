package multimutex

import (
	"fmt"
	"sync"
)

// Mutex keeps track of a set of mutexes keyed by K, so that only one
// goroutine holds the mutex for a given key at a time.
type Mutex[K comparable] struct {
	// mutexes maps a key to its cntMutex. The counter tracks the holder
	// plus every waiter so the entry can be dropped once nobody needs it.
	mutexes map[K]*cntMutex

	// mapMtx guards the mutexes map.
	mapMtx sync.Mutex
}

type cntMutex struct {
	cnt int
	sync.Mutex
}

// New creates a new keyed Mutex.
func New[K comparable]() *Mutex[K] {
	return &Mutex[K]{
		mutexes: make(map[K]*cntMutex),
	}
}

// Lock locks the mutex for key, blocking until it is available.
func (m *Mutex[K]) Lock(key K) {
	m.mapMtx.Lock()
	mtx, ok := m.mutexes[key]
	if ok {
		mtx.cnt++
	} else {
		mtx = &cntMutex{cnt: 1}
		m.mutexes[key] = mtx
	}
	m.mapMtx.Unlock()

	mtx.Lock()
}

// Unlock unlocks the mutex for key. It is a run-time error if the mutex is
// not locked for key on entry.
func (m *Mutex[K]) Unlock(key K) {
	m.mapMtx.Lock()

	mtx, ok := m.mutexes[key]
	if !ok {
		m.mapMtx.Unlock()
		panic(fmt.Sprintf("double unlock for key %v", key))
	}

	mtx.cnt--
	if mtx.cnt == 0 {
		delete(m.mutexes, key)
	}
	m.mapMtx.Unlock()

	mtx.Unlock()
}

// len returns the number of keys currently held or waited on.
func (m *Mutex[K]) len() int {
	m.mapMtx.Lock()
	defer m.mapMtx.Unlock()

	return len(m.mutexes)
}
