package challenge

import "sync"

// keyedMutex hands out one read-write mutex per key. Admission and reward
// processing take the challenge key exclusively; verification takes it
// shared, so submissions for one challenge proceed in parallel with each
// other but never overlap reward processing. Entries are never evicted;
// the map grows with the number of distinct keys locked over the process
// lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.RWMutex)}
}

func (k *keyedMutex) get(key string) *sync.RWMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.RWMutex{}
		k.locks[key] = m
	}
	return m
}

func (k *keyedMutex) lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}

func (k *keyedMutex) rlock(key string) func() {
	m := k.get(key)
	m.RLock()
	return m.RUnlock
}
