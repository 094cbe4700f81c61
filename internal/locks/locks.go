package locks

import (
	"sort"
	"sync"
)

// Manager serializes access to shard keys. Each key maps to one mutex;
// at most one holder per key at a time. Entries are refcounted so the
// table does not grow without bound.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func NewManager() *Manager {
	return &Manager{locks: map[string]*entry{}}
}

// Acquire blocks until all keys are held and returns the release func.
// Keys are deduplicated and locked in lexicographic order so that two
// invocations needing overlapping key sets can never deadlock.
func (m *Manager) Acquire(keys []string) func() {
	ordered := dedupSorted(keys)
	entries := make([]*entry, len(ordered))
	for i, key := range ordered {
		entries[i] = m.ref(key)
		entries[i].mu.Lock()
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(ordered) - 1; i >= 0; i-- {
				entries[i].mu.Unlock()
				m.unref(ordered[i])
			}
		})
	}
}

func (m *Manager) ref(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Manager) unref(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}

func dedupSorted(keys []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
