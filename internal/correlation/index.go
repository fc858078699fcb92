package correlation

import (
	"sort"
	"sync"
)

// Index maps correlation keys to the stable ids of console entries that
// mention them.
type Index struct {
	mu    sync.RWMutex
	byKey map[Key]map[int64]bool
	byID  map[int64][]Key
}

func NewIndex() *Index {
	return &Index{
		byKey: make(map[Key]map[int64]bool),
		byID:  make(map[int64][]Key),
	}
}

// Add records that entry id mentions keys.
func (x *Index) Add(id int64, keys []Key) {
	if len(keys) == 0 {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, k := range keys {
		if x.byKey[k] == nil {
			x.byKey[k] = make(map[int64]bool)
		}
		x.byKey[k][id] = true
	}
	x.byID[id] = append(x.byID[id], keys...)
}

// Lookup returns the ascending ids of entries sharing any of keys.
func (x *Index) Lookup(keys []Key) []int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := make(map[int64]bool)
	var ids []int64
	for _, k := range keys {
		for id := range x.byKey[k] {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Forget drops ids, typically entries evicted from their collector.
func (x *Index) Forget(ids ...int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		for _, k := range x.byID[id] {
			delete(x.byKey[k], id)
			if len(x.byKey[k]) == 0 {
				delete(x.byKey, k)
			}
		}
		delete(x.byID, id)
	}
}

// Reset empties the index.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.byKey = make(map[Key]map[int64]bool)
	x.byID = make(map[int64][]Key)
}

// Len is the number of indexed entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}
