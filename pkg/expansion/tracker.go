// Package expansion tracks which directories are rendered open.
package expansion

import (
	"sort"
	"sync"
)

// Tracker is a set of expanded directory keys (full paths). It is
// independent of load state: a key may be expanded before the directory
// has any children.
type Tracker struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{keys: make(map[string]struct{})}
}

// Toggle flips membership of key and reports whether it is now expanded.
func (t *Tracker) Toggle(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[key]; ok {
		delete(t.keys, key)
		return false
	}
	t.keys[key] = struct{}{}
	return true
}

// IsExpanded reports whether key is in the set.
func (t *Tracker) IsExpanded(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.keys[key]
	return ok
}

// Keys returns the expanded keys in sorted order.
func (t *Tracker) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.keys))
	for k := range t.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of expanded keys.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.keys)
}
