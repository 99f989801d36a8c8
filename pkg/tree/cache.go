package tree

import (
	"sync"

	"github.com/sly67/treedesk/pkg/models"
)

// Change is delivered to subscribers after every replacement.
type Change struct {
	Path    models.Path
	Version uint64
}

// Cache owns the known part of the workspace tree.
//
// The node sequence is only ever swapped for a new one built by
// ReplaceChildrenAt, so a slice returned by Get stays valid and unchanged
// after later updates.
type Cache struct {
	mu      sync.RWMutex
	nodes   []*models.Node
	version uint64
	loading bool
	subs    map[chan Change]struct{}
}

// NewCache returns an empty cache. Nothing is loaded until the root listing
// is merged.
func NewCache() *Cache {
	return &Cache{
		nodes: []*models.Node{},
		subs:  make(map[chan Change]struct{}),
	}
}

// Get returns the current root sequence. Callers must not modify it.
func (c *Cache) Get() []*models.Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodes
}

// Lookup resolves p in the current tree.
func (c *Cache) Lookup(p models.Path) (*models.Node, bool) {
	return Find(c.Get(), p)
}

// ReplaceChildrenAt merges a directory listing at p and returns the new
// root sequence.
func (c *Cache) ReplaceChildrenAt(p models.Path, children []*models.Node) []*models.Node {
	c.mu.Lock()
	c.nodes = ReplaceChildrenAt(c.nodes, p, children)
	c.version++
	nodes, change := c.nodes, Change{Path: p, Version: c.version}
	c.mu.Unlock()

	c.notify(change)
	return nodes
}

// Version increases on every replacement.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Loading reports the coarse, cache-wide loading flag.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// SetLoading sets the loading flag. Concurrent loads share it, so whichever
// finishes first clears it.
func (c *Cache) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
}

// Subscribe returns a channel that receives a Change after every update.
// The caller must call Unsubscribe when done.
func (c *Cache) Subscribe() chan Change {
	ch := make(chan Change, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Cache) Unsubscribe(ch chan Change) {
	c.mu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *Cache) notify(change Change) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for ch := range c.subs {
		select {
		case ch <- change:
		default:
			// Slow subscriber; it can always re-read Get().
		}
	}
}
