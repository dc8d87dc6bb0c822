package diff

import (
	"container/list"
	"strings"
	"sync"
)

// Cache is an LRU cache for per-file diffs, keyed by "<base>:<path>".
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type cacheEntry struct {
	key   string
	value *FileDiff
}

// NewCache creates an LRU cache holding up to capacity file diffs.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 256
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the cached diff, or nil on a miss.
func (c *Cache) Get(key string) *FileDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil
	}
	c.order.MoveToFront(el)
	return cloneFileDiff(el.Value.(*cacheEntry).value)
}

// Set stores a copy of the diff, evicting the least recently used entry
// when full.
func (c *Cache) Set(key string, value *FileDiff) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := cloneFileDiff(value)
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).value = stored
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
	c.items[key] = c.order.PushFront(&cacheEntry{key: key, value: stored})
}

// Invalidate drops all entries whose key starts with prefix. Called when a
// worktree's content changes so stale file diffs do not outlive the edit.
func (c *Cache) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(el)
			delete(c.items, key)
		}
	}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func cloneFileDiff(fd *FileDiff) *FileDiff {
	if fd == nil {
		return nil
	}
	out := *fd
	if fd.Hunks != nil {
		out.Hunks = make([]Hunk, len(fd.Hunks))
		for i, h := range fd.Hunks {
			out.Hunks[i] = h
			out.Hunks[i].Lines = append([]Line(nil), h.Lines...)
		}
	}
	return &out
}
