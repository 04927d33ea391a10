package embeddings

import (
	"container/list"
	"sync"
)

// DefaultCacheSize is the number of recent embeddings kept by [Cache].
// The cache exists to serve sliding-window duplicate detection, which only
// ever looks at the last handful of outputs per caller, so it is deliberately
// tiny.
const DefaultCacheSize = 10

// Cache is a small LRU of text → embedding pairs. It sits in front of a
// [Provider] so that re-embedding the same output during duplicate detection
// does not cost a worker round-trip.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	cap   int
	order *list.List // front = most recent; values are *cacheEntry
	index map[string]*list.Element
}

type cacheEntry struct {
	text string
	vec  []float32
}

// NewCache creates a Cache holding at most capacity entries.
// A capacity <= 0 falls back to [DefaultCacheSize].
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &Cache{
		cap:   capacity,
		order: list.New(),
		index: make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached vector for text, if present, and marks it most
// recently used.
func (c *Cache) Get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).vec, true
}

// Put stores vec under text, evicting the least recently used entry when the
// cache is full.
func (c *Cache) Put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[text]; ok {
		el.Value.(*cacheEntry).vec = vec
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{text: text, vec: vec})
	c.index[text] = el
	if c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(*cacheEntry).text)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
