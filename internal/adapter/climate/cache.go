package climate

import (
	"context"
	"sync"

	"github.com/couchcryptid/climate-daily-etl/internal/domain"
	"github.com/couchcryptid/climate-daily-etl/internal/observability"
)

// PageFetcher is the fetch capability the cache decorates.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// CachedFetcher wraps a PageFetcher with an in-memory LRU of finished months.
// Pages for the current month (or later) are always fetched, since the source
// keeps filling them in.
type CachedFetcher struct {
	inner   PageFetcher
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator holding up to maxEntries pages.
func NewCachedFetcher(inner PageFetcher, maxEntries int, metrics *observability.Metrics) *CachedFetcher {
	return &CachedFetcher{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if !cacheable(url, domain.Today()) {
		return c.inner.Fetch(ctx, url)
	}
	if page, ok := c.cache.get(url); ok {
		c.metrics.PageCache.WithLabelValues("hit").Inc()
		return page, nil
	}
	c.metrics.PageCache.WithLabelValues("miss").Inc()

	page, err := c.inner.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	// Empty pages are not cached so a transient blank response can be retried.
	if len(page) > 0 {
		c.cache.put(url, page)
	}
	return page, nil
}

// cacheable reports whether url names a month strictly before today's month.
func cacheable(url string, today domain.Date) bool {
	year, month, ok := pageMonth(url)
	if !ok {
		return false
	}
	return year < today.Year || (year == today.Year && month < int(today.Month))
}

// lruCache is a simple thread-safe LRU cache of page bodies.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
