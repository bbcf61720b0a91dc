package archive

import (
	"sync"

	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
)

// InfoProvider looks up station metadata by code.
type InfoProvider interface {
	StationInfo(network, station string) (domain.Station, error)
}

// CachedInfo wraps an InfoProvider with an in-memory LRU cache so repeated
// coordinate lookups do not reread waveform headers.
type CachedInfo struct {
	inner   InfoProvider
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedInfo creates a cache decorator around a station info provider.
// metrics may be nil.
func NewCachedInfo(inner InfoProvider, maxEntries int, metrics *observability.Metrics) *CachedInfo {
	return &CachedInfo{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedInfo) StationInfo(network, station string) (domain.Station, error) {
	key := network + "." + station
	if st, ok := c.cache.get(key); ok {
		c.count("hit")
		return st, nil
	}
	c.count("miss")

	st, err := c.inner.StationInfo(network, station)
	if err != nil {
		return st, err
	}
	c.cache.put(key, st)
	return st, nil
}

// Cached bundles an Archive with LRU-cached metadata lookups. Waveform reads
// pass straight through.
type Cached struct {
	*Archive
	info *CachedInfo
}

// NewCached wraps the archive so StationInfo goes through an LRU of the
// given size.
func NewCached(a *Archive, maxEntries int, metrics *observability.Metrics) *Cached {
	return &Cached{Archive: a, info: NewCachedInfo(a, maxEntries, metrics)}
}

func (c *Cached) StationInfo(network, station string) (domain.Station, error) {
	return c.info.StationInfo(network, station)
}

func (c *CachedInfo) count(result string) {
	if c.metrics != nil {
		c.metrics.StationCache.WithLabelValues(result).Inc()
	}
}

// lruCache is a simple thread-safe LRU cache for station metadata.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Station
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Station, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Station{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Station) {
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
