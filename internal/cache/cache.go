package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rebelice/kioskquery/internal/models"
)

// DefaultTTL is how long an entry stays fresh unless the caller overrides it
const DefaultTTL = 5 * time.Minute

// entry is one cached result with its expiry bookkeeping
type entry struct {
	value     models.QueryResult
	createdAt time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// ResultCache maps a query signature to a previously computed result set,
// with TTL expiry and LRU eviction over a bounded entry count. The cache
// cannot observe data-set mutation; the host must call InvalidateAll (or a
// scoped Invalidate) when the underlying data changes.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string // LRU order, most recent at end
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time

	fills singleflight.Group
}

// New creates a cache holding at most maxSize entries
func New(maxSize int, defaultTTL time.Duration) *ResultCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &ResultCache{
		entries:    make(map[string]*entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached result for key. An expired entry is evicted and
// reported as a miss.
func (c *ResultCache) Get(key string) (models.QueryResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return models.QueryResult{}, false
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return models.QueryResult{}, false
	}

	c.moveToEnd(key)
	return e.value, true
}

// Put stores a result under key with the default TTL
func (c *ResultCache) Put(key string, value models.QueryResult) {
	c.PutWithTTL(key, value, c.defaultTTL)
}

// PutWithTTL stores a result under key with an explicit TTL
func (c *ResultCache) PutWithTTL(key string, value models.QueryResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{value: value, createdAt: c.now(), ttl: ttl}

	if _, ok := c.entries[key]; ok {
		c.entries[key] = e
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}
	c.entries[key] = e
	c.order = append(c.order, key)
}

// GetOrFill returns the cached result for key, computing and storing it via
// fill on a miss. Concurrent callers for the same key share one fill; all
// waiters receive the same value or error. Fill errors are not cached.
func (c *ResultCache) GetOrFill(key string, fill func() (models.QueryResult, error)) (models.QueryResult, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	v, err, _ := c.fills.Do(key, func() (interface{}, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := fill()
		if err != nil {
			return models.QueryResult{}, err
		}
		c.Put(key, value)
		return value, nil
	})
	if err != nil {
		return models.QueryResult{}, err
	}
	return v.(models.QueryResult), nil
}

// Invalidate removes a single entry
func (c *ResultCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.removeFromOrder(key)
	}
}

// InvalidateAll removes every entry. The host calls this whenever the
// underlying data set changes.
func (c *ResultCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = c.order[:0]
}

// Size returns the current entry count
func (c *ResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CleanExpired eagerly removes expired entries, returning how many were
// dropped
func (c *ResultCache) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			c.removeFromOrder(key)
			removed++
		}
	}
	return removed
}

func (c *ResultCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *ResultCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *ResultCache) evictLRU() {
	if len(c.order) == 0 {
		return
	}
	delete(c.entries, c.order[0])
	c.order = c.order[1:]
}

// Key derives a deterministic cache key from the optimized query, its bound
// values and the content type, so equivalent configs share an entry no
// matter which representation produced them.
func Key(contentType, sql string, args []interface{}) string {
	payload := struct {
		ContentType string        `json:"content_type"`
		SQL         string        `json:"sql"`
		Args        []interface{} `json:"args"`
	}{contentType, sql, args}

	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
