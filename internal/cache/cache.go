package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pep299/autoinsight/internal/vehicle"
)

// Cache stores summaries by key. Implementations are safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	CleanupExpired(ctx context.Context) (int, error)
}

// CacheEntry represents a cached summary
type CacheEntry struct {
	Key         string          `json:"key"`
	Summary     vehicle.Summary `json:"summary"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	AccessedAt  time.Time       `json:"accessed_at"`
	AccessCount int             `json:"access_count"`
}

// Stats is reported by the cache stats and status endpoints.
type Stats struct {
	Type           string        `json:"type"`
	TotalEntries   int           `json:"total_entries"`
	HitCount       int64         `json:"hit_count"`
	MissCount      int64         `json:"miss_count"`
	HitRate        float64       `json:"hit_rate"`
	MemoryUsage    int64         `json:"memory_usage_bytes"`
	OldestEntry    time.Time     `json:"oldest_entry"`
	AverageAge     time.Duration `json:"average_age"`
	ExpiredEntries int           `json:"expired_entries"`
}

// MemoryCache keeps summaries in process memory until their TTL passes.
// Expired entries are dropped on read and by CleanupExpired; there is no
// background goroutine.
type MemoryCache struct {
	mu     sync.RWMutex
	items  map[string]*CacheEntry
	ttl    time.Duration
	hits   int64
	misses int64
	now    func() time.Time
}

// NewMemoryCache creates an empty cache whose entries live for ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (e *CacheEntry) expiredAt(t time.Time) bool {
	return t.After(e.ExpiresAt)
}

// approxSize is the number of bytes held by the entry's strings.
func (e *CacheEntry) approxSize() int64 {
	n := len(e.Key) + len(e.Summary.VIN) + len(e.Summary.Summary) + len(e.Summary.Source)
	for _, line := range e.Summary.Reasoning {
		n += len(line)
	}
	return int64(n)
}

// Get returns a copy of the entry stored under key. A hit refreshes the
// access bookkeeping; an expired entry is removed and reported as
// ErrCacheExpired.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, ErrCacheMiss
	}

	now := c.now()
	if entry.expiredAt(now) {
		delete(c.items, key)
		c.misses++
		return nil, ErrCacheExpired
	}

	c.hits++
	entry.AccessedAt = now
	entry.AccessCount++

	out := *entry
	return &out, nil
}

// Set stores a copy of entry under key, resetting its timestamps.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	now := c.now()
	stored := *entry
	stored.Key = key
	stored.CreatedAt = now
	stored.AccessedAt = now
	stored.ExpiresAt = now.Add(c.ttl)
	stored.AccessCount = 0

	c.mu.Lock()
	c.items[key] = &stored
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Exists reports whether key holds an unexpired entry. It does not count
// as a hit or a miss.
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.items[key]
	return ok && !entry.expiredAt(c.now()), nil
}

// Clear drops every entry and resets the hit/miss counters.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.items)
	c.hits, c.misses = 0, 0
	return nil
}

func (c *MemoryCache) GetStats(ctx context.Context) (*Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &Stats{
		Type:         "memory",
		TotalEntries: len(c.items),
		HitCount:     c.hits,
		MissCount:    c.misses,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		stats.HitRate = float64(c.hits) / float64(lookups)
	}

	now := c.now()
	var ageSum time.Duration
	for _, entry := range c.items {
		stats.MemoryUsage += entry.approxSize()
		ageSum += now.Sub(entry.CreatedAt)
		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.expiredAt(now) {
			stats.ExpiredEntries++
		}
	}
	if n := len(c.items); n > 0 {
		stats.AverageAge = ageSum / time.Duration(n)
	}

	return stats, nil
}

// CleanupExpired removes expired entries and returns how many were dropped.
func (c *MemoryCache) CleanupExpired(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.items {
		if entry.expiredAt(now) {
			delete(c.items, key)
			removed++
		}
	}
	return removed, nil
}

// NoopCache never stores anything. It backs CACHE_TYPE=none.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*CacheEntry, error) { return nil, ErrCacheMiss }
func (NoopCache) Set(context.Context, string, *CacheEntry) error { return nil }
func (NoopCache) Delete(context.Context, string) error { return nil }
func (NoopCache) Exists(context.Context, string) (bool, error) { return false, nil }
func (NoopCache) Clear(context.Context) error { return nil }
func (NoopCache) GetStats(context.Context) (*Stats, error) { return &Stats{Type: "none"}, nil }
func (NoopCache) CleanupExpired(context.Context) (int, error) { return 0, nil }

// Manager addresses a Cache by VIN.
type Manager struct {
	cache Cache
}

// NewManager builds the cache named by cacheType ("memory" or "none").
func NewManager(cacheType string, ttl time.Duration) (*Manager, error) {
	switch cacheType {
	case "memory":
		return &Manager{cache: NewMemoryCache(ttl)}, nil
	case "none":
		return &Manager{cache: NoopCache{}}, nil
	}
	return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
}

// GetSummary retrieves a cached summary for a VIN
func (m *Manager) GetSummary(ctx context.Context, vin string) (*vehicle.Summary, error) {
	entry, err := m.cache.Get(ctx, GenerateKey(vin))
	if err != nil {
		return nil, err
	}
	return &entry.Summary, nil
}

// SetSummary caches a summary under its VIN
func (m *Manager) SetSummary(ctx context.Context, summary vehicle.Summary) error {
	return m.cache.Set(ctx, GenerateKey(summary.VIN), &CacheEntry{Summary: summary})
}

// IsCached checks if a VIN already has a cached summary
func (m *Manager) IsCached(ctx context.Context, vin string) (bool, error) {
	return m.cache.Exists(ctx, GenerateKey(vin))
}

// Invalidate drops the cached summary of a VIN
func (m *Manager) Invalidate(ctx context.Context, vin string) error {
	return m.cache.Delete(ctx, GenerateKey(vin))
}

func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	return m.cache.GetStats(ctx)
}

// Clear empties the cache.
func (m *Manager) Clear(ctx context.Context) error {
	return m.cache.Clear(ctx)
}

// CleanupExpired drops expired entries. Scheduled by the server's cron.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.cache.CleanupExpired(ctx)
}

// GenerateKey generates a cache key for a VIN
func GenerateKey(vin string) string {
	return "vin:" + vehicle.NormalizeVIN(vin)
}

// IsMiss reports whether err means the key had no usable entry
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheExpired)
}

// Common cache errors
var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrCacheExpired = errors.New("cache entry expired")
)
