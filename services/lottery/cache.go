package lottery

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_summary_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "lottery_summary_cache_miss_total"})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMiss)
}

type cachedSummary struct {
	summary  Summary
	loadedAt time.Time
}

// SummaryCache is a TTL cache of pool summaries keyed by flyer id. Loads for
// the same flyer are collapsed with singleflight. Expired entries are dropped
// when read and swept at most once per TTL on writes.
type SummaryCache struct {
	mu        sync.RWMutex
	items     map[string]cachedSummary
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
	group     singleflight.Group
}

func NewSummaryCache(ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		items:     make(map[string]cachedSummary),
		ttl:       ttl,
		now:       time.Now,
		lastSweep: time.Now(),
	}
}

func (c *SummaryCache) expired(v cachedSummary, now time.Time) bool {
	return c.ttl > 0 && now.Sub(v.loadedAt) > c.ttl
}

func (c *SummaryCache) Get(flyerID string) (Summary, bool) {
	now := c.now()

	c.mu.RLock()
	v, ok := c.items[flyerID]
	c.mu.RUnlock()

	if ok && c.expired(v, now) {
		c.mu.Lock()
		if cur, found := c.items[flyerID]; found && c.expired(cur, now) {
			delete(c.items, flyerID)
		}
		c.mu.Unlock()
		ok = false
	}
	if !ok {
		cacheMiss.Inc()
		return Summary{}, false
	}
	cacheHits.Inc()
	return v.summary, true
}

func (c *SummaryCache) Set(flyerID string, s Summary) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[flyerID] = cachedSummary{summary: s, loadedAt: now}

	if c.ttl > 0 && now.Sub(c.lastSweep) > c.ttl {
		for id, v := range c.items {
			if c.expired(v, now) {
				delete(c.items, id)
			}
		}
		c.lastSweep = now
	}
}

func (c *SummaryCache) Invalidate(flyerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, flyerID)
}

// Len reports the number of stored entries, expired or not.
func (c *SummaryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Load returns the cached summary or calls load once per flyer and caches it.
func (c *SummaryCache) Load(flyerID string, load func() (Summary, error)) (Summary, error) {
	if s, ok := c.Get(flyerID); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(flyerID, func() (any, error) {
		s, err := load()
		if err != nil {
			return Summary{}, err
		}
		c.Set(flyerID, s)
		return s, nil
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}
