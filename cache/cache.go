// Package cache keeps recent composites in memory so a repeated query can
// skip the browser.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/propsnap/compose"
	"github.com/use-agent/propsnap/models"
)

// Entry is one cached snapshot. Outcomes carry no image bytes.
type Entry struct {
	Image     *compose.CompositeImage
	Outcomes  []models.ScrapeOutcome
	CreatedAt time.Time
}

// Cache is an in-memory snapshot cache. It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*Entry
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// New creates a Cache holding at most maxEntries snapshots. Entries older
// than ttl are evicted by a background sweep that stops when ctx is done.
func New(ctx context.Context, maxEntries int, ttl time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		store:      make(map[string]*Entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
	if ttl > 0 {
		go c.cleanupLoop(ctx)
	}
	return c
}

// Key identifies a snapshot by its normalised query, output format and
// target filter. Filter order does not matter.
func Key(property, city, format string, targetNames []string) string {
	names := make([]string, len(targetNames))
	for i, n := range targetNames {
		names[i] = strings.ToLower(n)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, part := range []string{
		strings.ToLower(strings.Join(strings.Fields(property), " ")),
		strings.ToLower(strings.Join(strings.Fields(city), " ")),
		format,
		strings.Join(names, ","),
	} {
		h.Write([]byte(part))
		h.Write([]byte("|"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry for key if it is younger than maxAge. A maxAge of
// zero or less never hits.
func (c *Cache) Get(key string, maxAge time.Duration) (*Entry, bool) {
	if maxAge <= 0 {
		return nil, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(e.CreatedAt) > maxAge {
		return nil, false
	}
	return e, true
}

// Set stores a snapshot. Image bytes are dropped from outcomes; the
// composite already holds them. At capacity the oldest entry is evicted.
func (c *Cache) Set(key string, img *compose.CompositeImage, outcomes []models.ScrapeOutcome) {
	stripped := make([]models.ScrapeOutcome, len(outcomes))
	for i, o := range outcomes {
		o.Image = nil
		stripped[i] = o
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.store[key] = &Entry{Image: img, Outcomes: stripped, CreatedAt: c.now()}
}

// Len is the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.store {
		if oldestKey == "" || e.CreatedAt.Before(oldest) {
			oldestKey, oldest = k, e.CreatedAt
		}
	}
	delete(c.store, oldestKey)
}

func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	for k, e := range c.store {
		if e.CreatedAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
}

// cleanupLoop sweeps expired entries every ttl/4, at least once a minute.
func (c *Cache) cleanupLoop(ctx context.Context) {
	every := min(c.ttl/4, time.Minute)
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}
