package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Zereker/vectorstore/pkg/vector"
)

// LRU is an in-process cache bounded by entry count and TTL.
type LRU struct {
	entries *expirable.LRU[string, *vector.SearchResponse]

	mu          sync.Mutex
	generations map[string]uint64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewLRU creates an LRU tier. Non-positive arguments take the defaults.
func NewLRU(maxEntries int, ttl time.Duration) *LRU {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &LRU{generations: make(map[string]uint64)}
	c.entries = expirable.NewLRU[string, *vector.SearchResponse](maxEntries, func(string, *vector.SearchResponse) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

func (c *LRU) Get(_ context.Context, key string) (*vector.SearchResponse, bool, error) {
	resp, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return resp.Clone(), true, nil
}

func (c *LRU) Set(_ context.Context, key string, resp *vector.SearchResponse) error {
	c.entries.Add(key, resp.Clone())
	return nil
}

func (c *LRU) Generation(_ context.Context, index string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[index], nil
}

func (c *LRU) Invalidate(_ context.Context, index string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[index]++
	return nil
}

func (c *LRU) Purge(_ context.Context) error {
	c.entries.Purge()
	return nil
}

func (c *LRU) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.entries.Len(),
	}
}
