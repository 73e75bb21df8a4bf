package index

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/eringen/pubindex/entry"
)

// entryCache keeps recently read entries in memory with a TTL. A read that
// overlaps an invalidation does not fill the cache, so a version loaded
// before a write never outlives it.
type entryCache struct {
	lru *expirable.LRU[string, entry.Entry]
	src entry.Source

	mu    sync.Mutex
	epoch uint64 // bumped on every invalidation
}

func newEntryCache(src entry.Source, cfg Config) *entryCache {
	return &entryCache{
		lru: expirable.NewLRU[string, entry.Entry](cfg.EntryCacheSize, nil, cfg.EntryCacheTTL),
		src: src,
	}
}

func cacheKey(blogID, id string) string { return blogID + "\x00" + id }

// GetEntries returns entries for ids in order, reading misses from the source.
func (c *entryCache) GetEntries(ctx context.Context, blogID string, ids []string) ([]entry.Entry, error) {
	found := make(map[string]entry.Entry, len(ids))
	var missing []string
	for _, id := range ids {
		if e, ok := c.lru.Get(cacheKey(blogID, id)); ok {
			found[id] = e
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		c.mu.Lock()
		epoch := c.epoch
		c.mu.Unlock()
		list, err := c.src.GetEntries(ctx, blogID, missing)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		fill := c.epoch == epoch
		for _, e := range list {
			found[e.ID] = e
			if fill {
				c.lru.Add(cacheKey(blogID, e.ID), e)
			}
		}
		c.mu.Unlock()
	}
	out := make([]entry.Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := found[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// Invalidate drops one entry.
func (c *entryCache) Invalidate(blogID, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Remove(cacheKey(blogID, id))
}

// Purge drops everything.
func (c *entryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lru.Purge()
}
