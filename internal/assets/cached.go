package assets

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached keeps recent lookups in a bounded LRU. Misses are not cached.
type Cached struct {
	next  Library
	cache *lru.Cache[string, Asset]
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next Library, size int) (*Cached, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Asset](size)
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Lookup(ctx context.Context, id string) (Asset, error) {
	if asset, ok := c.cache.Get(id); ok {
		return asset, nil
	}
	asset, err := c.next.Lookup(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	c.cache.Add(id, asset)
	return asset, nil
}

// Purge drops every cached entry.
func (c *Cached) Purge() { c.cache.Purge() }
