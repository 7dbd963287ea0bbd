package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps any backend with a bounded read-through/write-through LRU.
// The cache is a read optimization only; durable storage stays the source of
// truth, and List always goes to the backend.
type Cached struct {
	inner Store
	cache *lru.Cache[string, []byte]
}

// NewCached bounds the cache at size entries.
func NewCached(inner Store, size int) (*Cached, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Put(ctx context.Context, key string, data []byte) error {
	if err := c.inner.Put(ctx, key, data); err != nil {
		// A failed write must not leave a stale value behind.
		c.cache.Remove(key)
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.cache.Add(key, buf)
	return nil
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, error) {
	if data, ok := c.cache.Get(key); ok {
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	data, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.cache.Add(key, buf)
	return data, nil
}

func (c *Cached) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}
