// Package embedcache memoizes text embeddings per tenant in a bounded LRU.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSize = 4096

type Cache struct {
	lru *lru.Cache[string, []float32]
}

func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cache{lru: c}, nil
}

// Get returns a copy so callers cannot mutate cached vectors.
func (c *Cache) Get(tenantID, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.lru.Get(cacheKey(tenantID, text))
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

func (c *Cache) Add(tenantID, text string, vector []float32) {
	if c == nil || len(vector) == 0 {
		return
	}
	c.lru.Add(cacheKey(tenantID, text), cloneVector(vector))
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func cacheKey(tenantID, text string) string {
	sum := sha256.Sum256([]byte(text))
	return tenantID + ":" + hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
