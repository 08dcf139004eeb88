package memory

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachingEmbedder memoizes embeddings by exact text. Recall queries and FAQ
// lookups repeat often within a session.
type CachingEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps next with a cache holding about maxVectors entries.
func NewCachingEmbedder(next Embedder, maxVectors int64) (*CachingEmbedder, error) {
	if maxVectors <= 0 {
		maxVectors = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxVectors * 10,
		MaxCost:            maxVectors,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachingEmbedder{next: next, cache: cache}, nil
}

// Embed implements Embedder.
func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Wait blocks until buffered writes are visible to Get.
func (c *CachingEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachingEmbedder) Close() {
	c.cache.Close()
}
