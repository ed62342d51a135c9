package llm

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes single-text embeddings in an LRU cache. Questions
// are often repeated verbatim across a session, so query-time embedding hits
// the cache; batch calls made during ingestion bypass it.
type CachedEmbedder struct {
	EmbeddingGenerator
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with a cache of the given number of entries.
func NewCachedEmbedder(next EmbeddingGenerator, size int) (*CachedEmbedder, error) {
	if next == nil {
		return nil, fmt.Errorf("embedding generator is required")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{EmbeddingGenerator: next, cache: cache}, nil
}

// Embed returns the cached vector for text or computes and stores it.
// Callers must not modify the returned slice.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.EmbeddingGenerator.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(text, vec)
	return vec, nil
}

// CircuitBreakers reports the breakers of the wrapped client, if it has any.
func (c *CachedEmbedder) CircuitBreakers() []BreakerStatus {
	return BreakerStatuses(c.EmbeddingGenerator)
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Compile-time assertions.
var (
	_ EmbeddingGenerator = (*CachedEmbedder)(nil)
	_ BreakerReporter    = (*CachedEmbedder)(nil)
)
