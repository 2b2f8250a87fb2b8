package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// embeddingPrefix namespaces embedding entries within a shared cache.
const embeddingPrefix = "embed:"

// CachingEmbedder memoises an EmbeddingProvider. Failed lookups are not cached.
type CachingEmbedder struct {
	next  driven.EmbeddingProvider
	cache *Cache
}

// NewCachingEmbedder wraps next with c.
func NewCachingEmbedder(next driven.EmbeddingProvider, c *Cache) *CachingEmbedder {
	return &CachingEmbedder{next: next, cache: c}
}

var _ driven.EmbeddingProvider = (*CachingEmbedder)(nil)

// Embed returns the cached vector for text or asks the wrapped provider.
func (e *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embeddingKey(text)

	var vec []float32
	if ok, err := e.cache.GetJSON(key, &vec); err == nil && ok {
		return vec, nil
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = e.cache.SetJSON(key, vec)
	return vec, nil
}

func embeddingKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return embeddingPrefix + hex.EncodeToString(sum[:])
}
