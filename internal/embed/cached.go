package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/veritas/internal/cache"
)

// CachedEmbedder serves repeated texts from a cache and embeds only the misses
type CachedEmbedder struct {
	inner  Embedder
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedEmbedder wraps inner with c
func NewCachedEmbedder(inner Embedder, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedEmbedder) Name() string   { return c.inner.Name() }
func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

// Embed returns cached vectors where present and fills the rest from the wrapped embedder
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, t := range texts {
		if raw, ok := c.cache.Get(cache.Key(c.inner.Name(), t)); ok {
			if v, err := cache.DecodeVector(raw); err == nil && len(v) == c.inner.Dimension() {
				out[i] = v
				continue
			}
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", c.inner.Name(), len(vecs), len(missTexts))
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		if err := c.cache.Set(cache.Key(c.inner.Name(), missTexts[j]), cache.EncodeVector(v), c.ttl); err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}

	c.logger.Debug("embedded", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}
