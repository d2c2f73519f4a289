package embed

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veritas/internal/cache"
	"github.com/ppiankov/veritas/internal/model"
)

// New builds the embedder named by cfg.Provider, wrapped in a cache when a TTL is set
func New(cfg model.EmbedConfig, logger *slog.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", "hashing":
		e, err = NewHashingEmbedder(cfg.Dimension)
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		e, err = NewOpenAIEmbedder(apiKey, cfg.BaseURL, cfg.Model, cfg.Dimension)
	case "hugot", "local":
		e, err = NewHugotEmbedder(cfg.Model, cfg.ModelDir, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: hashing, openai, hugot)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL <= 0 {
		return e, nil
	}

	var c cache.Cache
	if cfg.CacheDir != "" {
		c = cache.NewLayeredCache(cfg.CacheTTL, cfg.CacheDir, cfg.CacheTTL)
	} else {
		c = cache.NewMemoryCache(cfg.CacheTTL, 10*time.Minute)
	}
	return NewCachedEmbedder(e, c, cfg.CacheTTL, logger), nil
}

// Close releases resources held by e, if any
func Close(e Embedder) error {
	switch v := e.(type) {
	case *HugotEmbedder:
		return v.Close()
	case *CachedEmbedder:
		return Close(v.inner)
	}
	return nil
}
