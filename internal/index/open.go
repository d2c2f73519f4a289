package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/veritas/internal/embed"
	"github.com/ppiankov/veritas/internal/model"
)

// BuildAndSave builds the configured backend from segments. The flat backend is
// written to cfg dir; the pgvector backend is written to its table.
func BuildAndSave(ctx context.Context, cfg model.IndexConfig, dir string, segments []model.Segment, e embed.Embedder, opts BuildOptions) (Searcher, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "flat":
		idx, err := Build(ctx, segments, e, opts)
		if err != nil {
			return nil, err
		}
		if err := idx.Save(dir); err != nil {
			return nil, err
		}
		return idx, nil
	case "pgvector", "postgres":
		store, err := OpenPgStore(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		if err := store.Build(ctx, segments, e, opts); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: flat, pgvector)", cfg.Backend)
	}
}

// Open loads the configured backend for searching
func Open(ctx context.Context, cfg model.IndexConfig, dir string) (Searcher, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "flat":
		return Load(dir)
	case "pgvector", "postgres":
		store, err := OpenPgStore(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, err
		}
		if err := store.Verify(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s (supported: flat, pgvector)", cfg.Backend)
	}
}

// Close releases backend resources, if any
func Close(s Searcher) error {
	if p, ok := s.(*PgStore); ok {
		return p.Close()
	}
	return nil
}
