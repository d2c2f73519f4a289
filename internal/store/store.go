// Package store persists per-claim records (evidence bundles, verdicts) keyed by claim_id
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/veritas/internal/model"
)

// ErrNotFound is returned by Get for an absent key
var ErrNotFound = errors.New("key not found")

// Store is an idempotent key-value store. Implementations are safe for
// concurrent use on distinct keys.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists every stored key, sorted
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// GetJSON decodes the record stored under key
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	raw, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("%w: record %s: %v", model.ErrIntegrity, key, err)
	}
	return v, nil
}

// PutJSON encodes v and stores it under key
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty store key", model.ErrValidation)
	}
	return nil
}

// New opens the backend named by cfg for one record namespace ("evidence", "verdicts").
// dir is used by the fs backend only.
func New(ctx context.Context, cfg model.StoreConfig, dir, namespace string) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "fs", "file":
		return NewFSStore(dir)
	case "redis":
		prefix := namespace
		if cfg.Prefix != "" {
			prefix = cfg.Prefix + ":" + namespace
		}
		return NewRedisStore(ctx, cfg.RedisURL, prefix)
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: fs, redis)", cfg.Backend)
	}
}

// LoadVerdicts reads every stored verdict and rejects records that break the
// verdict invariants.
func LoadVerdicts(ctx context.Context, s Store) ([]model.Verdict, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Verdict, 0, len(keys))
	for _, k := range keys {
		v, err := GetJSON[model.Verdict](ctx, s, k)
		if err != nil {
			return nil, err
		}
		if err := v.Validate(k); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
