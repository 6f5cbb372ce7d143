// Package cache stores encoded analysis results keyed by normalized query.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/feedlens/internal/model"
)

// Cache defines the interface for result caching. Backends treat values as
// opaque bytes; a failed lookup is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "feedlens:v1:"

// QueryKey derives the cache key for one provider answering one query.
// Query text is case- and whitespace-normalized.
func QueryKey(provider, text string, topK int) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", provider, topK, normalized)))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// New builds the backend named in cfg. A disabled cache returns nil, nil.
func New(ctx context.Context, cfg model.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryCache(cfg.TTL, 10*time.Minute), nil
	case "disk":
		return NewDiskCache(cfg.Dir, cfg.TTL), nil
	case "layered":
		return NewLayeredCache(cfg.TTL, cfg.Dir, cfg.TTL), nil
	case "redis":
		return NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s (supported: memory, disk, layered, redis)", cfg.Backend)
	}
}
