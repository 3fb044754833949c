// Package cache stores validated extraction responses keyed by a digest of
// the request, so re-ingesting an unchanged document skips the model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Cache is a byte-value store. A miss is reported as (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Close() error
}

// Config selects a cache backend.
type Config struct {
	// Backend is "" or "none" (disabled), "memory" or "redis".
	Backend string `json:"backend" yaml:"backend"`
	// Size bounds the number of entries held by the memory backend.
	Size int `json:"size" yaml:"size"`
	// URL locates the redis server, e.g. redis://localhost:6379/0.
	URL string `json:"url" yaml:"url"`
	// TTL expires redis entries. Zero keeps them forever.
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

const defaultSize = 256

// Enabled reports whether cfg selects a backend.
func (c Config) Enabled() bool {
	b := strings.ToLower(c.Backend)
	return b != "" && b != "none"
}

// Validate checks the backend name and its required fields.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", "none":
	case "memory":
		if c.Size < 0 {
			return fmt.Errorf("cache size must be >= 0")
		}
	case "redis":
		if c.URL == "" {
			return fmt.Errorf("redis cache requires a url")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	if c.TTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0")
	}
	return nil
}

// Open constructs the configured backend. It returns (nil, nil) when
// caching is disabled.
func Open(ctx context.Context, cfg Config) (Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		size := cfg.Size
		if size == 0 {
			size = defaultSize
		}
		return NewLRU(size)
	case "redis":
		return OpenRedis(ctx, cfg.URL, cfg.TTL)
	}
	return nil, nil
}

// Key derives a cache key from the parts that determine a model response.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
