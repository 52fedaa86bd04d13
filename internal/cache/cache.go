package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/curator/internal/model"
)

const keyPrefix = "curator:v1:"

// Cache stores extracted content by key
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key derives the cache key for a URL extracted through endpoint. The
// endpoint is part of the key so switching extractors does not serve stale
// content from another service.
func Key(endpoint, rawURL string) string {
	hash := sha256.Sum256([]byte(endpoint + "\x00" + strings.TrimSpace(rawURL)))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// FromConfig builds the layered extraction cache, or nil when caching is off
func FromConfig(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	memory := NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	if cfg.Dir == "" {
		return memory
	}
	return NewLayeredCache(memory, NewDiskCache(cfg.Dir, cfg.DiskTTL), cfg.MemoryTTL)
}
