// Package cache holds short-lived copies of public, read-only API responses.
package cache

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackplate/hackplate-cli/internal/config"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New picks a Store from config. Driver "none" (or "") yields a nil Store,
// which callers treat as caching disabled.
func New(cfg config.CacheConfig) (Store, error) {
	var s Store
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none", "off":
		return nil, nil
	case "memory":
		s = NewMemoryStore()
	case "redis":
		s = NewRedisStore(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
	if cfg.Prefix != "" {
		s = Prefixed{Store: s, Prefix: cfg.Prefix}
	}
	return s, nil
}

type Prefixed struct {
	Store  Store
	Prefix string
}

func (p Prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.Store.Get(ctx, p.Prefix+key)
}

func (p Prefixed) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.Store.Set(ctx, p.Prefix+key, value, ttl)
}

func (p Prefixed) Delete(ctx context.Context, key string) error {
	return p.Store.Delete(ctx, p.Prefix+key)
}

// Close releases the connection behind s, if it holds one.
func Close(s Store) error {
	if p, ok := s.(Prefixed); ok {
		s = p.Store
	}
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
