package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheKeyPrefix  = "fwblock:lookup:"
	cacheOpTimeout  = 2 * time.Second
	DefaultCacheTTL = 24 * time.Hour
)

// Cache wraps a Lookuper with a Redis cache and collapses concurrent lookups
// of the same address. A nil client only collapses.
type Cache struct {
	next   Lookuper
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewCache(next Lookuper, client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{next: next, client: client, ttl: ttl}
}

func (c *Cache) Lookup(ctx context.Context, address string) (map[string]string, error) {
	if fields, ok := c.cached(ctx, address); ok {
		return fields, nil
	}

	result, err, _ := c.group.Do(address, func() (interface{}, error) {
		fields, err := c.next.Lookup(ctx, address)
		if err != nil {
			return fields, err
		}
		c.store(ctx, address, fields)
		return fields, nil
	})

	fields, _ := result.(map[string]string)
	return maps.Clone(fields), err
}

func (c *Cache) cached(ctx context.Context, address string) (map[string]string, bool) {
	if c.client == nil {
		return nil, false
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	data, err := c.client.Get(opCtx, cacheKeyPrefix+address).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn("Lookup cache read failed", "address", address, "error", err)
		}
		return nil, false
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		log.Warn("Lookup cache entry corrupt", "address", address, "error", err)
		return nil, false
	}
	return fields, true
}

func (c *Cache) store(ctx context.Context, address string, fields map[string]string) {
	if c.client == nil || len(fields) == 0 {
		return
	}

	data, err := json.Marshal(fields)
	if err != nil {
		log.Warn("Lookup cache encode failed", "address", address, "error", err)
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	if err := c.client.Set(opCtx, cacheKeyPrefix+address, data, c.ttl).Err(); err != nil {
		log.Warn("Lookup cache write failed", "address", address, "error", err)
	}
}
