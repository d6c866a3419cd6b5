// Package cache is a short-lived Redis cache for computed slots.
// Availability is advisory anyway, so a few seconds of staleness is
// acceptable for read-heavy traffic; any booking, rule or holiday
// write for a service bumps that
// service's version key, which makes every cached entry unreachable
// without scanning for keys. Compute-on-read stays the default: a nil
// client or a zero TTL disables the cache entirely.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/metrics"
	"slotbook/internal/slots"
)

// SlotCache caches availability results per service.
type SlotCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// New creates a slot cache. rdb may be nil and ttl may be zero, in
// which case every lookup misses and every put is a no-op.
func New(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SlotCache {
	return &SlotCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Enabled reports whether caching is active.
func (c *SlotCache) Enabled() bool {
	return c.rdb != nil && c.ttl > 0
}

func (c *SlotCache) key(ctx context.Context, serviceID int64, from, to string, slotLen time.Duration) (string, error) {
	ver, err := c.rdb.Get(ctx, versionKey(serviceID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	return fmt.Sprintf("slots:%d:v%d:%s:%s:%d", serviceID, ver, from, to, int(slotLen.Minutes())), nil
}

func versionKey(serviceID int64) string {
	return fmt.Sprintf("slots:ver:%d", serviceID)
}

// Get returns a cached result plus the entry key the lookup resolved,
// or (nil, key, false) on miss and (nil, "", false) on any cache fault.
// Faults degrade to compute-on-read. The key pins the version observed
// before the caller computes, so a concurrent invalidation cannot slip
// a stale result under the new version via Put.
func (c *SlotCache) Get(ctx context.Context, serviceID int64, from, to string, slotLen time.Duration) ([]slots.Slot, string, bool) {
	if !c.Enabled() {
		return nil, "", false
	}
	key, err := c.key(ctx, serviceID, from, to, slotLen)
	if err != nil {
		c.logger.Debug().Err(err).Msg("slot cache version lookup failed")
		return nil, "", false
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		metrics.IncSlotCache("miss")
		return nil, key, false
	}
	if err != nil {
		c.logger.Debug().Err(err).Msg("slot cache read failed")
		return nil, "", false
	}

	var out []slots.Slot
	if err := json.Unmarshal(data, &out); err != nil {
		c.logger.Debug().Err(err).Msg("slot cache entry corrupt")
		return nil, key, false
	}
	metrics.IncSlotCache("hit")
	return out, key, true
}

// Put stores a computed result under the key returned by Get. An empty
// key is a no-op.
func (c *SlotCache) Put(ctx context.Context, key string, result []slots.Slot) {
	if !c.Enabled() || key == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Msg("slot cache write failed")
	}
}

// Invalidate bumps the service's version, orphaning all cached entries
// for it. Orphans expire with their TTL.
func (c *SlotCache) Invalidate(ctx context.Context, serviceID int64) {
	if !c.Enabled() {
		return
	}
	if err := c.rdb.Incr(ctx, versionKey(serviceID)).Err(); err != nil {
		c.logger.Debug().Err(err).Int64("service_id", serviceID).Msg("slot cache invalidation failed")
	}
}
