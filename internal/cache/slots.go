package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AFixt/meetabl-api/internal/domain"
	"github.com/AFixt/meetabl-api/pkg/logger"
)

// SlotCache is a read-through hint over computed slots. It is never consulted
// by the conflict path: the bookings table stays the single source of truth,
// because a cache cannot observe concurrent writers. Invalidation bumps a
// per-host version key instead of scanning for slot keys.
type SlotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotCache(client *redis.Client, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SlotCache{client: client, ttl: ttl}
}

func (c *SlotCache) enabled() bool {
	return c != nil && c.client != nil
}

func (c *SlotCache) version(ctx context.Context, hostID int64) int64 {
	v, err := c.client.Get(ctx, fmt.Sprintf("slots:ver:%d", hostID)).Int64()
	if err != nil && err != redis.Nil {
		logger.DebugContext(ctx, "slot cache version read failed", "error", err, "host_id", hostID)
	}
	return v
}

func (c *SlotCache) key(ctx context.Context, hostID int64, from, to time.Time, slotDuration time.Duration) string {
	return fmt.Sprintf("slots:%d:%d:%d:%d:%d",
		hostID, c.version(ctx, hostID), from.Unix(), to.Unix(), int64(slotDuration.Seconds()))
}

func (c *SlotCache) Get(ctx context.Context, hostID int64, from, to time.Time, slotDuration time.Duration) ([]domain.TimeWindow, bool) {
	if !c.enabled() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.key(ctx, hostID, from, to, slotDuration)).Bytes()
	if err != nil {
		return nil, false
	}
	var slots []domain.TimeWindow
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false
	}
	return slots, true
}

func (c *SlotCache) Set(ctx context.Context, hostID int64, from, to time.Time, slotDuration time.Duration, slots []domain.TimeWindow) {
	if !c.enabled() {
		return
	}
	raw, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(ctx, hostID, from, to, slotDuration), raw, c.ttl).Err(); err != nil {
		logger.DebugContext(ctx, "slot cache write failed", "error", err, "host_id", hostID)
	}
}

// Invalidate drops every cached range for the host by bumping its version.
func (c *SlotCache) Invalidate(ctx context.Context, hostID int64) {
	if !c.enabled() {
		return
	}
	if err := c.client.Incr(ctx, fmt.Sprintf("slots:ver:%d", hostID)).Err(); err != nil {
		logger.DebugContext(ctx, "slot cache invalidation failed", "error", err, "host_id", hostID)
	}
}
