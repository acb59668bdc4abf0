package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupLog records provider event ids with bounded retention so repeat
// deliveries can be short-circuited before dispatch. Seen is checked
// before a handler runs; Mark is recorded only after processing succeeds,
// so a failed delivery stays eligible for redelivery. Idempotent handlers
// cover the window between concurrent deliveries of the same event.
type DedupLog interface {
	// Seen reports whether the event id was already processed.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event id as processed.
	Mark(ctx context.Context, eventID string) error
}

// MemoryDedupLog implements DedupLog with an in-process expirable LRU.
// Suitable for single-instance deployments; retention is bounded by both
// entry count and TTL.
type MemoryDedupLog struct {
	cache *lru.LRU[string, struct{}]
}

// NewMemoryDedupLog creates an in-memory dedup log.
func NewMemoryDedupLog(maxEntries int, ttl time.Duration) *MemoryDedupLog {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemoryDedupLog{
		cache: lru.NewLRU[string, struct{}](maxEntries, nil, ttl),
	}
}

// Seen reports whether the event id is present in the cache.
func (l *MemoryDedupLog) Seen(ctx context.Context, eventID string) (bool, error) {
	_, ok := l.cache.Get(eventID)
	return ok, nil
}

// Mark records the event id.
func (l *MemoryDedupLog) Mark(ctx context.Context, eventID string) error {
	l.cache.Add(eventID, struct{}{})
	return nil
}

const redisDedupPrefix = "tollgate:webhook:event:"

// RedisDedupLog implements DedupLog on Redis so multiple instances share
// one view of processed events. Entries expire after the configured TTL.
type RedisDedupLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedupLog creates a Redis-backed dedup log.
func NewRedisDedupLog(client *redis.Client, ttl time.Duration) *RedisDedupLog {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedupLog{client: client, ttl: ttl}
}

// Seen checks for the event id key.
func (l *RedisDedupLog) Seen(ctx context.Context, eventID string) (bool, error) {
	count, err := l.client.Exists(ctx, redisDedupPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return count > 0, nil
}

// Mark writes the event id key with the retention TTL. SetNX keeps the
// original expiry when two deliveries of the same event race.
func (l *RedisDedupLog) Mark(ctx context.Context, eventID string) error {
	if err := l.client.SetNX(ctx, redisDedupPrefix+eventID, 1, l.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx failed: %w", err)
	}
	return nil
}
