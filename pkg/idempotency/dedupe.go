package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper is a best-effort duplicate filter in front of the durable
// idempotency ledger. Seen is a plain read and Mark is only called after the
// ledger row commits, so a crash between delivery and commit can never make a
// redelivered event look handled — the failure mode is an extra ledger lookup,
// never dropped work.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisDeduper creates a new Redis-backed deduper
func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) key(eventID string) string {
	return fmt.Sprintf("reconciler:event:%s", eventID)
}

// Seen reports whether the event id was already marked.
func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records the event id. The TTL only needs to outlive the gateway's
// redelivery window; the durable ledger covers everything beyond it.
func (d *RedisDeduper) Mark(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, d.key(eventID), "1", d.ttl).Err()
}
