// Package dedupe suppresses redundant webhook deliveries. Telegram retries
// an update until the webhook answers 200, so the same update id can arrive
// more than once; a Redis SETNX marker makes the second delivery a no-op
// before it reaches NATS.
package dedupe

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces dedupe markers in Redis.
const KeyPrefix = "dedupe:update:"

// DefaultTTL is how long an update id stays marked as seen. Telegram stops
// retrying long before a day.
const DefaultTTL = 24 * time.Hour

// Deduper records seen update ids in Redis.
type Deduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduper creates a Deduper backed by the given Redis client.
func NewDeduper(client *redis.Client) *Deduper {
	return &Deduper{client: client, ttl: DefaultTTL}
}

// Seen marks the update id and reports whether it had already been marked.
// On Redis errors it fails open: the update is treated as unseen, because a
// duplicate enforcement is cheaper than a missed one.
func (d *Deduper) Seen(ctx context.Context, updateID int64) (bool, error) {
	key := KeyPrefix + strconv.FormatInt(updateID, 10)

	set, err := d.client.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		log.Printf("[dedupe] redis SETNX error key=%s: %v (failing open)", key, err)
		return false, err
	}
	// SETNX succeeded means this is the first delivery.
	return !set, nil
}
