package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix is the Redis key prefix for persisted chat policies. Each policy
// is one JSON blob under policy:<chatID>.
const KeyPrefix = "policy:"

// RedisPersister stores chat policies as JSON blobs in Redis.
type RedisPersister struct {
	client *redis.Client
}

// NewRedisPersister creates a persister over the given Redis client.
func NewRedisPersister(client *redis.Client) *RedisPersister {
	return &RedisPersister{client: client}
}

// LoadAll scans every policy:* key and unmarshals the stored policies.
// A blob that fails to parse falls back to the default policy for that chat
// and is re-saved, so one corrupt entry can never take the process down.
func (r *RedisPersister) LoadAll(ctx context.Context) (map[int64]*ChatPolicy, error) {
	out := make(map[int64]*ChatPolicy)

	iter := r.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		chatID, err := strconv.ParseInt(strings.TrimPrefix(key, KeyPrefix), 10, 64)
		if err != nil {
			log.Printf("[policy] skipping malformed key %q", key)
			continue
		}

		blob, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("policy: redis get %s: %w", key, err)
		}

		var pol ChatPolicy
		if err := json.Unmarshal(blob, &pol); err != nil {
			log.Printf("[policy] corrupt policy for chat=%d, resetting to defaults: %v", chatID, err)
			pol = *Default()
			if err := r.Save(ctx, chatID, &pol); err != nil {
				log.Printf("[policy] re-save defaults chat=%d failed: %v", chatID, err)
			}
		}
		out[chatID] = &pol
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("policy: redis scan: %w", err)
	}
	return out, nil
}

// Save writes one chat's policy blob.
func (r *RedisPersister) Save(ctx context.Context, chatID int64, pol *ChatPolicy) error {
	blob, err := json.Marshal(pol)
	if err != nil {
		return fmt.Errorf("policy: marshal chat=%d: %w", chatID, err)
	}
	key := KeyPrefix + strconv.FormatInt(chatID, 10)
	if err := r.client.Set(ctx, key, blob, 0).Err(); err != nil {
		return fmt.Errorf("policy: redis set %s: %w", key, err)
	}
	return nil
}
