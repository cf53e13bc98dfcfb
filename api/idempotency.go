package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// pendingMarker is stored while the first request for a key is in flight.
const pendingMarker = "pending"

// RedisDeduper remembers Idempotency-Key values in Redis so a retried task
// creation returns the task created by the first attempt on any instance.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("idem:%s:%s", userID, key)
}

// Reserve records the key if it is new. It returns true when the caller owns
// the key and should perform the write.
func (r *RedisDeduper) Reserve(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), pendingMarker, r.ttl).Result()
}

// Complete stores the id of the task created for the key.
func (r *RedisDeduper) Complete(ctx context.Context, userID, key string, taskID int64) error {
	return r.client.Set(ctx, r.key(userID, key), strconv.FormatInt(taskID, 10), r.ttl).Err()
}

// Lookup returns the task id stored for the key. ok is false while the first
// request is still pending.
func (r *RedisDeduper) Lookup(ctx context.Context, userID, key string) (int64, bool, error) {
	val, err := r.client.Get(ctx, r.key(userID, key)).Result()
	if errors.Is(err, redis.Nil) || val == pendingMarker {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt idempotency entry %q: %w", val, err)
	}
	return id, true, nil
}

// Remove forgets a key so the client may retry after a failed write.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
