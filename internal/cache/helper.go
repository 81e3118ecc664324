package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"socialfeed/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "get")
	defer span.End()

	s, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	ctx, span := observability.TraceRedisOperation(ctx, "set")
	defer span.End()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, b, ttl).Err()
}

// leaseTTL bounds how long a fill may take before its lease lapses.
const leaseTTL = 10 * time.Second

func leaseKey(key string) string {
	return key + ":lease"
}

// Aside tries Redis first; on a miss or a cache failure it calls fetch, which
// must populate dest, then stores dest with ttl. Only fetch errors are returned.
//
// Before fetching, the reader takes a lease on key. Invalidate drops the lease,
// so a row read before a concurrent write commits is never written back.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := GetJSON(ctx, key, dest)
	if err != nil {
		slog.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	}
	if found {
		return nil
	}

	token, leased := acquireLease(ctx, key)
	if err := fetch(); err != nil {
		return err
	}
	if !leased {
		return nil
	}
	if err := fillWithLease(ctx, key, token, dest, ttl); err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
	return nil
}

func acquireLease(ctx context.Context, key string) (string, bool) {
	if client == nil {
		return "", false
	}
	token := uuid.NewString()
	if err := client.Set(ctx, leaseKey(key), token, leaseTTL).Err(); err != nil {
		slog.WarnContext(ctx, "cache lease failed", "key", key, "error", err)
		return "", false
	}
	return token, true
}

// fillWithLease stores v under key only while the lease still holds token.
func fillWithLease(ctx context.Context, key, token string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, span := observability.TraceRedisOperation(ctx, "set")
	defer span.End()

	lease := leaseKey(key)
	err = client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, lease).Result()
		if errors.Is(err, redis.Nil) || (err == nil && current != token) {
			// Invalidated, or a newer reader holds the lease.
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, ttl)
			pipe.Del(ctx, lease)
			return nil
		})
		return err
	}, lease)
	if errors.Is(err, redis.TxFailedErr) {
		// The lease changed under us; skip this fill.
		return nil
	}
	return err
}
