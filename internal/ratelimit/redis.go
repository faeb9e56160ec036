// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package ratelimit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// redisKeyPrefix namespaces limiter keys in a shared database.
const redisKeyPrefix = "gatehouse:ratelimit:"

// RedisLimiter is a sliding-window Limiter backed by Redis sorted sets.
// Limit state survives process restarts and is shared by every replica
// pointed at the same database. It is safe for concurrent use.
//
// Each key holds a ZSET of event timestamps scored in milliseconds; the
// block penalty is a separate key with a TTL, so blocked checks cost a
// single PTTL call. The prune-then-count transaction and the add that
// follows are separate round trips, which leaves a small overshoot window
// under heavy concurrency on one key.
type RedisLimiter struct {
	client redis.UniversalClient
	clock  func() time.Time
	seq    atomic.Uint64
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter on an existing Redis client. The caller
// owns the client lifecycle.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return NewRedisLimiterWithClock(client, nil)
}

// NewRedisLimiterWithClock creates a limiter with an overridden time source.
// A nil clock selects time.Now.
func NewRedisLimiterWithClock(client redis.UniversalClient, clock func() time.Time) *RedisLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{client: client, clock: clock}
}

func (l *RedisLimiter) eventsKey(identifier, action string) string {
	return redisKeyPrefix + limiterKey(identifier, action)
}

func (l *RedisLimiter) blockKey(identifier, action string) string {
	return redisKeyPrefix + "block:" + limiterKey(identifier, action)
}

// Check records a request attempt and reports whether it is allowed.
func (l *RedisLimiter) Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error) {
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return Decision{}, oops.Code("RATELIMIT_BAD_CONFIG").
			With("max_requests", cfg.MaxRequests).
			With("window", cfg.Window.String()).
			Errorf("max requests and window must be positive")
	}

	now := l.clock()
	eventsKey := l.eventsKey(identifier, action)
	blockKey := l.blockKey(identifier, action)

	// An active penalty short-circuits before any window work.
	// PTTL returns a negative duration for missing keys and keys without
	// an expiry; both mean no block.
	blockTTL, err := l.client.PTTL(ctx, blockKey).Result()
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").
			With("operation", "read block key").
			Wrap(err)
	}
	if blockTTL > 0 {
		return Decision{RetryAfter: blockTTL}, nil
	}

	cutoffMs := now.Add(-cfg.Window).UnixMilli()

	var countCmd *redis.IntCmd
	var oldestCmd *redis.ZSliceCmd
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, eventsKey, "-inf", strconv.FormatInt(cutoffMs, 10))
		countCmd = pipe.ZCard(ctx, eventsKey)
		oldestCmd = pipe.ZRangeWithScores(ctx, eventsKey, 0, 0)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").
			With("operation", "prune window").
			Wrap(err)
	}

	count := int(countCmd.Val())
	if count >= cfg.MaxRequests {
		if cfg.BlockDuration > 0 {
			if err := l.client.Set(ctx, blockKey, "1", cfg.BlockDuration).Err(); err != nil {
				return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").
					With("operation", "set block key").
					Wrap(err)
			}
			return Decision{RetryAfter: cfg.BlockDuration}, nil
		}

		retryAfter := cfg.Window
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			oldestAt := time.UnixMilli(int64(oldest[0].Score))
			retryAfter = oldestAt.Add(cfg.Window).Sub(now)
			if retryAfter <= 0 {
				// Millisecond score truncation can round the wait down to
				// zero; report the smallest positive delay instead.
				retryAfter = time.Millisecond
			}
		}
		return Decision{RetryAfter: retryAfter}, nil
	}

	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, eventsKey, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		pipe.Expire(ctx, eventsKey, cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, oops.Code("RATELIMIT_REDIS_FAILED").
			With("operation", "record event").
			Wrap(err)
	}

	return Decision{Allowed: true, Remaining: cfg.MaxRequests - count - 1}, nil
}

// Reset clears all limit state for the key, including any block penalty.
func (l *RedisLimiter) Reset(ctx context.Context, identifier, action string) error {
	err := l.client.Del(ctx, l.eventsKey(identifier, action), l.blockKey(identifier, action)).Err()
	if err != nil {
		return oops.Code("RATELIMIT_REDIS_FAILED").
			With("operation", "reset key").
			Wrap(err)
	}
	return nil
}
