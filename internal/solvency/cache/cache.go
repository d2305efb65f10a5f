// Package cache keeps recently read ratings in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"solvency-workers/internal/common/metrics"
	"solvency-workers/internal/solvency"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyspace = "solvency:rating"
	DefaultTTL      = 15 * time.Minute
)

var ErrCacheUnavailable = errors.New("CACHE_UNAVAILABLE")

type RatingCache struct {
	client   redis.Cmdable
	keyspace string
	ttl      time.Duration
}

func New(client redis.Cmdable, keyspace string, ttl time.Duration) *RatingCache {
	if keyspace == "" {
		keyspace = DefaultKeyspace
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RatingCache{client: client, keyspace: keyspace, ttl: ttl}
}

func (c *RatingCache) Key(userID string) string {
	return c.keyspace + ":" + userID
}

// Get reports found=false on a miss. An undecodable entry is treated as a miss
// and removed; if the removal fails the error is returned with the miss.
func (c *RatingCache) Get(ctx context.Context, userID string) (*solvency.Rating, bool, error) {
	key := c.Key(userID)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.SolvencyCacheRequests.WithLabelValues("miss").Inc()
		return nil, false, nil
	}
	if err != nil {
		metrics.SolvencyCacheRequests.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrCacheUnavailable, key, err)
	}

	var rating solvency.Rating
	if err := json.Unmarshal(data, &rating); err != nil {
		metrics.SolvencyCacheRequests.WithLabelValues("miss").Inc()
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return nil, false, fmt.Errorf("%w: del undecodable %s: %v", ErrCacheUnavailable, key, err)
		}
		return nil, false, nil
	}

	metrics.SolvencyCacheRequests.WithLabelValues("hit").Inc()
	return &rating, true, nil
}

func (c *RatingCache) Set(ctx context.Context, userID string, rating solvency.Rating) error {
	data, err := json.Marshal(rating)
	if err != nil {
		return fmt.Errorf("marshal rating: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(userID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Fill stores a rating read from the database only when no entry exists, so
// a concurrent Set from the write path is never replaced by an older read.
// filled is false when an entry was already present.
func (c *RatingCache) Fill(ctx context.Context, userID string, rating solvency.Rating) (filled bool, err error) {
	data, err := json.Marshal(rating)
	if err != nil {
		return false, fmt.Errorf("marshal rating: %w", err)
	}
	filled, err = c.client.SetNX(ctx, c.Key(userID), data, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: setnx: %v", ErrCacheUnavailable, err)
	}
	return filled, nil
}

func (c *RatingCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, c.Key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrCacheUnavailable, err)
	}
	return nil
}
