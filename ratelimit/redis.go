package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window counters in Redis so the limit holds across
// service replicas. Bucket keys expire on their own after two windows.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Infof("rate limiter using redis at %s", addr)
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, int64, error) {
	bucket := bucketStart(now, window)
	prevBucket := prevBucketStart(bucket, window)

	currKey := counterKey(key, bucket)
	prevKey := counterKey(key, prevBucket)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, currKey)
	pipe.Expire(ctx, currKey, 2*window)
	prev := pipe.Get(ctx, prevKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}

	prevCount, err := prev.Int64()
	if err == redis.Nil {
		prevCount = 0
	} else if err != nil {
		return 0, 0, fmt.Errorf("redis get: %w", err)
	}

	return incr.Val(), prevCount, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func counterKey(key string, bucket int64) string {
	return fmt.Sprintf("vidgrab:rl:%s:%d", key, bucket)
}
