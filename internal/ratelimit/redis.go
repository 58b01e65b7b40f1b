package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts with INCR on per-minute keys. INCR is atomic on the
// server, so concurrent callers never lose updates; keys expire two minutes
// after creation since a bucket is only ever read within its own minute.
type RedisLimiter struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedisClient(addr, password string, dbNum int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis addr is empty")
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       dbNum,
	}), nil
}

func NewRedisLimiter(rdb *redis.Client) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, ttl: 2 * time.Minute, now: time.Now}
}

func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, scope Scope, key string, limit int64) (Result, error) {
	if l == nil || l.rdb == nil {
		return Result{}, fmt.Errorf("ratelimit: no redis client")
	}
	bucket := MinuteBucket(l.now()).Unix()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", scope, key, bucket)

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return Result{}, err
	}
	if count == 1 {
		_ = l.rdb.Expire(ctx, redisKey, l.ttl).Err()
	}
	return Result{Allowed: count <= limit, Count: count, Limit: limit}, nil
}
