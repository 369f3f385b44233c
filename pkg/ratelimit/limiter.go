// Package ratelimit implements a per-IP fixed-window request limiter backed
// by Redis. The limiter fails open: if Redis is unreachable no request is
// ever rejected for rate reasons.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const window = time.Minute

// Limiter counts requests per source IP in one-minute windows
type Limiter struct {
	client *redis.Client
	limit  int64
}

// New connects to Redis at the given URL. A failed connection is logged and
// yields a disabled limiter, matching the fail-open contract.
func New(ctx context.Context, redisURL string, perMinute int) *Limiter {
	l := &Limiter{limit: int64(perMinute)}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[WARN] invalid REDIS_URL, rate limiting disabled: %v", err)
		return l
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] redis unreachable, rate limiting disabled: %v", err)
		client.Close()
		return l
	}

	l.client = client
	log.Printf("[STARTUP] rate limiter connected (%d req/min per IP)", perMinute)
	return l
}

// NewWithClient wraps an existing Redis client (used by tests)
func NewWithClient(client *redis.Client, perMinute int) *Limiter {
	return &Limiter{client: client, limit: int64(perMinute)}
}

// Enabled reports whether the limiter has a live Redis connection
func (l *Limiter) Enabled() bool {
	return l.client != nil
}

// Check increments the caller's window counter and reports whether the
// request exceeds the per-minute limit. Redis errors fail open.
func (l *Limiter) Check(ctx context.Context, sourceIP string) (limited bool, count int64) {
	if l.client == nil || sourceIP == "" {
		return false, 0
	}

	key := fmt.Sprintf("rate:%s:1min", sourceIP)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[WARN] rate limit check failed: %v", err)
		return false, 0
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, window).Err(); err != nil {
			log.Printf("[WARN] rate limit expiry failed: %v", err)
		}
	}
	return count > l.limit, count
}

// Close releases the Redis connection
func (l *Limiter) Close() {
	if l.client != nil {
		l.client.Close()
	}
}
