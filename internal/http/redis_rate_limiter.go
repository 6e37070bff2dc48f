package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type redisRateLimiter struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisRateLimiter constructs a Redis backed rate limiter so limits hold
// across API processes. Redis errors fail open.
func NewRedisRateLimiter(ctx context.Context, addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: db}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger.With("component", "rate_limiter"),
		prefix:  "athlink:ratelimit:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (rl *redisRateLimiter) Allow(rule rateRule, caller string) rateDecision {
	if rule.limit <= 0 {
		return rateDecision{allowed: true}
	}
	rule = rule.normalized()
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	key := rl.prefix + rule.route + ":" + caller
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, rule.window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		rl.logRedisError("window", err)
		return rateDecision{allowed: true}
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = rule.window
	}
	count := int(incr.Val())
	return rateDecision{
		allowed:   count <= rule.limit,
		count:     count,
		windowEnd: time.Now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}

func (rl *redisRateLimiter) logRedisError(op string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "op", op, "error", err)
}
