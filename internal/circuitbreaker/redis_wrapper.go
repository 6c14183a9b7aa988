package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisBreakerName    = "redis"
	redisBreakerService = "http-middleware"
)

// RedisWrapper wraps the commands used by the HTTP middleware with a circuit
// breaker. redis.Nil is a cache miss, not a failure.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, settings Settings, logger *zap.Logger) *RedisWrapper {
	config := settings.ToConfig(RedisSettings())
	config.IsFailure = func(err error) bool { return !errors.Is(err, redis.Nil) }
	cb := NewCircuitBreaker(redisBreakerName, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(redisBreakerName, redisBreakerService, cb)

	return &RedisWrapper{
		client: client,
		cb:     cb,
		logger: logger,
	}
}

func (rw *RedisWrapper) execute(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, fn)
	success := err == nil || errors.Is(err, redis.Nil)
	GlobalMetricsCollector.RecordRequest(redisBreakerName, redisBreakerService, rw.cb.State(), success)
	return err
}

// Ping wraps Redis Ping with circuit breaker
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var result *redis.StatusCmd
	if err := rw.execute(ctx, func() error {
		result = rw.client.Ping(ctx)
		return result.Err()
	}); result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Get wraps Redis Get with circuit breaker
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var result *redis.StringCmd
	if err := rw.execute(ctx, func() error {
		result = rw.client.Get(ctx, key)
		return result.Err()
	}); result == nil {
		result = redis.NewStringCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Set wraps Redis Set with circuit breaker
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var result *redis.StatusCmd
	if err := rw.execute(ctx, func() error {
		result = rw.client.Set(ctx, key, value, expiration)
		return result.Err()
	}); result == nil {
		result = redis.NewStatusCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// SetNX wraps Redis SetNX with circuit breaker
func (rw *RedisWrapper) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	var result *redis.BoolCmd
	if err := rw.execute(ctx, func() error {
		result = rw.client.SetNX(ctx, key, value, expiration)
		return result.Err()
	}); result == nil {
		result = redis.NewBoolCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// IncrWithExpiry increments key and sets its TTL when the key is new.
func (rw *RedisWrapper) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := rw.execute(ctx, func() error {
		var err error
		count, err = rw.client.Incr(ctx, key).Result()
		if err != nil {
			return err
		}
		if count == 1 {
			return rw.client.Expire(ctx, key, ttl).Err()
		}
		return nil
	})
	return count, err
}

// Del wraps Redis Del with circuit breaker
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var result *redis.IntCmd
	if err := rw.execute(ctx, func() error {
		result = rw.client.Del(ctx, keys...)
		return result.Err()
	}); result == nil {
		result = redis.NewIntCmd(ctx)
		result.SetErr(err)
	}
	return result
}

// Close closes the underlying client
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
