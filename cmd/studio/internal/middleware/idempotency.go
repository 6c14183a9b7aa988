package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/metrics"
)

const (
	maxIdempotencyKeyLen = 255
	defaultLockTTL       = 2 * time.Minute
	defaultMaxBody       = 1 << 20
)

// Cache is the subset of Redis commands the idempotency middleware needs.
// *circuitbreaker.RedisWrapper satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyMiddleware replays the stored response of a POST carrying an
// Idempotency-Key that was already served
type IdempotencyMiddleware struct {
	cache   Cache
	logger  *zap.Logger
	ttl     time.Duration
	lockTTL time.Duration
	maxBody int64
}

// IdempotencyOption customizes an IdempotencyMiddleware
type IdempotencyOption func(*IdempotencyMiddleware)

// WithLockTTL sets how long an in-flight key stays locked. It must outlast
// the slowest request the middleware wraps.
func WithLockTTL(d time.Duration) IdempotencyOption {
	return func(im *IdempotencyMiddleware) {
		if d > 0 {
			im.lockTTL = d
		}
	}
}

// WithMaxBody caps the request body hashed into the cache key.
func WithMaxBody(n int64) IdempotencyOption {
	return func(im *IdempotencyMiddleware) {
		if n > 0 {
			im.maxBody = n
		}
	}
}

// NewIdempotencyMiddleware creates a new idempotency middleware
func NewIdempotencyMiddleware(cache Cache, ttl time.Duration, logger *zap.Logger, opts ...IdempotencyOption) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	im := &IdempotencyMiddleware{
		cache:   cache,
		logger:  logger,
		ttl:     ttl,
		lockTTL: defaultLockTTL,
		maxBody: defaultMaxBody,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// IdempotencyResult stores the cached result of an idempotent request
type IdempotencyResult struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Timestamp  time.Time           `json:"timestamp"`
}

// responseRecorder captures the response for caching
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware returns the HTTP middleware function
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idempotencyKey := r.Header.Get("Idempotency-Key")
		if im.cache == nil || r.Method != http.MethodPost || idempotencyKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(idempotencyKey) > maxIdempotencyKeyLen {
			sendJSONError(w, "Idempotency-Key too long", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		cacheKey, err := im.generateCacheKey(w, r, idempotencyKey)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				sendJSONError(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			sendJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		cached, err := im.getCachedResult(ctx, cacheKey)
		if err == nil {
			im.logger.Debug("Returning cached idempotent response",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("path", r.URL.Path),
			)
			metrics.IdempotentReplays.Inc()

			for key, values := range cached.Headers {
				if w.Header().Get(key) == "" {
					w.Header()[key] = values
				}
			}
			w.Header().Set("X-Idempotency-Cached", "true")
			w.Header().Set("X-Idempotency-Key", idempotencyKey)
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}
		if !errors.Is(err, redis.Nil) {
			// Cache unavailable: serve without replay protection.
			im.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		lockKey := cacheKey + ":lock"
		acquired, err := im.cache.SetNX(ctx, lockKey, "1", im.lockTTL).Result()
		if err != nil {
			im.logger.Warn("Idempotency lock failed", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			sendJSONError(w, "A request with this Idempotency-Key is already in progress", http.StatusConflict)
			return
		}
		defer im.cache.Del(context.WithoutCancel(ctx), lockKey)

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		// Only cache successful responses (2xx)
		if recorder.statusCode >= 200 && recorder.statusCode < 300 {
			result := &IdempotencyResult{
				StatusCode: recorder.statusCode,
				Headers:    recorder.Header().Clone(),
				Body:       recorder.body.Bytes(),
				Timestamp:  time.Now().UTC(),
			}
			if err := im.cacheResult(context.WithoutCancel(ctx), cacheKey, result); err != nil {
				im.logger.Error("Failed to cache idempotent response",
					zap.Error(err),
					zap.String("idempotency_key", idempotencyKey),
				)
			} else {
				im.logger.Debug("Cached idempotent response",
					zap.String("idempotency_key", idempotencyKey),
					zap.String("path", r.URL.Path),
					zap.Int("status_code", recorder.statusCode),
				)
			}
		}
	})
}

// generateCacheKey hashes the key with the path and body, so reusing a key
// for a different request does not replay the wrong response.
func (im *IdempotencyMiddleware) generateCacheKey(w http.ResponseWriter, r *http.Request, idempotencyKey string) (string, error) {
	h := sha256.New()
	h.Write([]byte(idempotencyKey))
	h.Write([]byte{0})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{0})

	if r.Body != nil {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, im.maxBody))
		if err != nil {
			return "", err
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}

	hash := hex.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("idempotency:%s", hash[:32]), nil
}

// getCachedResult retrieves a cached result from Redis. A miss is redis.Nil.
func (im *IdempotencyMiddleware) getCachedResult(ctx context.Context, key string) (*IdempotencyResult, error) {
	data, err := im.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var result IdempotencyResult
	if err := json.Unmarshal(data, &result); err != nil {
		im.logger.Warn("Discarding unreadable idempotency entry", zap.String("key", key), zap.Error(err))
		return nil, redis.Nil
	}

	return &result, nil
}

// cacheResult stores a result in Redis
func (im *IdempotencyMiddleware) cacheResult(ctx context.Context, key string, result *IdempotencyResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return im.cache.Set(ctx, key, data, im.ttl).Err()
}

func sendJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
