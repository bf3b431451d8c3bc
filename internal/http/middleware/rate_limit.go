package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/meravakil/meravakil-backend/internal/http/response"
	"github.com/meravakil/meravakil-backend/internal/observability"
	"github.com/meravakil/meravakil-backend/internal/platform/logger"
)

var errRateLimited = errors.New("too many requests")

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Backend() string
}

type RateLimitConfig struct {
	// RPS and Burst configure the in-memory token bucket.
	RPS   float64
	Burst int
	// Window and Limit configure the Redis fixed window.
	Window time.Duration
	Limit  int
	// IdleTTL drops in-memory buckets not seen for this long.
	IdleTTL time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:     5,
		Burst:   20,
		Window:  time.Minute,
		Limit:   120,
		IdleTTL: 10 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type memoryLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	sweptAt time.Time
	now     func() time.Time
}

// NewMemoryLimiter keeps one token bucket per key in process memory.
func NewMemoryLimiter(cfg RateLimitConfig) Limiter {
	def := DefaultRateLimitConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &memoryLimiter{cfg: cfg, buckets: map[string]*bucket{}, now: time.Now}
}

func (l *memoryLimiter) Backend() string { return "memory" }

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	if now.Sub(l.sweptAt) > l.cfg.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.sweptAt = now
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1), nil
}

type redisLimiter struct {
	rdb    redis.UniversalClient
	window time.Duration
	limit  int
	prefix string
	now    func() time.Time
}

// NewRedisLimiter counts requests per key in fixed windows shared by all
// instances.
func NewRedisLimiter(rdb redis.UniversalClient, cfg RateLimitConfig) Limiter {
	def := DefaultRateLimitConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	return &redisLimiter{rdb: rdb, window: cfg.Window, limit: cfg.Limit, prefix: "meravakil:ratelimit:", now: time.Now}
}

func (l *redisLimiter) Backend() string { return "redis" }

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	k := l.prefix + key + ":" + strconv.FormatInt(slot, 10)
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// RateLimit rejects clients over their budget with 429. Limiter errors fail
// open so a Redis outage does not take the API down.
func RateLimit(log *logger.Logger, limiter Limiter, m *observability.Metrics) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		ok, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			if log != nil {
				log.Warn("Rate limiter unavailable", "backend", limiter.Backend(), "error", err)
			}
			c.Next()
			return
		}
		if !ok {
			m.IncRateLimited(limiter.Backend())
			c.Header("Retry-After", "1")
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
