package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"fintherapy-backend/internal/delivery/http/response"
	"fintherapy-backend/pkg/logger"
)

// RateLimitConfig holds configuration for fixed-window rate limiting
type RateLimitConfig struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	KeyFunc   func(*gin.Context) string
}

// AdminRateLimitConfig limits admin calls per authenticated user, falling back to IP
func AdminRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:     30,
		Window:    time.Minute,
		KeyPrefix: "rl:admin:",
		KeyFunc: func(c *gin.Context) string {
			if id := c.GetString("UserID"); id != "" {
				return id
			}
			return c.ClientIP()
		},
	}
}

// KEYS[1] = counter key, ARGV[1] = window in seconds. Returns {count, ttl}.
const rateLimitLuaScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`

type windowEntry struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter counts in Redis when a client is given and in memory otherwise.
// A Redis error fails open onto the in-memory counters.
type RateLimiter struct {
	cfg    RateLimitConfig
	client *goredis.Client
	local  sync.Map
}

func NewRateLimiter(cfg RateLimitConfig, client *goredis.Client) *RateLimiter {
	return &RateLimiter{cfg: cfg, client: client}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.cfg.KeyPrefix + rl.cfg.KeyFunc(c)
		count, resetAt := rl.hit(c.Request.Context(), key, time.Now())

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Limit))
		c.Header("X-RateLimit-Reset", resetAt.Format(time.RFC3339))

		if count > rl.cfg.Limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			logger.Log.Warn("Rate limit exceeded", "key", key, "path", c.FullPath())
			response.Error(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rl.cfg.Limit-count))
		c.Next()
	}
}

func (rl *RateLimiter) hit(ctx context.Context, key string, now time.Time) (int, time.Time) {
	if rl.client != nil {
		count, resetAt, err := rl.hitRedis(ctx, key)
		if err == nil {
			return count, resetAt
		}
		logger.Log.Warn("Redis rate limit failed, using local counters", "error", err)
	}
	return rl.hitLocal(key, now)
}

func (rl *RateLimiter) hitRedis(ctx context.Context, key string) (int, time.Time, error) {
	result, err := rl.client.Eval(ctx, rateLimitLuaScript, []string{key}, int(rl.cfg.Window.Seconds())).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis rate limit eval failed: %w", err)
	}
	arr, ok := result.([]interface{})
	if !ok || len(arr) < 2 {
		return 0, time.Time{}, fmt.Errorf("unexpected redis result format")
	}
	count, _ := arr[0].(int64)
	ttl, _ := arr[1].(int64)
	return int(count), time.Now().Add(time.Duration(ttl) * time.Second), nil
}

func (rl *RateLimiter) hitLocal(key string, now time.Time) (int, time.Time) {
	v, _ := rl.local.LoadOrStore(key, &windowEntry{resetAt: now.Add(rl.cfg.Window)})
	entry := v.(*windowEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.resetAt) {
		entry.count = 0
		entry.resetAt = now.Add(rl.cfg.Window)
	}
	entry.count++
	return entry.count, entry.resetAt
}
