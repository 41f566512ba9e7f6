package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	. "todolist/internal/adapter/http/helper"
	"todolist/internal/core/telemetry"
	"todolist/pkg/config"
	"todolist/pkg/logger"
)

const defaultRule = "default"

type RateLimiter struct {
	cache   *cache.Cache
	rules   map[string]config.RateLimitRule
	prefix  string
	logger  *logger.Logger
	metrics *telemetry.AppMetrics
	mutex   sync.Mutex
	now     func() time.Time
}

type RateLimitEntry struct {
	Count     int
	ResetTime time.Time
}

// NewRateLimiter keys its rules by "METHOD /path" or "/path", both relative
// to prefix. Entries expire lazily, no janitor goroutine is started.
func NewRateLimiter(cfg config.RateLimitConfig, prefix string, log *logger.Logger, metrics *telemetry.AppMetrics) *RateLimiter {
	if log == nil {
		log = logger.NewNop()
	}

	rules := make(map[string]config.RateLimitRule, len(cfg.Routes)+1)

	for key, rule := range cfg.Routes {
		rules[key] = rule
	}

	if _, ok := rules[defaultRule]; !ok {
		rules[defaultRule] = config.RateLimitRule{Requests: 60, Window: config.Duration{Duration: time.Minute}}
	}

	return &RateLimiter{
		cache:   cache.New(time.Minute, 0),
		rules:   rules,
		prefix:  prefix,
		logger:  log,
		metrics: metrics,
		now:     time.Now,
	}
}

func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()

		if path == "" {
			path = c.Request.URL.Path
		}

		route := strings.TrimPrefix(path, rl.prefix)
		methodPath := c.Request.Method + " " + route

		rule := rl.ruleFor(methodPath, route)
		key := fmt.Sprintf("rate_limit:%s:%s", methodPath, clientIP(c))

		allowed, remaining, resetTime := rl.checkRateLimit(key, rule)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimitHit(c.Request.Context(), path)
			}

			rl.logger.Ctx(c.Request.Context()).Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("path", path),
				zap.Int("limit", rule.Requests),
				zap.Duration("window", rule.Window.Duration))

			retryAfter := int(resetTime.Sub(rl.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			SendTooManyRequestsError(c,
				fmt.Sprintf("Too many requests. Limit: %d per %v", rule.Requests, rule.Window.Duration),
				retryAfter)

			return
		}

		if rl.metrics != nil {
			rl.metrics.RecordRateLimitAllowed(c.Request.Context(), path)
		}

		c.Next()
	}
}

func (rl *RateLimiter) ruleFor(methodPath, route string) config.RateLimitRule {
	if rule, ok := rl.rules[methodPath]; ok {
		return rule
	}

	if rule, ok := rl.rules[route]; ok {
		return rule
	}

	return rl.rules[defaultRule]
}

func (rl *RateLimiter) checkRateLimit(key string, rule config.RateLimitRule) (bool, int, time.Time) {
	now := rl.now()

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if item, found := rl.cache.Get(key); found {
		entry := item.(RateLimitEntry)

		if now.Before(entry.ResetTime) {
			if entry.Count >= rule.Requests {
				return false, 0, entry.ResetTime
			}

			entry.Count++
			rl.cache.Set(key, entry, entry.ResetTime.Sub(now))

			return true, rule.Requests - entry.Count, entry.ResetTime
		}
	}

	resetTime := now.Add(rule.Window.Duration)
	rl.cache.Set(key, RateLimitEntry{Count: 1, ResetTime: resetTime}, rule.Window.Duration)

	return true, rule.Requests - 1, resetTime
}

// clientIP resolves through gin, which only believes X-Forwarded-For and
// X-Real-IP from trusted proxies.
func clientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}

	return "unknown"
}
