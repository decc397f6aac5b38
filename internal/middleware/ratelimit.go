package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lombeo/sep490-backend-sub003/pkg/errors"
	"github.com/lombeo/sep490-backend-sub003/pkg/logger"
	"github.com/lombeo/sep490-backend-sub003/pkg/response"
)

// RateLimitConfig bounds requests per (client IP, route) in a fixed window.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces counter keys in the shared store.
	Prefix string
}

// RateLimit throttles requests using counters held in store. Store failures
// let the request through and are logged.
func RateLimit(store RateStore, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Prefix == "" {
		cfg.Prefix = "RATE:"
	}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		if store == nil || cfg.Limit <= 0 || cfg.Window <= 0 {
			c.Next()
			return
		}

		key := cfg.Prefix + c.ClientIP() + "|" + c.FullPath()
		count, ttl, err := store.Increment(c.Request.Context(), key, cfg.Window)
		if err != nil {
			log.Warn("rate limit store unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := cfg.Limit - count
		if remaining < 0 {
			remaining = 0
		}
		reset := int((ttl + time.Second - 1) / time.Second)

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > cfg.Limit {
			c.Header("Retry-After", strconv.Itoa(reset))
			response.Error(c, errors.ErrTooManyRequests)
			c.Abort()
			return
		}

		c.Next()
	}
}
