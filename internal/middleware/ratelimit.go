package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mlyard/mlyard/internal/pkg/database"
)

// RateLimitConfig configures the rate limiter
type RateLimitConfig struct {
	// Max requests per window
	Max int64
	// Window duration
	Window time.Duration
	// Key generator function
	KeyGenerator func(*fiber.Ctx) string
	// Skip function
	Skip func(*fiber.Ctx) bool
}

// DefaultRateLimitConfig returns default rate limit config
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Max:    300,
		Window: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if principal, ok := GetPrincipal(c); ok {
				return principal.Subject
			}
			return c.IP()
		},
		Skip: HealthSkipper,
	}
}

// RateLimitMiddleware creates a rate limiter backed by Redis
type RateLimitMiddleware struct {
	redis  *database.RedisDB
	config RateLimitConfig
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(redis *database.RedisDB, config ...RateLimitConfig) *RateLimitMiddleware {
	cfg := DefaultRateLimitConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return &RateLimitMiddleware{
		redis:  redis,
		config: cfg,
	}
}

// Handler returns the rate limit handler
func (m *RateLimitMiddleware) Handler() fiber.Handler {
	windowSec := int64(m.config.Window.Seconds())

	return func(c *fiber.Ctx) error {
		if m.config.Skip != nil && m.config.Skip(c) {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s", m.config.KeyGenerator(c))

		allowed, remaining, err := m.redis.RateLimit(c.Context(), key, m.config.Max, m.config.Window)
		if err != nil {
			// Redis down should not take the API with it
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(m.config.Max, 10))
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if !allowed {
			c.Set("Retry-After", strconv.FormatInt(windowSec, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

// InvocationRateLimit limits invocations per endpoint name. Inference
// traffic gets its own budget so a hot endpoint cannot starve the
// tracking API.
func (m *RateLimitMiddleware) InvocationRateLimit(maxPerMinute int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		workspaceID, ok := GetWorkspaceID(c)
		if !ok {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:invoke:%s:%s", workspaceID, c.Params("name"))

		allowed, _, err := m.redis.RateLimit(c.Context(), key, maxPerMinute, time.Minute)
		if err != nil {
			return c.Next()
		}

		if !allowed {
			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Too Many Requests",
				"message": "Endpoint invocation rate limit exceeded",
			})
		}

		return c.Next()
	}
}
