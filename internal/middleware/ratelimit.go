package middleware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"socialfeed/internal/models"
	"socialfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy defines the behavior when the rate limit store (Redis) is unavailable.
type FailPolicy int

const (
	// FailOpen allows the request to proceed if Redis is unavailable.
	FailOpen FailPolicy = iota
	// FailClosed blocks the request (503 Service Unavailable) if Redis is unavailable.
	FailClosed
)

// Decision is the limiter's verdict for one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the window resets. Zero when unknown.
	RetryAfter time.Duration
}

var errNoLimiterStore = errors.New("redis client is nil")

func limiterBypassed() bool {
	switch os.Getenv("APP_ENV") {
	case "", "test", "development", "stress":
		return true
	}
	return false
}

// CheckRateLimit counts one hit for resource/id in a fixed window and reports
// whether it stays within limit. The counter and its expiry are written in a
// single transaction so a counter never outlives its window.
// Rate limiting is disabled when APP_ENV is unset, "test", "development" or "stress".
func CheckRateLimit(ctx context.Context, rdb *redis.Client, resource, id string, limit int, window time.Duration) (Decision, error) {
	if limiterBypassed() {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if rdb == nil {
		return Decision{}, errNoLimiterStore
	}

	key := fmt.Sprintf("rl:%s:%s", resource, id)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("rate_limit").Inc()
		return Decision{}, err
	}

	cnt := int(incr.Val())
	d := Decision{Allowed: cnt <= limit, Limit: limit, Remaining: max(limit-cnt, 0)}
	if left := ttl.Val(); left > 0 {
		d.RetryAfter = left
	}
	return d, nil
}

// RateLimit returns a Fiber middleware enforcing `limit` requests per `window`.
// It keys by the authenticated caller when there is one, otherwise by remote IP.
// It defaults to FailOpen policy.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, name ...string) fiber.Handler {
	return RateLimitWithPolicy(rdb, limit, window, FailOpen, name...)
}

// RateLimitWithPolicy returns a Fiber middleware enforcing `limit` requests per `window` with a specific failure policy.
// Responses carry X-RateLimit-Limit and X-RateLimit-Remaining. Rejections carry
// Retry-After and use the standard error body.
func RateLimitWithPolicy(rdb *redis.Client, limit int, window time.Duration, policy FailPolicy, name ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id string
		if uid, ok := CallerID(c); ok {
			id = "user:" + uid
		} else {
			id = "ip:" + c.IP()
		}

		resource := c.Path()
		if len(name) > 0 {
			resource = name[0]
		}

		d, err := CheckRateLimit(c.UserContext(), rdb, resource, id, limit, window)
		if err != nil {
			if policy == FailClosed {
				Logger.WarnContext(c.UserContext(), "rate limit fail-closed",
					"path", c.Path(), "resource", resource, "error", err)
				observability.RateLimitRejections.WithLabelValues(resource, "store_unavailable").Inc()
				return models.RespondWithError(c, &models.AppError{
					Code:    models.CodeStoreUnavailable,
					Message: "Rate limiting is unavailable.",
					Status:  fiber.StatusServiceUnavailable,
					Err:     err,
				})
			}
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			if d.RetryAfter > 0 {
				secs := int((d.RetryAfter + time.Second - 1) / time.Second)
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
			}
			observability.RateLimitRejections.WithLabelValues(resource, "exceeded").Inc()
			Logger.InfoContext(c.UserContext(), "rate limit exceeded",
				"resource", resource, "caller", id, "retry_after", d.RetryAfter)
			return models.RespondWithError(c, models.NewRateLimitedError())
		}
		return c.Next()
	}
}
