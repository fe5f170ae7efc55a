package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/response"
)

// RateLimiter is a fixed-window limiter shared by all instances through Redis.
// It keys on the authenticated user, falling back to the client IP.
type RateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter allowing limit requests per window.
// A limit of zero or less disables limiting.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:    rdb,
		limit:  limit,
		window: window,
		log:    log.With().Str("component", "rate_limiter").Logger(),
		now:    time.Now,
	}
}

// Middleware returns a Gin middleware limiting requests in bucket.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware(bucket string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.limit <= 0 || rl.rdb == nil {
			c.Next()
			return
		}

		subject := c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			subject = claims.UserID.String()
		}

		windowStart := rl.now().UnixNano() / int64(rl.window)
		key := config.CacheKey.RateLimitKey(bucket, subject, windowStart)

		count, err := rl.incr(c.Request.Context(), key)
		if err != nil {
			rl.log.Warn().Err(err).Str("bucket", bucket).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}

		remaining := rl.limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > rl.limit {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) incr(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
