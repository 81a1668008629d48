package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/zfogg/listingboard/internal/errors"
	"github.com/zfogg/listingboard/internal/metrics"
	"github.com/zfogg/listingboard/internal/util"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// Requests per window
	Limit int
	// Window duration
	Window time.Duration
	// KeyFunc picks the bucket a request is charged to (default: actor, then client IP)
	KeyFunc func(c *gin.Context) string
	// IdleTTL drops buckets that have not been used for this long
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  100,
		Window: time.Minute,
	}
}

// InteractionRateLimitConfig limits toggles and clicks per actor
func InteractionRateLimitConfig(perMinute int) RateLimitConfig {
	if perMinute <= 0 {
		perMinute = 60
	}
	return RateLimitConfig{
		Limit:  perMinute,
		Window: time.Minute,
	}
}

// ActorOrIPKey charges authenticated requests to the actor and anonymous ones to the client IP
func ActorOrIPKey(c *gin.Context) string {
	if actor := util.ActorFromContext(c); actor != "" {
		return "user:" + actor
	}
	return "ip:" + c.ClientIP()
}

// maxBuckets triggers an idle sweep before a new key is admitted
const maxBuckets = 10000

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	config  RateLimitConfig
	limit   rate.Limit
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a rate limiter with the given configuration
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimitConfig().Limit
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = ActorOrIPKey
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * config.Window
	}
	return &RateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.Limit) / config.Window.Seconds()),
		buckets: make(map[string]*bucket),
	}
}

// Reserve charges one token to key. It returns false and the wait until the
// next token when the bucket is empty.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= maxBuckets {
			rl.sweepLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.config.Limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.config.Window
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many were dropped
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.sweepLocked(time.Now())
}

func (rl *RateLimiter) sweepLocked(now time.Time) int {
	cutoff := now.Add(-rl.config.IdleTTL)
	dropped := 0
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
			dropped++
		}
	}
	return dropped
}

// Middleware returns the gin handler enforcing the limit
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, wait := rl.Reserve(rl.config.KeyFunc(c))
		if !allowed {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			metrics.RecordRateLimitExceeded(c.FullPath(), c.Request.Method)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			util.RespondWithAPIError(c, apperrors.RateLimited(""))
			c.Abort()
			return
		}
		c.Next()
	}
}
