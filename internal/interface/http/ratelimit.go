package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// Per-actor token bucket guarding routes that call the handwriting analyzer.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig holds configuration for the rate limiter.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per user. Zero disables limiting.
	RequestsPerMinute int

	// BurstSize is the number of requests a fresh bucket allows at once.
	BurstSize int

	// IdleTTL drops buckets not touched for this long.
	IdleTTL time.Duration
}

// RateLimiter implements per-user rate limiting using the token bucket algorithm.
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time

	mu          sync.Mutex
	buckets     map[string]*tokenBucket
	lastCleanup time.Time
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a limiter. It returns nil when limiting is disabled.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		return nil
	}
	if config.BurstSize < 1 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		config:      config,
		now:         time.Now,
		buckets:     make(map[string]*tokenBucket),
		lastCleanup: time.Now(),
	}
}

// Allow consumes a token for key. When no token is left it reports how long
// the caller should wait.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupLocked(now)

	rate := float64(rl.config.RequestsPerMinute) / 60.0
	burst := float64(rl.config.BurstSize)

	b, ok := rl.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: burst, lastRefill: now}
		rl.buckets[key] = b
	}

	refill := rate * now.Sub(b.lastRefill).Seconds()
	b.tokens = math.Min(burst, b.tokens+refill)
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	deficit := 1 - b.tokens
	wait := deficit / rate * float64(time.Second)
	return false, time.Duration(math.Ceil(wait))
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	if now.Sub(rl.lastCleanup) < rl.config.IdleTTL {
		return
	}
	for key, b := range rl.buckets {
		if now.Sub(b.lastRefill) > rl.config.IdleTTL {
			delete(rl.buckets, key)
		}
	}
	rl.lastCleanup = now
}

// rateLimitMiddleware rejects requests over the actor's budget with 429. It
// must run after authMiddleware.
func rateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil {
			c.Next()
			return
		}
		allowed, retryAfter := rl.Allow(actorFrom(c).UserID)
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			writeJSONError(c, http.StatusTooManyRequests, "rate_limited",
				"too many requests, retry in "+strconv.Itoa(seconds)+"s")
			return
		}
		c.Next()
	}
}
