// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-caller token-bucket rate limiter. Every chat
// turn costs a hosted-table LLM call, so the limiter sits in front of the API
// primarily to protect that upstream quota; bookings and history reads ride
// along under the same buckets.
//
// The limiter is process-local (in-memory buckets, opportunistic eviction of
// idle entries). A horizontally scaled deployment needs a shared limiter
// instead; a single clinic instance does not.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity that owns its token bucket.
type keyFunc func(*gin.Context) string

// KeyByCaller buckets requests by the caller identity this API actually
// carries: the X-User-Email gateway header first, then a "userID" value an
// auth layer may have stored in the context, then the client IP. Keys are
// prefixed so the three namespaces cannot collide.
func KeyByCaller() keyFunc {
	return func(c *gin.Context) string {
		if email := strings.TrimSpace(c.GetHeader("X-User-Email")); email != "" {
			return "email:" + email
		}
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor pairs a bucket with its last-seen time so idle entries can be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces per-key token buckets. Buckets are created on demand
// in a mutex-guarded map and evicted after ttl of inactivity during periodic
// sweeps. Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

// NewRateLimiter constructs a RateLimiter replenishing rps tokens per second
// with the given burst size (coerced to at least 1), keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

// getVisitor returns the bucket for key, creating it if absent. Roughly every
// 5000 lookups it sweeps the map for entries idle past ttl. The sweep runs
// before the requested key is touched so a stale bucket can be evicted even
// when it is the one being fetched.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		lim := v.limiter
		rl.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	rl.mu.Unlock()
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay. Replays are served without consuming tokens: the work was already
// paid for on the first attempt.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the Gin middleware enforcing the limits. Rejected requests
// get a 429 with the standard error envelope shape and a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		key := rl.keyFn(c)
		lim := rl.getVisitor(key)

		if lim.Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
