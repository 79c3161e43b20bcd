package httpkit

import (
	"net/http"
	"sync"
	"time"

	"photobridge_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// limiterIdleTTL is how long an IP entry survives without traffic.
	limiterIdleTTL = 10 * time.Minute
	// limiterSweepEvery triggers an eviction pass after this many inserts.
	limiterSweepEvery = 1000
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. Idle entries are
// evicted so the map stays bounded.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	inserts  int
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*ipEntry),
		rate:     r,
		burst:    burst,
		log:      log,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, ok := i.limiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(i.rate, i.burst)}
		i.limiters[ip] = entry
		i.inserts++
		if i.inserts%limiterSweepEvery == 0 {
			i.evictIdle()
		}
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// evictIdle removes entries past the idle TTL. Caller holds the mutex.
func (i *IPRateLimiter) evictIdle() {
	cutoff := time.Now().Add(-limiterIdleTTL)
	for ip, entry := range i.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(i.limiters, ip)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !i.getLimiter(ip).Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthRateLimiter carries the tighter per-IP budget the credential
// endpoints are registered with.
type AuthRateLimiter struct {
	*IPRateLimiter
}

// NewAuthRateLimiter allows 5 attempts per minute per IP.
func NewAuthRateLimiter(log *logger.Logger) *AuthRateLimiter {
	return &AuthRateLimiter{IPRateLimiter: NewIPRateLimiter(rate.Limit(5.0/60.0), 5, log)}
}
