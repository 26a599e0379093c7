package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"safety-poll-service/metrics"
	"safety-poll-service/models"
)

// SubmitterRefHeader carries the opaque submitter reference set by clients.
// Requests without it are limited by client IP instead.
const SubmitterRefHeader = "X-Submitter-Ref"

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SubmitterLimiter holds one token bucket per submitter key. Stale
// entries are evicted by a background sweep.
type SubmitterLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry

	limit rate.Limit
	burst int
	ttl   time.Duration

	retryAfter int
}

// NewSubmitterLimiter creates a limiter allowing perMinute submissions
// with the given burst, per submitter key.
func NewSubmitterLimiter(perMinute, burst int) *SubmitterLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	if burst < 1 {
		burst = 1
	}
	l := &SubmitterLimiter{
		entries:    make(map[string]*limiterEntry),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      burst,
		ttl:        10 * time.Minute,
		retryAfter: (60 + perMinute - 1) / perMinute,
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a submission from the given key may proceed.
func (l *SubmitterLimiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	return e.limiter.Allow()
}

// RetryAfterSeconds is the hint returned with RateLimited errors.
func (l *SubmitterLimiter) RetryAfterSeconds() int {
	return l.retryAfter
}

func (l *SubmitterLimiter) sweepLoop() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-l.ttl)
		l.mu.Lock()
		for key, e := range l.entries {
			if e.lastSeen.Before(cutoff) {
				delete(l.entries, key)
			}
		}
		l.mu.Unlock()
	}
}

// SubmitterKey identifies the submitter for rate limiting: the opaque
// ref header when present, the client IP otherwise.
func SubmitterKey(c *gin.Context) string {
	if ref := c.GetHeader(SubmitterRefHeader); ref != "" {
		return ref
	}
	return c.ClientIP()
}

// RateLimitMiddleware rejects submissions over the per-submitter cap with
// a RateLimited error and a retry-after hint. Violations are surfaced,
// never silently dropped.
func RateLimitMiddleware(l *SubmitterLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := SubmitterKey(c)
		if !l.Allow(key) {
			log.Warnf("Rate limit exceeded for submitter: %s", key)
			metrics.RateLimitedTotal.Inc()
			c.JSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error: &models.APIError{
					Kind:       models.ErrKindRateLimited,
					Message:    "submission cap exceeded, slow down",
					RetryAfter: l.RetryAfterSeconds(),
				},
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
