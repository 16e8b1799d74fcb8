package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByClientIP charges requests to the client address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByIdentity charges authenticated requests to the studio member and
// falls back to the client address.
func ByIdentity(c *gin.Context) string {
	if orgID, userID := GetIdentity(c); userID != "" {
		return "u:" + orgID + ":" + userID
	}
	return "ip:" + c.ClientIP()
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key. Idle buckets are released by
// Sweep, which the scheduler runs periodically.
type Limiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rps        rate.Limit
	burst      int
	retryAfter string
	now        func() time.Time
}

// NewLimiter allows rps sustained requests per second per key with the
// given burst.
func NewLimiter(rps rate.Limit, burst int) *Limiter {
	retry := 1
	if rps > 0 && float64(rps) < 1 {
		retry = int(math.Ceil(1 / float64(rps)))
	}
	return &Limiter{
		buckets:    make(map[string]*bucket),
		rps:        rps,
		burst:      burst,
		retryAfter: strconv.Itoa(retry),
		now:        time.Now,
	}
}

// Allow charges one request to key.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = l.now()
	l.mu.Unlock()
	return b.lim.Allow()
}

// Sweep drops buckets idle for longer than idle and reports how many
// remain.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
	return len(l.buckets)
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (l *Limiter) Middleware(key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(key(c)) {
			c.Header("Retry-After", l.retryAfter)
			abort(c, http.StatusTooManyRequests, "rate_limited", "Too many requests, slow down")
			return
		}
		c.Next()
	}
}
