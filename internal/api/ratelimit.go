package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/journalpost/internal/auth"
	"golang.org/x/time/rate"
)

// keyedLimiter keeps one token bucket per caller. The bucket refills to
// `requests` over `window`.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newKeyedLimiter(window time.Duration, requests int) *keyedLimiter {
	if requests <= 0 {
		requests = 120
	}
	if window <= 0 {
		window = time.Minute
	}
	return &keyedLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
	}
}

func (l *keyedLimiter) allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// rateLimitByOwner throttles authenticated routes per API key; unauthenticated
// routes fall back to the client IP.
func rateLimitByOwner(l *keyedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.OwnerID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
