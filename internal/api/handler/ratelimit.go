package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jmerrifield20/threatlens/internal/identity"
)

const (
	limiterSweep = 5 * time.Minute
	limiterIdle  = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter returns a Gin middleware enforcing a token bucket per caller.
// Callers already authenticated by an earlier middleware are keyed by user
// ID, everyone else by client IP.
// Idle buckets are swept until ctx is cancelled. rps <= 0 disables limiting.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = rps
	}

	var mu sync.Mutex
	limiters := make(map[string]*clientLimiter)

	go func() {
		t := time.NewTicker(limiterSweep)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				mu.Lock()
				for key, l := range limiters {
					if time.Since(l.lastSeen) > limiterIdle {
						delete(limiters, key)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := identity.UserIDFromCtx(c); id != "" {
			key = "user:" + id
		}

		mu.Lock()
		l, ok := limiters[key]
		if !ok {
			l = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiters[key] = l
		}
		l.lastSeen = time.Now()
		mu.Unlock()

		if !l.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
