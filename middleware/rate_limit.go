package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/gin-gonic/gin"
)

type window struct {
	start time.Time
	count int
}

// RateLimiter counts requests per key in fixed windows
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	rate    int           // requests per window
	period  time.Duration // window length
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per period
func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		rate:    rate,
		period:  period,
		now:     time.Now,
	}
}

// Allow records a request for key. When the key is over its limit it
// returns false and the time until its window resets.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		if len(l.windows) > 4096 {
			l.sweep(now)
		}
		l.windows[key] = &window{start: now, count: 1}
		return true, 0
	}

	if w.count >= l.rate {
		return false, w.start.Add(l.period).Sub(now)
	}
	w.count++
	return true, 0
}

// sweep drops expired windows. Must be called with lock held
func (l *RateLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.period {
			delete(l.windows, k)
		}
	}
}

// RateLimit limits requests per authenticated user, or per client IP for
// anonymous requests
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if username := GetUsername(c); username != "" {
			key = "user:" + username
		}

		allowed, retryAfter := limiter.Allow(key)
		if !allowed {
			logger.Warn(c.Request.Context(), "rate limit exceeded",
				"key", key,
				"path", c.Request.URL.Path,
			)

			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds()+0.999)))
			abortWithError(c, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}

		c.Next()
	}
}
