package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/redpen/internal/pkg/errcode"
	"github.com/xxxsen/redpen/internal/pkg/response"
)

const rateLimitSweepThreshold = 4096

type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func RateLimit(window time.Duration) gin.HandlerFunc {
	limiter := newRateLimiter(window)
	return limiter.handle
}

func newRateLimiter(window time.Duration) *rateLimiter {
	return &rateLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.window <= 0 {
		c.Next()
		return
	}
	ip := c.ClientIP()
	reviewer := LocalReviewer
	if v, ok := c.Get(ContextReviewerIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			reviewer = id
		}
	}
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	key := strings.Join([]string{ip, reviewer, path}, "|")

	now := l.now()
	l.mu.Lock()
	last, exists := l.last[key]
	if exists && now.Sub(last) < l.window {
		l.mu.Unlock()
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", ip),
			zap.String("reviewer_id", reviewer),
			zap.String("path", path),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	l.last[key] = now
	if len(l.last) > rateLimitSweepThreshold {
		l.sweepLocked(now)
	}
	l.mu.Unlock()
	c.Next()
}

// sweepLocked drops entries older than the window so the map stays bounded by
// active traffic rather than total distinct keys ever seen.
func (l *rateLimiter) sweepLocked(now time.Time) {
	for key, last := range l.last {
		if now.Sub(last) >= l.window {
			delete(l.last, key)
		}
	}
}
