package middleware

import (
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"
	"banking-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// PathMatcher matches request paths against configured patterns. A pattern
// ending in "/**" matches the prefix itself and everything below it; other
// patterns use path.Match syntax.
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher validates and stores the patterns.
func NewPathMatcher(patterns []string) (*PathMatcher, error) {
	for _, p := range patterns {
		if strings.HasSuffix(p, "/**") {
			continue
		}
		if _, err := path.Match(p, "/"); err != nil {
			return nil, err
		}
	}
	return &PathMatcher{patterns: patterns}, nil
}

// Match reports whether p falls under any pattern.
func (m *PathMatcher) Match(p string) bool {
	for _, pattern := range m.patterns {
		if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
			if p == prefix || strings.HasPrefix(p, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// RateLimit admits requests on matching paths through limiter, keyed by
// client. Rejected requests get 429 and never reach a handler. Limiter errors
// let the request through.
func RateLimit(limiter ports.RateLimiter, matcher *PathMatcher, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !matcher.Match(c.Request.URL.Path) {
			c.Next()
			return
		}

		key := ClientKey(c)

		decision, err := limiter.Admit(c.Request.Context(), key)
		if err != nil {
			log.Warn().Err(err).Str("client", key).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
			log.Warn().Str("client", key).Str("path", c.Request.URL.Path).Msg("rate limit exceeded")
			response.Abort(c, apperror.ErrRateLimitExceeded())
			return
		}

		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
