package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-concierge/pkg/metrics"
	"github.com/ekaya-inc/ekaya-concierge/pkg/ratelimit"
)

// RateLimit rejects clients that exceed the limiter's budget with 429.
// Limiter errors are logged and the request is let through.
func RateLimit(limiter ratelimit.Limiter, window time.Duration, m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("Rate limiter unavailable, allowing request",
					zap.String("client", key),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(int64(math.Ceil(float64(d.ResetAt.UnixMilli())/1000)), 10))

			if !d.Allowed {
				m.RateLimited()
				logger.Info("Rate limit exceeded",
					zap.String("client", key),
					zap.String("path", r.URL.Path))
				h.Set("Retry-After", strconv.Itoa(int(d.RetryAfter(time.Now()).Seconds())))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded",
					fmt.Sprintf("Too many requests. Limit: %d per %d seconds", d.Limit, int(window.Seconds())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys the limiter by the connection's remote host.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
