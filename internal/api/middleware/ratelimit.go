package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/metrics"
	"github.com/parley-chat/parley/internal/store"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int64
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// Limits cover the abuse-prone endpoints: account creation, login
// attempts, and chat creation.
type RateLimiter struct {
	redis  *store.RedisStore
	logger zerolog.Logger
	limits map[string]RateLimit
}

// NewRateLimiter creates a new rate limiter. A nil store disables
// limiting entirely (development without Redis).
func NewRateLimiter(redis *store.RedisStore, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /signup": {10, time.Hour},
			"POST /login":  {20, time.Minute},
			"POST /chats":  {30, time.Minute},
		},
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit, ok := rl.limits[r.Method+" "+r.URL.Path]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ip := realIP(r)
		now := time.Now()
		bucket := fmt.Sprintf("%s:%s:%d", r.URL.Path, ip, now.Unix()/int64(limit.Window.Seconds()))

		count, err := rl.redis.IncrementRateLimit(r.Context(), bucket, limit.Window)
		if err != nil {
			// Redis trouble must not take the API down.
			next.ServeHTTP(w, r)
			return
		}

		remaining := limit.Requests - count
		if remaining < 0 {
			remaining = 0
		}
		resetAt := now.Truncate(limit.Window).Add(limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Requests, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if count > limit.Requests {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			rl.logger.Warn().
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Int64("count", count).
				Msg("rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// realIP extracts the client IP from proxy headers or the connection.
func realIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
