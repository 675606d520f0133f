package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/saferoute/saferoute/internal/api/models"
)

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Requests per window. Zero or less disables limiting.
	RequestLimit int
	// Window duration
	WindowLength time.Duration
}

// PerMinute returns a limit of n requests per minute.
func PerMinute(n int) RateLimitConfig {
	return RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}

// Default rate limit configurations.
var (
	// AdminRateLimit applies to administrative endpoints (10 req/min).
	AdminRateLimit = PerMinute(10)

	// ComputeRateLimit applies to route computation, which calls the
	// directions provider (30 req/min).
	ComputeRateLimit = PerMinute(30)

	// StandardRateLimit applies to cheap read and ranking endpoints (100 req/min).
	StandardRateLimit = PerMinute(100)
)

// RateLimitByIP creates a rate limiter keyed by client IP address.
// Uses X-Forwarded-For if present (extracted by chi's RealIP middleware).
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, httprate.KeyByRealIP)
}

// RateLimitBySubject creates a rate limiter keyed by the authenticated token
// subject, falling back to client IP for anonymous requests.
func RateLimitBySubject(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return rateLimit(cfg, keyBySubjectOrIP)
}

func rateLimit(cfg RateLimitConfig, key httprate.KeyFunc) func(http.Handler) http.Handler {
	if cfg.RequestLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.WindowLength <= 0 {
		cfg.WindowLength = time.Minute
	}
	retryAfter := strconv.Itoa(int(math.Ceil(cfg.WindowLength.Seconds())))

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			problem := models.NewTooManyRequests(GetRequestID(r.Context()), "Rate limit exceeded. Please try again later.")
			problem.Instance = r.URL.Path
			// httprate does not expose the exact reset time; a full window is the safe estimate.
			w.Header().Set("Retry-After", retryAfter)
			problem.Write(w)
		}),
	)
}

// keyBySubjectOrIP returns the token subject if authenticated, otherwise the client IP.
func keyBySubjectOrIP(r *http.Request) (string, error) {
	if subject := GetSubject(r.Context()); subject != "" {
		return "sub:" + subject, nil
	}
	return httprate.KeyByRealIP(r)
}
