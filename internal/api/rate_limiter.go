package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/wallet-pnl/internal/errors"
)

// sweepThreshold is the client count above which idle limiters are evicted
const sweepThreshold = 10000

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	maxIdle  time.Duration
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter allowing rps requests per second
// per client with bursts of burst
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		maxIdle:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether client may make a request now
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	now := rl.now()

	if len(rl.limiters) > sweepThreshold {
		for key, cl := range rl.limiters {
			if now.Sub(cl.lastSeen) > rl.maxIdle {
				delete(rl.limiters, key)
			}
		}
	}

	cl, ok := rl.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[client] = cl
	}
	cl.lastSeen = now
	rl.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

// clientIP returns the first X-Forwarded-For hop, or the remote host
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that enforces per-IP rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.Allow(clientIP(r)) {
				catErr := apperrors.NewRateLimitError()
				respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, map[string]interface{}{
					"limit": float64(rl.limit),
					"burst": rl.burst,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
