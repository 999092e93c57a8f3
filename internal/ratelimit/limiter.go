package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key.
type Limiter struct {
	mu     sync.Mutex
	limits map[string]*rate.Limiter
	rps    rate.Limit
	burst  int
}

// New creates a limiter allowing rps requests per second per key with the
// given burst. A non-positive rps disables limiting.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limits: make(map[string]*rate.Limiter),
		rps:    rate.Limit(rps),
		burst:  burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limits[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.limits[key] = lim
	return lim
}

// Allow checks if a request is allowed for the given key.
func (l *Limiter) Allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}

// Wait blocks until key may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.rps <= 0 {
		return nil
	}
	return l.get(key).Wait(ctx)
}

// Middleware rejects requests over the limit with 429. keyFn picks the
// bucket, typically the authenticated user.
func (l *Limiter) Middleware(keyFn func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFn(r)) {
				if l.rps > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(max(1, int(1/float64(l.rps)))))
				}
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
