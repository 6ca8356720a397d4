package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLimiterIdleTTL is how long a key's bucket survives without traffic.
// It must exceed burst/rate so that a swept bucket was already full.
const DefaultLimiterIdleTTL = 10 * time.Minute

type actorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ActorRateLimiter hands out one token bucket per key. Buckets idle for
// longer than IdleTTL are swept on a later lookup.
type ActorRateLimiter struct {
	limiters  map[string]*actorLimiter
	mu        sync.Mutex
	r         rate.Limit // requests per second
	b         int        // burst
	lastSweep time.Time

	IdleTTL time.Duration
	Now     func() time.Time
}

func NewActorRateLimiter(r rate.Limit, b int) *ActorRateLimiter {
	return &ActorRateLimiter{
		limiters: make(map[string]*actorLimiter),
		r:        r,
		b:        b,
		IdleTTL:  DefaultLimiterIdleTTL,
		Now:      time.Now,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *ActorRateLimiter) Limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.Now()
	if now.Sub(l.lastSweep) >= l.IdleTTL {
		l.sweep(now)
	}

	entry, ok := l.limiters[key]
	if !ok {
		entry = &actorLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Len is the number of live buckets.
func (l *ActorRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *ActorRateLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.IdleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// RateLimitByActor limits requests per acting employee, falling back to the
// client address when no actor is in the context.
func RateLimitByActor(r rate.Limit, b int) func(http.Handler) http.Handler {
	limiter := NewActorRateLimiter(r, b)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key := clientIP(req)
			if actor, ok := ActorFrom(req.Context()); ok {
				key = "employee:" + string(actor.ID)
			}
			if !limiter.Limiter(key).Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error: "too many requests",
					Code:  "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
