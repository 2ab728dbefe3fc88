package shared

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter provides per-IP rate limiting with optional Redis backend.
// Without Redis (or when Redis errors) each IP gets a token bucket refilled
// at rpm/60 per second.
type RateLimiter struct {
	rpm   int
	redis *redis.Client
	now   func() time.Time

	inMemMu  sync.Mutex
	limiters map[string]*ipLimiter
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rpm int, redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		rpm:      rpm,
		redis:    redisClient,
		now:      time.Now,
		limiters: map[string]*ipLimiter{},
	}
}

// key for the current minute window
func (r *RateLimiter) minuteKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:%d", ip, r.now().Unix()/60)
}

// Allow returns whether the request is allowed and remaining quota (best-effort)
func (r *RateLimiter) Allow(ip string) (bool, int) {
	if r.rpm <= 0 {
		return true, r.rpm
	}
	if r.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		key := r.minuteKey(ip)
		n, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fallback to in-memory on error
			return r.allowInMem(ip)
		}
		// Ensure expiry ~65 seconds for the rolling window minute
		if n == 1 {
			_ = r.redis.Expire(ctx, key, 65*time.Second).Err()
		}
		remaining := r.rpm - int(n)
		if remaining < 0 {
			remaining = 0
		}
		return int(n) <= r.rpm, remaining
	}
	return r.allowInMem(ip)
}

func (r *RateLimiter) allowInMem(ip string) (bool, int) {
	now := r.now()
	r.inMemMu.Lock()
	defer r.inMemMu.Unlock()

	l, ok := r.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(float64(r.rpm)/60), r.rpm)}
		r.limiters[ip] = l
	}
	l.lastSeen = now
	r.evictIdle(now)

	allowed := l.limiter.AllowN(now, 1)
	return allowed, int(l.limiter.TokensAt(now))
}

// evictIdle drops limiters for IPs not seen recently. Caller holds inMemMu.
func (r *RateLimiter) evictIdle(now time.Time) {
	for ip, l := range r.limiters {
		if now.Sub(l.lastSeen) > limiterIdleTTL {
			delete(r.limiters, ip)
		}
	}
}

// Middleware rejects requests over quota with 429.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		allowed, remaining := r.Allow(GetClientIP(req))
		w.Header().Set("X-RateLimit-Limit", fmt.Sprint(r.rpm))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(remaining))
		if !allowed {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
			return
		}
		next.ServeHTTP(w, req)
	})
}

// GetClientIP extracts client IP from headers or RemoteAddr
func GetClientIP(r *http.Request) string {
	// Try common proxy headers
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Use the first IP in the list
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
