package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/iliamunaev/license-checkout/internal/apperr"
	"github.com/iliamunaev/license-checkout/internal/model"
)

// pruneEvery bounds how often idle limiters are swept.
const pruneEvery = time.Minute

type ipLimiter struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter allows each client IP a burst of requests per window,
// refilled evenly across the window.
type RateLimiter struct {
	requests int
	window   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	clients   map[string]*ipLimiter
	lastPrune time.Time
}

// NewRateLimiter returns a limiter admitting requests per window for each IP.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimiter{
		requests: requests,
		window:   window,
		now:      time.Now,
		clients:  make(map[string]*ipLimiter),
	}
}

// Allow reports whether ip may make a request now.
func (l *RateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= pruneEvery {
		l.prune(now)
	}

	c, ok := l.clients[ip]
	if !ok {
		every := l.window / time.Duration(l.requests)
		c = &ipLimiter{limiter: rate.NewLimiter(rate.Every(every), l.requests)}
		l.clients[ip] = c
	}
	c.last = now
	return c.limiter.AllowN(now, 1)
}

// prune drops limiters idle for a full window; they would be full again.
func (l *RateLimiter) prune(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.last) >= l.window {
			delete(l.clients, ip)
		}
	}
	l.lastPrune = now
}

// Clients returns how many IPs are currently tracked.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects over-limit requests with 429 and a Retry-After hint.
// It keys on RemoteAddr, so it belongs after RealIP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int((l.window / time.Duration(l.requests)).Seconds()) + 1)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(model.ErrorResponse{
				Error: apperr.Message(apperr.ErrRateLimited),
				Kind:  apperr.Kind(apperr.ErrRateLimited),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
