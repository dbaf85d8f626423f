package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/registry/internal/config"
	"github.com/JonMunkholm/registry/internal/logging"
)

var errRateLimited = errors.New("rate limit exceeded")

// clientLimiter is one client's token bucket.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// RateLimiter applies a token bucket per client IP.
// It is safe for concurrent use.
type RateLimiter struct {
	// clients maps client IP -> *clientLimiter
	clients sync.Map

	enabled bool
	rps     rate.Limit
	burst   int
	now     func() time.Time
	log     *slog.Logger
}

// NewRateLimiter creates a limiter from cfg. A disabled config allows everything.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	log := logging.Component("ratelimit")
	if cfg.Enabled {
		log.Info("client rate limiter initialized", "rps", cfg.RPS, "burst", cfg.Burst)
	}
	return &RateLimiter{
		enabled: cfg.Enabled,
		rps:     rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		now:     time.Now,
		log:     log,
	}
}

// Allow consumes one token for client and reports whether it was available.
func (l *RateLimiter) Allow(client string) bool {
	if !l.enabled {
		return true
	}
	return l.get(client).limiter.AllowN(l.now(), 1)
}

func (l *RateLimiter) get(client string) *clientLimiter {
	now := l.now().UnixNano()
	if v, ok := l.clients.Load(client); ok {
		cl := v.(*clientLimiter)
		cl.lastSeen.Store(now)
		return cl
	}

	cl := &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
	cl.lastSeen.Store(now)
	actual, loaded := l.clients.LoadOrStore(client, cl)
	if !loaded {
		l.log.Debug("created rate limiter", "client", client)
	}
	return actual.(*clientLimiter)
}

// Prune drops clients idle for longer than maxIdle and returns how many went.
func (l *RateLimiter) Prune(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle).UnixNano()
	removed := 0
	l.clients.Range(func(key, value any) bool {
		if value.(*clientLimiter).lastSeen.Load() < cutoff {
			l.clients.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// Clients returns the number of tracked clients.
func (l *RateLimiter) Clients() int {
	n := 0
	l.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// StartPruning prunes idle clients every interval until ctx ends.
func (l *RateLimiter) StartPruning(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Prune(2 * interval); n > 0 {
					l.log.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	}()
}

// Middleware rejects requests over the client's budget with 429.
// The client is identified by RemoteAddr, so TrustedRealIP must run first.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r.RemoteAddr)
		if !l.Allow(client) {
			w.Header().Set("Retry-After", l.retryAfter())
			writeError(w, http.StatusTooManyRequests, fmt.Errorf("%w for %s", errRateLimited, client))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfter is the whole seconds needed to refill one token.
func (l *RateLimiter) retryAfter() string {
	if l.rps <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(l.rps))))
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
