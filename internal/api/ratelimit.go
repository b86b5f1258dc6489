package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"trainlog/internal/observability"
)

const defaultLimiterClients = 4096

// RateLimiter allows each client Limit requests per Window. Buckets refill
// continuously, so a client that spent its budget regains one request every
// Window/Limit. The least recently seen clients are evicted first.
type RateLimiter struct {
	limit   int
	window  time.Duration
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter returns nil, meaning unlimited, when limit or window is
// zero.
func NewRateLimiter(limit int, window time.Duration) (*RateLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, nil
	}
	clients, err := lru.New[string, *rate.Limiter](defaultLimiterClients)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{limit: limit, window: window, clients: clients}, nil
}

// Allow spends one request from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	limiter, ok := l.clients.Get(key)
	if !ok {
		fresh := rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit)
		// Concurrent first requests must share one bucket.
		if prev, found, _ := l.clients.PeekOrAdd(key, fresh); found {
			limiter = prev
		} else {
			limiter = fresh
		}
	}
	return limiter.Allow()
}

// Wrap rejects requests over the limit with 429. Requests without an
// identifiable client pass through.
func (l *RateLimiter) Wrap(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if key != "" && !l.Allow(key) {
			observability.RecordRateLimited()
			w.Header().Set("Retry-After", retryAfter(l.window, l.limit))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests, please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfter(window time.Duration, limit int) string {
	seconds := int((window / time.Duration(limit)).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
