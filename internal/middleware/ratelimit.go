package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// ByUserOrIP counts authenticated requests per user and the rest per client IP.
func ByUserOrIP(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + clientIPForRateLimit(r)
}

// RateLimit allows limit requests per key in each fixed window of length per.
func RateLimit(limit int, per time.Duration, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByUserOrIP
	}
	var mu sync.Mutex
	buckets := make(map[string]*bucket)
	now := time.Now
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			t := now()
			mu.Lock()
			b, ok := buckets[k]
			if !ok || t.After(b.until) {
				b = &bucket{until: t.Add(per)}
				buckets[k] = b
				if len(buckets) > 10000 {
					for id, old := range buckets {
						if t.After(old.until) {
							delete(buckets, id)
						}
					}
				}
			}
			if b.count >= limit {
				retry := int(b.until.Sub(t).Seconds()) + 1
				mu.Unlock()
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"rate_limited"}`))
				return
			}
			b.count++
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
