package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

type contextKey string

const userIdKey contextKey = "user_id"

// UserId returns the authenticated subject for the request, or "" when auth
// is disabled or the route is public.
func UserId(r *http.Request) string {
	id, _ := r.Context().Value(userIdKey).(string)
	return id
}

// JWTAuth validates HS256 bearer tokens and stashes the subject claim on the
// request context. With an empty secret the middleware is a no-op, which is
// the local development mode.
func JWTAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(secret) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health stays public so probes don't need tokens.
			if strings.HasSuffix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIdKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientLimiters tracks a token bucket per client. Entries idle longer than
// staleAfter are dropped during sweeps to bound memory.
type clientLimiters struct {
	mu         sync.Mutex
	limiters   map[string]*limiterEntry
	rps        rate.Limit
	burst      int
	staleAfter time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterStaleAfter = 10 * time.Minute

func newClientLimiters(rps rate.Limit, burst int) *clientLimiters {
	return &clientLimiters{
		limiters:   make(map[string]*limiterEntry),
		rps:        rps,
		burst:      burst,
		staleAfter: limiterStaleAfter,
	}
}

func (c *clientLimiters) get(key string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.limiters[key]
	if !ok {
		if len(c.limiters) > 10000 {
			c.sweepLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(c.rps, c.burst)}
		c.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (c *clientLimiters) sweepLocked(now time.Time) {
	for key, entry := range c.limiters {
		if now.Sub(entry.lastSeen) > c.staleAfter {
			delete(c.limiters, key)
		}
	}
}

func clientKey(r *http.Request) string {
	if id := UserId(r); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit enforces a per-client request rate, keyed by the authenticated
// user when present and the client address otherwise. Must be mounted after
// JWTAuth so authenticated clients are not lumped together by proxy address.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiters := newClientLimiters(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.get(clientKey(r)).Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
