package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/partsreserve-backend/api/responses"
	pkgerrors "github.com/angelmondragon/partsreserve-backend/pkg/errors"
	"github.com/angelmondragon/partsreserve-backend/pkg/logger"
)

// RateLimitStore counts hits per key in fixed windows.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, window time.Duration) (int64, error)
	RateLimitKey(policy, scope, id string) string
}

// WritePolicy caps state-changing requests per actor and per client IP.
type WritePolicy struct {
	Name        string
	Window      time.Duration
	ActorLimit  int
	ClientLimit int
}

func (p WritePolicy) enabled() bool {
	return p.Window > 0 && (p.ActorLimit > 0 || p.ClientLimit > 0)
}

// WriteRateLimit throttles POST, PUT, PATCH and DELETE. Reads pass through.
// It runs after Auth so the actor is known; anonymous callers only count
// against their IP.
func WriteRateLimit(policy WritePolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	if policy.Name == "" {
		policy.Name = "writes"
	}
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			checks := []struct {
				scope, id string
				limit     int
			}{
				{"actor", UserIDFromContext(ctx), policy.ActorLimit},
				{"ip", clientIP(r), policy.ClientLimit},
			}
			for _, c := range checks {
				if c.limit <= 0 || c.id == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(policy.Name, c.scope, c.id), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(c.limit) {
					rejectRateLimited(ctx, logg, w, policy, c.scope, count, c.limit)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func rejectRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy WritePolicy, scope string, count int64, limit int) {
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"policy":   policy.Name,
			"scope":    scope,
			"attempts": count,
			"limit":    limit,
		}), "write rate limit exceeded")
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
	err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
		WithDetails(map[string]any{"scope": scope, "limit": limit, "window_seconds": int(policy.Window.Seconds())})
	responses.WriteError(ctx, nil, w, err)
}

// clientIP trusts the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		first, _, _ := strings.Cut(header, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
