package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sakif/expense-auth/internal/apperror"
	"github.com/sakif/expense-auth/internal/handler"
)

// Middleware limits requests per client IP and route.
//
// Redis failures let the request through: an outage of the limiter must
// not lock every user out of login.
func Middleware(l Limiter, prefix string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Key(prefix, r)

			d, err := l.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))

				limited := apperror.RateLimited()
				status, code := handler.StatusFor(limited)
				handler.WriteJSON(w, status, handler.ErrorResponse{
					Error:      code,
					Message:    limited.Message,
					RetryAfter: secs,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Key builds "<prefix>:ip:<ip>:route:<METHOD path>". RemoteAddr is
// expected to hold the client address already (chi's RealIP runs first).
func Key(prefix string, r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "unknown"
	}
	return strings.Join([]string{prefix, "ip", ip, "route", r.Method + " " + r.URL.Path}, ":")
}
