package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Config picks the bucket for a request and its budget per window.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler rejects requests over budget with 429 RATE_LIMITED.
type Handler struct {
	Limiter Limiter
	Config  Config
	OnError func(error)
}

// Middleware fails open: limiter errors go to OnError and the request is
// served.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		d, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if !d.Allowed {
			retryAfter := d.RetryAfter(h.Limiter.now())
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many scans, slow down", map[string]any{"retryAfter": retryAfter})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ByURLParam keys requests by a chi route parameter, falling back to the
// client IP when the parameter is absent. Scan endpoints use the session id
// so one noisy terminal cannot starve the others.
func ByURLParam(scope, param string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := chi.URLParam(r, param); v != "" {
			return scope + ":" + v
		}
		return scope + ":ip:" + common.ClientIP(r)
	}
}
