package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func scanRouter(h Handler) http.Handler {
	r := chi.NewRouter()
	r.With(h.Middleware).Post("/sessions/{sessionID}/scan", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	return r
}

func postScan(h http.Handler, session string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/"+session+"/scan", nil))
	return rr
}

func TestScanLimitPerSession(t *testing.T) {
	limiter, _, _ := newTestLimiter(t, "kasir:rl:")
	router := scanRouter(Handler{
		Limiter: limiter,
		Config:  Config{Key: ByURLParam("scan", "sessionID"), Window: time.Minute, Max: 2},
	})

	require.Equal(t, http.StatusAccepted, postScan(router, "till-1").Code)
	require.Equal(t, http.StatusAccepted, postScan(router, "till-1").Code)

	rr := postScan(router, "till-1")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", rr.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "RATE_LIMITED", body.Error.Code)
	require.EqualValues(t, 60, body.Error.Details["retryAfter"])

	require.Equal(t, http.StatusAccepted, postScan(router, "till-2").Code, "other terminals are unaffected")
}

func TestScanLimitFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var reported error
	router := scanRouter(Handler{
		Limiter: Limiter{Client: client},
		Config:  Config{Key: ByURLParam("scan", "sessionID"), Window: time.Second, Max: 1},
		OnError: func(err error) { reported = err },
	})

	rr := postScan(router, "till-1")
	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Error(t, reported)
	require.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
}

func TestScanLimitWithoutKeyPassesThrough(t *testing.T) {
	router := scanRouter(Handler{Limiter: Limiter{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})}})
	require.Equal(t, http.StatusAccepted, postScan(router, "till-1").Code)
}

func TestByURLParam(t *testing.T) {
	key := ByURLParam("scan", "sessionID")

	req := httptest.NewRequest(http.MethodPost, "/sessions/abc/scan", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("sessionID", "abc")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	require.Equal(t, "scan:abc", key(req))

	bare := httptest.NewRequest(http.MethodPost, "/scan", nil)
	bare.RemoteAddr = "10.0.0.7:5123"
	require.Equal(t, "scan:ip:10.0.0.7", key(bare))
}

func TestDecisionRetryAfterRoundsUp(t *testing.T) {
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	require.Equal(t, 2, Decision{ResetAt: now.Add(1500 * time.Millisecond)}.RetryAfter(now))
	require.Zero(t, Decision{ResetAt: now.Add(-time.Second)}.RetryAfter(now))
}
