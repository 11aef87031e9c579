package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

type stubStore struct {
	entries []Entry
	err     error
}

func (s *stubStore) Insert(_ context.Context, e Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubStore) ListBySession(_ context.Context, tenantID, sessionID string, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.TenantID == tenantID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestServiceRecord(t *testing.T) {
	store := &stubStore{}
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := Service{Store: store, Enabled: true, SamplingRate: 1, Now: func() time.Time { return fixed }}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sessions/s-1/checkout?source=till", nil)
	req.Header.Set("User-Agent", "till-3")
	req.Header.Set("X-Request-ID", "req-123")
	req.RemoteAddr = "10.0.0.2:54321"
	ctx := tenant.WithTenant(req.Context(), "shop-a")
	ctx = obs.WithRoutePattern(ctx, "/api/v1/pos/sessions/{sessionID}/checkout")
	req = req.WithContext(ctx)

	require.NoError(t, svc.Record(req.Context(), req, "", "s-1", http.StatusCreated, nil))
	require.Len(t, store.entries, 1)
	e := store.entries[0]
	require.Equal(t, "shop-a", e.TenantID)
	require.Equal(t, "s-1", e.SessionID)
	require.Equal(t, "POST /api/v1/pos/sessions/{sessionID}/checkout", e.Action)
	require.Equal(t, http.StatusCreated, e.Status)
	require.Equal(t, "10.0.0.2", e.IP)
	require.Equal(t, "req-123", e.RequestID)
	require.Equal(t, fixed, e.OccurredAt)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(e.Metadata, &meta))
	require.Equal(t, "source=till", meta["query"])
}

func TestServiceRecordDisabled(t *testing.T) {
	store := &stubStore{}
	svc := Service{Store: store}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, svc.Record(req.Context(), req, "x", "s", http.StatusOK, nil))
	require.Empty(t, store.entries)
}

func TestServiceRecordRequiresStore(t *testing.T) {
	svc := Service{Enabled: true}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.Error(t, svc.Record(req.Context(), req, "x", "s", http.StatusOK, nil))
}

func newJournalRouter(store *stubStore, onError func(error)) http.Handler {
	rec := HTTPRecorder{Service: &Service{Store: store, Enabled: true}, OnError: onError}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(tenant.WithTenant(req.Context(), "shop-a")))
		})
	})
	r.With(rec.Middleware("session.checkout")).Post("/sessions/{sessionID}/checkout", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})
	r.Get("/sessions/{sessionID}/journal", Handler{Store: store}.SessionJournal)
	return r
}

func TestMiddlewareJournalsOutcome(t *testing.T) {
	store := &stubStore{}
	h := newJournalRouter(store, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/s-9/checkout", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Len(t, store.entries, 1)
	require.Equal(t, "session.checkout", store.entries[0].Action)
	require.Equal(t, "s-9", store.entries[0].SessionID)
	require.Equal(t, http.StatusConflict, store.entries[0].Status)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/s-9/journal?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, "shop-a", body.Data[0].TenantID)
}

func TestMiddlewareReportsStoreErrors(t *testing.T) {
	var reported error
	store := &stubStore{err: errors.New("db down")}
	h := newJournalRouter(store, func(err error) { reported = err })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions/s-1/checkout", nil))
	require.Equal(t, http.StatusConflict, rr.Code)
	require.EqualError(t, reported, "db down")
}
