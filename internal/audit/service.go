// Package audit keeps a per-session journal of the POS actions that change or
// discard a sale: checkouts, resets, deletions and voided lines.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// Entry is one journal row.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   string          `json:"tenantId"`
	SessionID  string          `json:"sessionId"`
	Action     string          `json:"action"`
	Method     string          `json:"method"`
	Route      string          `json:"route"`
	Status     int             `json:"status"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"userAgent,omitempty"`
	RequestID  string          `json:"requestId,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Store persists journal entries.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	ListBySession(ctx context.Context, tenantID, sessionID string, limit int) ([]Entry, error)
}

// Service records journal entries for audited requests.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
	Now          func() time.Time
}

// Record persists an entry for req when auditing is enabled. An empty action
// falls back to "METHOD route".
func (s Service) Record(ctx context.Context, req *http.Request, action, sessionID string, status int, metadata []byte) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}
	route := obs.Route(req)
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	if status == 0 {
		status = http.StatusOK
	}
	tenantID, _ := tenant.From(ctx)
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Store.Insert(ctx, Entry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SessionID:  strings.TrimSpace(sessionID),
		Action:     buildAction(action, req.Method, route),
		Method:     req.Method,
		Route:      route,
		Status:     status,
		IP:         common.ClientIP(req),
		UserAgent:  strings.TrimSpace(req.Header.Get("User-Agent")),
		RequestID:  strings.TrimSpace(req.Header.Get("X-Request-ID")),
		Metadata:   toJSONB(metadata, req.URL.RawQuery),
		OccurredAt: now().UTC(),
	})
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

func toJSONB(metadata []byte, query string) json.RawMessage {
	if len(metadata) > 0 && json.Valid(metadata) {
		return metadata
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	data, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil
	}
	return data
}
