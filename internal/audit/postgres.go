package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertEntrySQL = `INSERT INTO pos_journal
	(id, tenant_id, session_id, action, method, route, status, ip, user_agent, request_id, metadata, occurred_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11, $12)`
	listBySessionSQL = `SELECT id, tenant_id, session_id, action, method, route, status,
	COALESCE(ip, ''), COALESCE(user_agent, ''), COALESCE(request_id, ''), metadata, occurred_at
	FROM pos_journal WHERE tenant_id = $1 AND session_id = $2 ORDER BY occurred_at DESC LIMIT $3`
)

// PGStore writes the journal through a pgx pool.
type PGStore struct {
	Pool *pgxpool.Pool
}

func (s PGStore) Insert(ctx context.Context, e Entry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		metadata = e.Metadata
	}
	_, err := s.Pool.Exec(ctx, insertEntrySQL,
		e.ID, e.TenantID, e.SessionID, e.Action, e.Method, e.Route, int32(e.Status),
		e.IP, e.UserAgent, e.RequestID, metadata, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// ListBySession returns the newest entries of a session first.
func (s PGStore) ListBySession(ctx context.Context, tenantID, sessionID string, limit int) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listBySessionSQL, tenantID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e        Entry
			status   int32
			metadata []byte
		)
		if err := row.Scan(&e.ID, &e.TenantID, &e.SessionID, &e.Action, &e.Method, &e.Route, &status,
			&e.IP, &e.UserAgent, &e.RequestID, &metadata, &e.OccurredAt); err != nil {
			return Entry{}, err
		}
		e.Status = int(status)
		e.Metadata = metadata
		return e, nil
	})
}
