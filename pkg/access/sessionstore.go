package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finintel/pkg/domain"
)

// SessionStore is the embedded table spec.md §5 names: "active UserContexts
// with session_id, user_id, tenant_id, expires_at". It is deliberately thin
// (create/look-up/invalidate/purge) since the authority for role and
// accessible-entity/period assignment lives upstream of the session layer;
// the session row only caches the resolved UserContext for the lifetime of
// one login.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore attaches the sessions table to an already-open database
// handle, the same embedded-table pattern sqlitestore.go uses for facts —
// a session store deployed alongside a sqlite Fact Store shares its one
// file rather than opening a second connection pool.
func NewSessionStore(db *sql.DB) (*SessionStore, error) {
	store := &SessionStore{db: db}
	if _, err := db.Exec(sessionSchema); err != nil {
		return nil, fmt.Errorf("access: initializing session schema: %w", err)
	}
	return store, nil
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	context_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id);
`

// CreateSession persists a new UserContext for the duration of its session
// (spec.md §3: "default 8 hours").
func (s *SessionStore) CreateSession(ctx context.Context, userCtx domain.UserContext) error {
	data, err := json.Marshal(userCtx)
	if err != nil {
		return fmt.Errorf("access: marshal session context: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, tenant_id, expires_at, context_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET expires_at = excluded.expires_at, context_json = excluded.context_json`,
		userCtx.SessionID, userCtx.UserID, userCtx.TenantID, userCtx.SessionExpiresAt, string(data),
	)
	if err != nil {
		return fmt.Errorf("access: create session: %w", err)
	}
	return nil
}

// GetSession resolves a session id to its UserContext, rejecting sessions
// that have already expired rather than returning stale access.
func (s *SessionStore) GetSession(ctx context.Context, sessionID string, now time.Time) (domain.UserContext, bool, error) {
	var data string
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT context_json, expires_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return domain.UserContext{}, false, nil
	}
	if err != nil {
		return domain.UserContext{}, false, fmt.Errorf("access: get session: %w", err)
	}
	if now.After(expiresAt) {
		return domain.UserContext{}, false, nil
	}
	var userCtx domain.UserContext
	if err := json.Unmarshal([]byte(data), &userCtx); err != nil {
		return domain.UserContext{}, false, fmt.Errorf("access: unmarshal session context: %w", err)
	}
	return userCtx, true, nil
}

// InvalidateSession removes a session immediately, for explicit logout.
func (s *SessionStore) InvalidateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("access: invalidate session: %w", err)
	}
	return nil
}

// PurgeExpired deletes every session that expired before now, returning the
// number of rows removed. Intended to run on a periodic ticker.
func (s *SessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("access: purge expired sessions: %w", err)
	}
	return res.RowsAffected()
}
