// Package store persists session snapshots between restarts. Durability only
// has to cover the TTL window, so sessions are written whole as JSON
// documents rather than normalized rows; the live in-memory store remains
// authoritative while the process runs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"linkreview/api/internal/session"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveAll upserts every given session in one transaction.
func (s *PostgresStore) SaveAll(ctx context.Context, sessions []session.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	const upsert = `
		INSERT INTO review_sessions (token, owner_user_id, assigned_by_admin, expires_at, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (token) DO UPDATE
		SET owner_user_id=EXCLUDED.owner_user_id,
		    assigned_by_admin=EXCLUDED.assigned_by_admin,
		    expires_at=EXCLUDED.expires_at,
		    data=EXCLUDED.data,
		    updated_at=NOW()
	`
	for i := range sessions {
		sess := &sessions[i]
		data, err := json.Marshal(sess)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal session %s: %w", sess.Token, err)
		}
		if _, err := tx.ExecContext(ctx, upsert, sess.Token, sess.OwnerUserID, sess.AssignedByAdmin, sess.ExpiresAt, data); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert session %s: %w", sess.Token, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot tx: %w", err)
	}
	return nil
}

// Delete removes a session row. Deleting an absent token is not an error.
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM review_sessions WHERE token=$1`, token); err != nil {
		return fmt.Errorf("delete session %s: %w", token, err)
	}
	return nil
}

// Load returns all sessions that have not yet expired and prunes the rest.
func (s *PostgresStore) Load(ctx context.Context) ([]session.Session, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM review_sessions WHERE expires_at <= NOW()`); err != nil {
		return nil, fmt.Errorf("prune expired sessions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM review_sessions`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	defer rows.Close()

	var sessions []session.Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var sess session.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
