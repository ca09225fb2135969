package db

import (
	"context"
	"fmt"
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_sessions (id, account_id, token_hash, created_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, session.ID, session.AccountID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt)
	if err != nil {
		return fmt.Errorf("create refresh session: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, account_id, token_hash, created_at, expires_at, revoked_at
		FROM refresh_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.AccountID, &session.TokenHash,
		&session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	return session, notFound(err)
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = $1 WHERE id = $2
	`, revokedAt, sessionID)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAccountRefreshSessions kills every live refresh session for the
// account; used on device conflicts to force a full re-login.
func (s *Store) RevokeAccountRefreshSessions(ctx context.Context, accountID int64, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_sessions
		SET revoked_at = $1
		WHERE account_id = $2 AND revoked_at IS NULL
	`, revokedAt, accountID)
	if err != nil {
		return fmt.Errorf("revoke account refresh sessions: %w", err)
	}
	return nil
}
