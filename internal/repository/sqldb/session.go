package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository"
)

var _ repository.SessionRepository = (*Store)(nil)

func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = s.timestamp()
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (id_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`),
		sess.IDHash, sess.UserID, sess.CreatedAt, sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: creating session for user %s: %w", sess.UserID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, idHash string) (*model.Session, error) {
	var sess model.Session
	err := s.db.GetContext(ctx, &sess, s.db.Rebind(`
		SELECT id_hash, user_id, created_at, expires_at
		FROM sessions WHERE id_hash = ?`), idHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Session", "")
		}
		return nil, fmt.Errorf("sqldb: getting session: %w", err)
	}
	return &sess, nil
}

func (s *Store) ExtendSession(ctx context.Context, idHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE sessions SET expires_at = ? WHERE id_hash = ?`),
		expiresAt.UTC(), idHash)
	if err != nil {
		return fmt.Errorf("sqldb: extending session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("Session", "")
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an error,
// so logout stays idempotent.
func (s *Store) DeleteSession(ctx context.Context, idHash string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE id_hash = ?`), idHash); err != nil {
		return fmt.Errorf("sqldb: deleting session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before now
// and reports how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqldb: deleting expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqldb: deleting expired sessions: %w", err)
	}
	return n, nil
}
