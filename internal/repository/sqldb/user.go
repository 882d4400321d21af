package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository"
)

// compile-time check that *Store implements repository.UserRepository
var _ repository.UserRepository = (*Store)(nil)

const userColumns = `id, username, avatar, email, display_name, admin, created_at, updated_at`

// Upsert inserts the user, or refreshes the Discord profile fields when a row
// with the same id exists. created_at and admin are left as they were.
func (s *Store) Upsert(ctx context.Context, user *model.User) error {
	now := s.timestamp()

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO users (id, username, avatar, email, display_name, admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username     = excluded.username,
			avatar       = excluded.avatar,
			email        = excluded.email,
			display_name = excluded.display_name,
			updated_at   = excluded.updated_at`),
		user.ID, user.Username, user.Avatar, user.Email, user.DisplayName, false, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqldb: upserting user %s: %w", user.ID, err)
	}

	stored, err := s.getUser(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *stored
	return nil
}

// GetUserByID returns the user together with the ids it has voted on.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Votes, err = s.userVotes(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// FindUserByIDSubstring returns the oldest user whose id contains fragment.
// The match is case-sensitive.
func (s *Store) FindUserByIDSubstring(ctx context.Context, fragment string) (*model.User, error) {
	var u model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE ` +
		fmt.Sprintf(s.dialect.contains, "id", "?") +
		` ORDER BY created_at, id LIMIT 1`

	err := s.db.GetContext(ctx, &u, s.db.Rebind(query), fragment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", fragment)
		}
		return nil, fmt.Errorf("sqldb: searching users for %q: %w", fragment, err)
	}

	if u.Votes, err = s.userVotes(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) getUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", id)
		}
		return nil, fmt.Errorf("sqldb: getting user %s: %w", id, err)
	}
	return &u, nil
}

// userVotes lists the content ids a user voted on, oldest vote first.
func (s *Store) userVotes(ctx context.Context, userID string) ([]string, error) {
	votes := []string{}
	err := s.db.SelectContext(ctx, &votes, s.db.Rebind(`
		SELECT content_id FROM votes
		WHERE user_id = ?
		ORDER BY created_at, kind, content_id`), userID)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing votes of user %s: %w", userID, err)
	}
	return votes, nil
}
