// Package repository declares the storage contracts the service layer
// depends on. The only production implementation lives in repository/sqldb;
// service tests use in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/blockhub/internal/model"
)

// UserRepository persists users created through Discord login.
type UserRepository interface {
	// Upsert inserts the user or overwrites the Discord profile fields of an
	// existing row with the same id. The admin flag is never changed. The
	// stored row is copied back into user.
	Upsert(ctx context.Context, user *model.User) error
	// GetUserByID returns the user with its vote history.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// FindUserByIDSubstring returns the first user whose id contains fragment,
	// or apperror.ErrNotFound.
	FindUserByIDSubstring(ctx context.Context, fragment string) (*model.User, error)
}

// SessionRepository stores server-side sessions keyed by hashed session id.
type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, idHash string) (*model.Session, error)
	ExtendSession(ctx context.Context, idHash string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, idHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ContentRepository stores maps and blocks. Every method is scoped to one kind.
type ContentRepository interface {
	Create(ctx context.Context, item *model.Item) error
	GetByID(ctx context.Context, kind model.Kind, id string) (*model.Item, error)
	// List returns all items of kind, newest first.
	List(ctx context.Context, kind model.Kind) ([]model.Item, error)
	// Search returns matching items ordered by votes, highest first.
	Search(ctx context.Context, kind model.Kind, filter model.SearchFilter) ([]model.Item, error)
	Update(ctx context.Context, item *model.Item) error
	Delete(ctx context.Context, kind model.Kind, id string) error
	// Vote applies a +1/-1 from userID and records the vote in one atomic
	// step. A second vote by the same user returns apperror.ErrAlreadyVoted
	// and changes nothing.
	Vote(ctx context.Context, kind model.Kind, id, userID string, up bool) (*model.Item, error)
}
