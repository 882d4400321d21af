// Package service holds the business rules between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP) → Service (rules, permissions) → Repository (SQL)
//
// Services take and return domain types and apperror values only; they know
// nothing about HTTP, cookies or status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository"
)

// AuthService turns a Discord profile into a local user plus a server-side
// session, and resolves session tokens back into live identities.
//
// The session row is the authority: a token is only accepted while its
// session exists and has not idled out, and the user it names is always
// re-read from the database.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenService
	idleTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	idleTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		idleTTL:  idleTTL,
		logger:   logger,
		now:      time.Now,
	}
}

var _ auth.Authenticator = (*AuthService)(nil)

// LoginResult is what the OAuth callback needs to finish the redirect.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// LoginWithDiscord upserts the Discord user, opens a session and issues a
// token for it. Expired sessions are swept on the way.
func (s *AuthService) LoginWithDiscord(ctx context.Context, du *auth.DiscordUser) (*LoginResult, error) {
	if du == nil || du.ID == "" {
		return nil, fmt.Errorf("service/auth: discord user must have an id")
	}

	now := s.now()
	if n, err := s.sessions.DeleteExpiredSessions(ctx, now); err != nil {
		s.logger.Warn("failed to sweep expired sessions", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("swept expired sessions", slog.Int64("count", n))
	}

	user := &model.User{
		ID:          du.ID,
		Username:    du.Username,
		Avatar:      du.Avatar,
		Email:       du.Email,
		DisplayName: du.DisplayName(),
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", du.ID, err)
	}

	sessionID := auth.NewSessionID()
	tokenExpiry := now.Add(s.tokens.TTL())
	sess := &model.Session{
		IDHash:    auth.HashSessionID(sessionID),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: earliest(now.Add(s.idleTTL), tokenExpiry),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Issue(auth.Subject{
		ID:         user.ID,
		Username:   du.Username,
		Avatar:     du.Avatar,
		GlobalName: du.GlobalName,
	}, sessionID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in via Discord",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	return &LoginResult{User: user, Token: token, ExpiresAt: tokenExpiry}, nil
}

// Authenticate resolves a session token into the live user. Every failure
// that is the client's fault comes back as apperror.ErrUnauthorized; the
// session's idle expiry is pushed forward on success.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		if !auth.IsTokenError(err) {
			return nil, fmt.Errorf("service/auth: validating token: %w", err)
		}
		return nil, apperror.Unauthorized("Invalid token")
	}

	now := s.now()
	idHash := auth.HashSessionID(claims.SessionID())

	sess, err := s.sessions.GetSession(ctx, idHash)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid token")
		}
		return nil, fmt.Errorf("service/auth: loading session: %w", err)
	}
	if sess.Expired(now) || sess.UserID != claims.UserID {
		return nil, apperror.Unauthorized("Invalid token")
	}

	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid token")
		}
		return nil, fmt.Errorf("service/auth: loading user %s: %w", sess.UserID, err)
	}

	next := now.Add(s.idleTTL)
	if claims.ExpiresAt != nil {
		next = earliest(next, claims.ExpiresAt.Time)
	}
	if next.After(sess.ExpiresAt) {
		if err := s.sessions.ExtendSession(ctx, idHash, next); err != nil {
			// The request is still valid; the session just idles out sooner.
			s.logger.Warn("failed to extend session",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &auth.Identity{SessionID: claims.SessionID(), User: user, Claims: claims}, nil
}

// VerifyForCookie checks a token before the BFF stores it in a cookie. It is
// Authenticate without the side effects on the session.
func (s *AuthService) VerifyForCookie(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("Invalid token")
	}

	sess, err := s.sessions.GetSession(ctx, auth.HashSessionID(claims.SessionID()))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Invalid token")
		}
		return nil, fmt.Errorf("service/auth: loading session: %w", err)
	}
	if sess.Expired(s.now()) || sess.UserID != claims.UserID {
		return nil, apperror.Unauthorized("Invalid token")
	}
	return claims, nil
}

// Logout revokes the session named by token. Invalid or unknown tokens are
// ignored so logout always succeeds from the client's point of view.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}
	if err := s.sessions.DeleteSession(ctx, auth.HashSessionID(claims.SessionID())); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	s.logger.Info("user logged out", slog.String("userID", claims.UserID))
	return nil
}

// FindUser looks a user up by a fragment of their id. It returns (nil, nil)
// when nothing matches.
func (s *AuthService) FindUser(ctx context.Context, queryID string) (*model.User, error) {
	queryID = strings.TrimSpace(queryID)
	if queryID == "" {
		return nil, apperror.ValidationFailed("queryId", "queryId is required")
	}

	user, err := s.users.FindUserByIDSubstring(ctx, queryID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/auth: finding user %q: %w", queryID, err)
	}
	return user, nil
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}
