package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
)

// AuthKeyHeader carries the shared key for service-to-service routes.
const AuthKeyHeader = "x-auth-key"

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the identity value.
type contextKey string

const identityKey contextKey = "identity"

// Identity is what RequireAuth attaches to the request context: the live
// user row, the session it was resolved through, and the token claims.
type Identity struct {
	SessionID string
	User      *model.User
	Claims    *Claims
}

// Authenticator resolves a raw session token to an Identity. The service
// layer implements it; the guard only knows this interface.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity attached by RequireAuth.
// Returns (nil, false) on anonymous requests.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil && id.User != nil
}

// RequireAuth enforces a valid session cookie on protected routes.
//
//   - no cookie                         → 401 "Not authenticated"
//   - cookie present, token or session
//     invalid, expired or revoked       → 401 "Invalid token"
//   - lookup failed for any other reason → 500, logged
//   - valid                             → Identity stored in the context
//
// The wrapped handler never runs on a 401, so rejected requests cannot have
// side effects.
func RequireAuth(a Authenticator, cookieName string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				writeUnauthorized(w, "Not authenticated")
				return
			}

			id, err := a.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthorized) {
					writeUnauthorized(w, "Invalid token")
					return
				}
				logger.Error("failed to authenticate request",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeJSONError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuthKey gates a route group behind the shared x-auth-key header.
// An empty configured key rejects everything.
func RequireAuthKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AuthKeyHeader)
			if key == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeUnauthorized(w, "Invalid or missing AUTH_KEY")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsTokenError reports whether err came from token validation.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized", message)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   kind,
		"message": message,
	})
}
