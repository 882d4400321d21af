package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/service"
)

const stateCookie = "oauth_state"

// IdentityProvider is the OAuth side of the login flow. *auth.DiscordProvider
// implements it.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordUser, error)
}

// SessionService is the part of service.AuthService the auth handler uses.
type SessionService interface {
	LoginWithDiscord(ctx context.Context, du *auth.DiscordUser) (*service.LoginResult, error)
	VerifyForCookie(ctx context.Context, token string) (*auth.Claims, error)
	Logout(ctx context.Context, token string) error
}

// CookieConfig controls the session cookie written by set-cookie and cleared
// by logout.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler manages the Discord OAuth login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin     → redirect the browser to Discord's authorization page
//   - HandleCallback  → exchange the code, create a session, hand the token to the frontend
//   - HandleSetCookie → verify a token and store it in the session cookie
//   - HandleLogout    → revoke the session and clear the cookie
//   - HandleMe        → return the profile of the cookie's owner
type AuthHandler struct {
	provider    IdentityProvider
	sessions    SessionService
	cookie      CookieConfig
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. provider may be nil when Discord is
// not configured; the login routes then answer 503.
func NewAuthHandler(
	provider IdentityProvider,
	sessions SessionService,
	cookie CookieConfig,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		provider:    provider,
		sessions:    sessions,
		cookie:      cookie,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// HandleLogin redirects the user to Discord's authorization page.
//
// HTTP: GET /auth/discord/login (alias GET /auth/discord)
//
// A random state value is stored in a short-lived HttpOnly cookie and checked
// on callback, so a callback can only complete a login this server started.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "Discord login is not configured", http.StatusServiceUnavailable)
		return
	}

	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// HandleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a Discord profile
//  3. Upsert the user, create a session and issue a token
//  4. Redirect to the frontend with the token in the query string
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "Discord login is not configured", http.StatusServiceUnavailable)
		return
	}

	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	if query.Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := query.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendRedirect("auth", "denied"), http.StatusFound)
		return
	}

	// --- Step 2: Exchange code for the Discord profile ---
	code := query.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	du, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 3: Persist and issue ---
	res, err := h.sessions.LoginWithDiscord(r.Context(), du)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("discordID", du.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Hand the token to the frontend ---
	http.Redirect(w, r, h.frontendRedirect("token", res.Token), http.StatusFound)
}

type setCookieRequest struct {
	Token string `json:"token"`
}

// HandleSetCookie stores a verified session token in an HttpOnly cookie.
//
// HTTP: POST /auth/set-cookie {"token": "..."}
// Auth: x-auth-key
//
// The frontend server calls this after the callback redirect so the browser
// never keeps the token in script-readable storage.
func (h *AuthHandler) HandleSetCookie(w http.ResponseWriter, r *http.Request) {
	var req setCookieRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, apperror.ValidationFailed("token", "Missing required fields"))
		return
	}

	claims, err := h.sessions.VerifyForCookie(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	maxAge := int(time.Until(claims.ExpiresAt.Time).Seconds())
	if maxAge <= 0 {
		writeError(w, apperror.Unauthorized("Invalid token"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "cookie set"})
}

// HandleLogout revokes the session behind the cookie and clears it.
//
// HTTP: POST /auth/logout
//
// Always succeeds: a missing or already invalid cookie just means there is
// nothing to revoke.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(h.cookie.Name); err == nil && c.Value != "" {
		if err := h.sessions.Logout(r.Context(), c.Value); err != nil {
			h.logger.Error("logout: revoking session failed", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, MessageResponse{Message: "logged out"})
}

// HandleMe returns the profile of the session's user.
//
// HTTP: GET /auth/me
// Auth: x-auth-key and session cookie (RequireAuth sets the identity)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not authenticated"))
		return
	}
	writeJSON(w, http.StatusOK, id.User.Me())
}

func (h *AuthHandler) frontendRedirect(key, value string) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return h.frontendURL + "?" + url.Values{key: {value}}.Encode()
	}
	u.Path = strings.TrimRight(u.Path, "/")
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
