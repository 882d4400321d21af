package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository/sqldb"
	"github.com/sakif/blockhub/internal/service"
)

const (
	testSecret  = "server-test-secret-0123456789"
	testAuthKey = "service-key"
	testOrigin  = "http://localhost:5173"
)

type testServer struct {
	handler http.Handler
	store   *sqldb.Store
	auth    *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqldb.Open(context.Background(), sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		Port:           0,
		FrontendURL:    testOrigin,
		AuthKey:        testAuthKey,
		SessionSecret:  testSecret,
		TokenTTL:       7 * 24 * time.Hour,
		IdleTTL:        24 * time.Hour,
		CookieName:     "user",
		MaxUploadBytes: 1 << 20,
	}
	srv, err := New(cfg, Deps{Store: store}, logger)
	require.NoError(t, err)

	// A second AuthService over the same database and secret stands in for
	// the OAuth callback when tests need a session.
	tokens, err := auth.NewTokenService(testSecret, cfg.TokenTTL)
	require.NoError(t, err)

	return &testServer{
		handler: srv.Handler(),
		store:   store,
		auth:    service.NewAuthService(store, store, tokens, cfg.IdleTTL, logger),
	}
}

func (ts *testServer) login(t *testing.T, id, username string) string {
	t.Helper()
	res, err := ts.auth.LoginWithDiscord(context.Background(), &auth.DiscordUser{ID: id, Username: username})
	require.NoError(t, err)
	return res.Token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "user", Value: token})
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func message(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body), rr.Body.String())
	return body.Message
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(Config{SessionSecret: testSecret, TokenTTL: time.Hour}, Deps{}, slog.Default())
	assert.Error(t, err)
}

func TestNew_RejectsShortSecret(t *testing.T) {
	store, err := sqldb.Open(context.Background(), sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = New(Config{SessionSecret: "short", TokenTTL: time.Hour}, Deps{Store: store}, slog.Default())
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestProtectedRoutes_RejectWithoutSideEffects(t *testing.T) {
	ts := newTestServer(t)
	ownerToken := ts.login(t, "100", "owner")

	rr := ts.do(t, http.MethodPost, "/maps", ownerToken, map[string]string{"title": "Keep", "viewLink": "http://a"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var kept model.Item
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&kept))

	requests := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/maps", map[string]string{"title": "X", "viewLink": "http://a"}},
		{http.MethodPut, "/maps/" + kept.ID, map[string]string{"title": "Changed"}},
		{http.MethodDelete, "/maps", map[string]string{"id": kept.ID}},
		{http.MethodPost, "/maps/vote", map[string]interface{}{"id": kept.ID, "up": true}},
		{http.MethodPost, "/blocks", map[string]string{"title": "X", "viewLink": "http://a"}},
		{http.MethodPost, "/blocks/upload", nil},
	}

	for _, req := range requests {
		rr := ts.do(t, req.method, req.path, "", req.body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s without cookie", req.method, req.path)
		assert.Equal(t, "Not authenticated", message(t, rr))

		rr = ts.do(t, req.method, req.path, "forged.token.value", req.body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s with forged cookie", req.method, req.path)
		assert.Equal(t, "Invalid token", message(t, rr))
	}

	got, err := ts.store.GetByID(context.Background(), model.KindMap, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep", got.Title)
	assert.Equal(t, int64(0), got.Votes)

	maps, err := ts.store.List(context.Background(), model.KindMap)
	require.NoError(t, err)
	assert.Len(t, maps, 1)
	blocks, err := ts.store.List(context.Background(), model.KindBlock)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}

func TestBlockScenario(t *testing.T) {
	ts := newTestServer(t)
	ownerToken := ts.login(t, "100", "owner")
	otherToken := ts.login(t, "200", "other")

	rr := ts.do(t, http.MethodPost, "/blocks", ownerToken, map[string]string{"title": "X"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Missing required fields", message(t, rr))

	rr = ts.do(t, http.MethodPost, "/blocks", ownerToken, map[string]string{"title": "X", "viewLink": "http://a"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var block model.Item
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&block))
	assert.Equal(t, "100", block.AuthorID)
	assert.Equal(t, int64(0), block.Votes)

	rr = ts.do(t, http.MethodDelete, "/blocks", otherToken, map[string]string{"id": block.ID})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Voting twice moves the counter once.
	rr = ts.do(t, http.MethodPost, "/blocks/vote", otherToken, map[string]interface{}{"id": block.ID, "up": true})
	require.Equal(t, http.StatusOK, rr.Code)
	rr = ts.do(t, http.MethodPost, "/blocks/vote", otherToken, map[string]interface{}{"id": block.ID, "up": true})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Already voted for this block", message(t, rr))

	rr = ts.do(t, http.MethodGet, "/blocks/"+block.ID, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.Item
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, int64(1), got.Votes)

	rr = ts.do(t, http.MethodDelete, "/blocks", ownerToken, map[string]string{"id": block.ID})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestSearchRouteIsNotAnID(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "100", "owner")
	ts.do(t, http.MethodPost, "/maps", token, map[string]interface{}{"title": "A", "viewLink": "http://a", "tags": []string{"a", "b", "c"}})
	ts.do(t, http.MethodPost, "/maps", token, map[string]interface{}{"title": "B", "viewLink": "http://b", "tags": []string{"a"}})

	rr := ts.do(t, http.MethodGet, "/maps/search?tags=a,b", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var found []model.Item
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, "A", found[0].Title)
}

func TestAuthKeyRoutes(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "100", "owner")

	meReq := func(key, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if key != "" {
			req.Header.Set(auth.AuthKeyHeader, key)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: "user", Value: cookie})
		}
		rr := httptest.NewRecorder()
		ts.handler.ServeHTTP(rr, req)
		return rr
	}

	rr := meReq("", token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Invalid or missing AUTH_KEY", message(t, rr))

	rr = meReq("wrong", token)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = meReq(testAuthKey, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Not authenticated", message(t, rr))

	rr = meReq(testAuthKey, token)
	require.Equal(t, http.StatusOK, rr.Code)
	var me model.Me
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&me))
	assert.Equal(t, "100", me.DiscordID)

	// set-cookie sits behind the same key.
	rr = ts.do(t, http.MethodPost, "/auth/set-cookie", "", map[string]string{"token": token})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesCookie(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "100", "owner")

	rr := ts.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPost, "/maps", token, map[string]string{"title": "X", "viewLink": "http://a"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDatabaseFailureBehindGuardIsInternal(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "100", "owner")
	require.NoError(t, ts.store.Close())

	rr := ts.do(t, http.MethodPost, "/blocks", token, map[string]string{"title": "X", "viewLink": "http://a"})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "An internal error occurred", message(t, rr))
}

func TestDiscordRoutesWithoutProvider(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/auth/discord", "/auth/discord/login"} {
		rr := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code, path)
	}
}

func TestDownloadWithoutStorage(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/blocks/download/1-a.txt", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "file storage is not configured", message(t, rr))
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/maps", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)

	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/maps", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
