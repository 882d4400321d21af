package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/blockhub/internal/auth"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/repository/sqldb"
	"github.com/sakif/blockhub/internal/service"
	"github.com/sakif/blockhub/internal/storage"
)

const testSecret = "handler-test-secret-0123456789"

var testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

// env is a real service stack on an in-memory database. Only the edges
// (Discord and object storage) are faked.
type env struct {
	store   *sqldb.Store
	tokens  *auth.TokenService
	auth    *service.AuthService
	content *service.ContentService
	files   *memStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWithFiles(t, newMemStore())
}

func newEnvWithFiles(t *testing.T, files storage.Store) *env {
	t.Helper()

	store, err := sqldb.Open(context.Background(), sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService(testSecret, 7*24*time.Hour)
	require.NoError(t, err)

	e := &env{
		store:   store,
		tokens:  tokens,
		auth:    service.NewAuthService(store, store, tokens, 24*time.Hour, testLogger),
		content: service.NewContentService(store, files, testLogger),
	}
	if m, ok := files.(*memStore); ok {
		e.files = m
	}
	return e
}

// login runs the post-OAuth half of the flow and returns the live
// user and its session token.
func (e *env) login(t *testing.T, id, username string) (*model.User, string) {
	t.Helper()
	res, err := e.auth.LoginWithDiscord(context.Background(), &auth.DiscordUser{
		ID:       id,
		Username: username,
		Avatar:   "avatar-" + id,
		Email:    username + "@example.com",
	})
	require.NoError(t, err)
	return res.User, res.Token
}

func (e *env) createItem(t *testing.T, kind model.Kind, author *model.User, title string, tags ...string) *model.Item {
	t.Helper()
	item, err := e.content.Create(context.Background(), kind, author, service.CreateInput{
		Title:    title,
		ViewLink: "https://example.com/" + strings.ReplaceAll(title, " ", "-"),
		Tags:     tags,
	})
	require.NoError(t, err)
	return item
}

// asUser attaches the identity RequireAuth would have set.
func asUser(req *http.Request, u *model.User) *http.Request {
	if u == nil {
		return req
	}
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{User: u}))
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// multipartBody builds a form with the given fields and, if fileName is set,
// a "file" part.
func multipartBody(t *testing.T, fields map[string]string, fileName string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// =========================================================================
// FAKES
// =========================================================================

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Put(_ context.Context, name string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	m.types[name] = contentType
	// No public URL: the service falls back to the download route.
	return storage.Object{Name: name}, nil
}

func (m *memStore) Get(_ context.Context, name string) (*storage.Reader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Reader{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		ContentType: m.types[name],
		Size:        int64(len(data)),
	}, nil
}

type fakeProvider struct {
	user      *auth.DiscordUser
	err       error
	exchanged []string
}

func (f *fakeProvider) AuthURL(state string) string {
	return "https://discord.example/oauth2/authorize?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*auth.DiscordUser, error) {
	f.exchanged = append(f.exchanged, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

var errBoom = errors.New("boom")
