package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sakif/blockhub/internal/apperror"
	"github.com/sakif/blockhub/internal/model"
	"github.com/sakif/blockhub/internal/storage"
)

// Hand-written in-memory fakes for the repository and storage interfaces.
// Each fake can be told to fail so error paths are reachable.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =========================================================================
// USERS
// =========================================================================

type fakeUserRepo struct {
	users     map[string]*model.User
	votes     map[string][]string
	upsertErr error
	getErr    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}, votes: map[string][]string{}}
}

func (f *fakeUserRepo) Upsert(_ context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	now := time.Now()
	if existing, ok := f.users[user.ID]; ok {
		existing.Username = user.Username
		existing.Avatar = user.Avatar
		existing.Email = user.Email
		existing.DisplayName = user.DisplayName
		existing.UpdatedAt = now
		*user = *existing
		return nil
	}
	user.Admin = false
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("User", id)
	}
	out := *u
	out.Votes = append([]string{}, f.votes[id]...)
	return &out, nil
}

func (f *fakeUserRepo) FindUserByIDSubstring(ctx context.Context, fragment string) (*model.User, error) {
	ids := make([]string, 0, len(f.users))
	for id := range f.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.Contains(id, fragment) {
			return f.GetUserByID(ctx, id)
		}
	}
	return nil, apperror.NotFound("User", fragment)
}

// =========================================================================
// SESSIONS
// =========================================================================

type fakeSessionRepo struct {
	sessions  map[string]*model.Session
	createErr error
	getErr    error
	extended  int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[string]*model.Session{}}
}

func (f *fakeSessionRepo) CreateSession(_ context.Context, s *model.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	stored := *s
	f.sessions[s.IDHash] = &stored
	return nil
}

func (f *fakeSessionRepo) GetSession(_ context.Context, idHash string) (*model.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.sessions[idHash]
	if !ok {
		return nil, apperror.NotFound("Session", "")
	}
	out := *s
	return &out, nil
}

func (f *fakeSessionRepo) ExtendSession(_ context.Context, idHash string, expiresAt time.Time) error {
	s, ok := f.sessions[idHash]
	if !ok {
		return apperror.NotFound("Session", "")
	}
	s.ExpiresAt = expiresAt
	f.extended++
	return nil
}

func (f *fakeSessionRepo) DeleteSession(_ context.Context, idHash string) error {
	delete(f.sessions, idHash)
	return nil
}

func (f *fakeSessionRepo) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, s := range f.sessions {
		if s.Expired(now) {
			delete(f.sessions, k)
			n++
		}
	}
	return n, nil
}

// only returns the single session in the fake, for tests that log in once.
func (f *fakeSessionRepo) only() *model.Session {
	for _, s := range f.sessions {
		return s
	}
	return nil
}

// =========================================================================
// CONTENT
// =========================================================================

type voteKey struct {
	user, kind, id string
}

type fakeContentRepo struct {
	items     map[model.Kind]map[string]*model.Item
	votes     map[voteKey]bool
	nextID    int
	createErr error
	deleted   []string
	updates   int
}

func newFakeContentRepo() *fakeContentRepo {
	return &fakeContentRepo{
		items: map[model.Kind]map[string]*model.Item{
			model.KindMap:   {},
			model.KindBlock: {},
		},
		votes: map[voteKey]bool{},
	}
}

func (f *fakeContentRepo) Create(_ context.Context, item *model.Item) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	item.ID = fmt.Sprintf("%s-%d", item.Kind, f.nextID)
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	stored := *item
	stored.Tags = append([]string{}, item.Tags...)
	f.items[item.Kind][item.ID] = &stored
	return nil
}

func (f *fakeContentRepo) GetByID(_ context.Context, kind model.Kind, id string) (*model.Item, error) {
	it, ok := f.items[kind][id]
	if !ok {
		return nil, apperror.NotFound(kind.Label(), id)
	}
	out := *it
	out.Tags = append([]string{}, it.Tags...)
	return &out, nil
}

func (f *fakeContentRepo) List(_ context.Context, kind model.Kind) ([]model.Item, error) {
	out := []model.Item{}
	for _, it := range f.items[kind] {
		out = append(out, *it)
	}
	return out, nil
}

func (f *fakeContentRepo) Search(_ context.Context, kind model.Kind, filter model.SearchFilter) ([]model.Item, error) {
	out := []model.Item{}
	for _, it := range f.items[kind] {
		if filter.Title != "" && !strings.Contains(strings.ToLower(it.Title), strings.ToLower(filter.Title)) {
			continue
		}
		if !hasAll(it.Tags, filter.Tags) {
			continue
		}
		out = append(out, *it)
	}
	return out, nil
}

func hasAll(have, want []string) bool {
	set := map[string]bool{}
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func (f *fakeContentRepo) Update(_ context.Context, item *model.Item) error {
	existing, ok := f.items[item.Kind][item.ID]
	if !ok {
		return apperror.NotFound(item.Kind.Label(), item.ID)
	}
	f.updates++
	stored := *item
	stored.AuthorID = existing.AuthorID
	stored.Votes = existing.Votes
	stored.CreatedAt = existing.CreatedAt
	f.items[item.Kind][item.ID] = &stored
	return nil
}

func (f *fakeContentRepo) Delete(_ context.Context, kind model.Kind, id string) error {
	if _, ok := f.items[kind][id]; !ok {
		return apperror.NotFound(kind.Label(), id)
	}
	delete(f.items[kind], id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeContentRepo) Vote(ctx context.Context, kind model.Kind, id, userID string, up bool) (*model.Item, error) {
	it, ok := f.items[kind][id]
	if !ok {
		return nil, apperror.NotFound(kind.Label(), id)
	}
	key := voteKey{userID, string(kind), id}
	if f.votes[key] {
		return nil, apperror.AlreadyVoted(string(kind), id)
	}
	f.votes[key] = true
	if up {
		it.Votes++
	} else {
		it.Votes--
	}
	return f.GetByID(ctx, kind, id)
}

// =========================================================================
// STORAGE
// =========================================================================

type fakeStore struct {
	objects map[string][]byte
	types   map[string]string
	base    string
	putErr  error
}

func newFakeStore(base string) *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}, base: base}
}

func (f *fakeStore) Put(_ context.Context, name string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	if f.putErr != nil {
		return storage.Object{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	if int64(len(data)) != size {
		return storage.Object{}, fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	f.objects[name] = data
	f.types[name] = contentType
	return storage.Object{Name: name, URL: storage.PublicURL(f.base, name)}, nil
}

func (f *fakeStore) Get(_ context.Context, name string) (*storage.Reader, error) {
	data, ok := f.objects[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &storage.Reader{
		ReadCloser:  io.NopCloser(strings.NewReader(string(data))),
		ContentType: f.types[name],
		Size:        int64(len(data)),
	}, nil
}
