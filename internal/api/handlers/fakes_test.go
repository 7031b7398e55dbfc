package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/auth"
	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
)

var (
	aliceID = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	bobID   = uuid.MustParse("22222222-2222-4222-8222-222222222222")
)

func withUser(r *http.Request, userID uuid.UUID) *http.Request {
	claims := &auth.Claims{
		Email: "user@example.com",
		Role:  auth.RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID.String(),
		},
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problem.ProblemDetails {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problem.ProblemDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]events.Event
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: map[string]events.Event{}}
}

func (f *fakeEventRepo) List(_ context.Context, userID uuid.UUID, p events.Pagination) (events.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return events.ListResult{Events: out}, nil
}

func (f *fakeEventRepo) Get(_ context.Context, userID uuid.UUID, id string) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok || e.UserID != userID {
		return nil, events.ErrNotFound
	}
	return &e, nil
}

func (f *fakeEventRepo) Create(_ context.Context, e events.Event) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	e.CreatedAt, e.UpdatedAt = now, now
	f.events[e.ID] = e
	return &e, nil
}

func (f *fakeEventRepo) Update(_ context.Context, e events.Event) (*events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.events[e.ID]
	if !ok || old.UserID != e.UserID {
		return nil, events.ErrNotFound
	}
	e.CreatedAt = old.CreatedAt
	f.events[e.ID] = e
	return &e, nil
}

func (f *fakeEventRepo) Delete(_ context.Context, userID uuid.UUID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok || e.UserID != userID {
		return events.ErrNotFound
	}
	delete(f.events, id)
	return nil
}

type fakeLinkRepo struct {
	mu     sync.Mutex
	links  map[string]shortlinks.ShortLink
	result shortlinks.ClickResult
	clicks []shortlinks.TrackParams
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: map[string]shortlinks.ShortLink{}, result: shortlinks.ClickRecorded}
}

func (f *fakeLinkRepo) Create(_ context.Context, link shortlinks.ShortLink) (*shortlinks.ShortLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[link.ID]; ok {
		return nil, shortlinks.ErrDuplicateID
	}
	link.CreatedAt = time.Now().UTC()
	f.links[link.ID] = link
	return &link, nil
}

func (f *fakeLinkRepo) Get(_ context.Context, id string) (*shortlinks.ShortLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[id]
	if !ok {
		return nil, shortlinks.ErrNotFound
	}
	return &link, nil
}

func (f *fakeLinkRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]shortlinks.ShortLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []shortlinks.ShortLink
	for _, l := range f.links {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) EventOwned(context.Context, uuid.UUID, string) (bool, error) {
	return false, nil
}

func (f *fakeLinkRepo) TrackClick(_ context.Context, params shortlinks.TrackParams) (shortlinks.ClickResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.links[params.ShortID]; !ok {
		return shortlinks.ClickNotFound, nil
	}
	if f.result == shortlinks.ClickRecorded {
		f.clicks = append(f.clicks, params)
	}
	return f.result, nil
}

func (f *fakeLinkRepo) put(link shortlinks.ShortLink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.ID] = link
}

// fakeAccountRepo keeps just enough state for export and deletion.
type fakeAccountRepo struct {
	mu        sync.Mutex
	profiles  map[uuid.UUID]users.Profile
	events    []events.Event
	tokens    map[uuid.UUID]account.DeletionToken
	deleted   []uuid.UUID
	purges    []account.PurgeRequest
	committed bool
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		profiles: map[uuid.UUID]users.Profile{},
		tokens:   map[uuid.UUID]account.DeletionToken{},
	}
}

func (f *fakeAccountRepo) Profile(_ context.Context, userID uuid.UUID) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &p, nil
}

func (f *fakeAccountRepo) Events(_ context.Context, userID uuid.UUID) ([]events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAccountRepo) ShortLinks(context.Context, uuid.UUID) ([]shortlinks.ShortLink, error) {
	return nil, nil
}

func (f *fakeAccountRepo) Clicks(context.Context, uuid.UUID) ([]shortlinks.Click, error) {
	return nil, nil
}

func (f *fakeAccountRepo) SaveDeletionToken(_ context.Context, token account.DeletionToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.UserID] = token
	return nil
}

func (f *fakeAccountRepo) GetDeletionToken(_ context.Context, userID uuid.UUID) (*account.DeletionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[userID]
	if !ok {
		return nil, account.ErrTokenNotFound
	}
	return &t, nil
}

func (f *fakeAccountRepo) BeginTx(context.Context, uuid.UUID) (account.TxRepository, account.TxCommitter, error) {
	return fakeAccountTx{f}, fakeAccountTx{f}, nil
}

type fakeAccountTx struct{ repo *fakeAccountRepo }

func (t fakeAccountTx) DeleteUserData(_ context.Context, userID uuid.UUID) (account.DeletedCounts, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.deleted = append(t.repo.deleted, userID)
	return account.DeletedCounts{Profiles: 1}, nil
}

func (t fakeAccountTx) EnqueuePurge(_ context.Context, req account.PurgeRequest) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.purges = append(t.repo.purges, req)
	return nil
}

func (t fakeAccountTx) Commit(context.Context) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	t.repo.committed = true
	return nil
}

func (t fakeAccountTx) Rollback(context.Context) error { return nil }

type fakeProfiles struct {
	profiles map[uuid.UUID]users.Profile
	err      error
}

func (f *fakeProfiles) Get(_ context.Context, id uuid.UUID) (*users.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &p, nil
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
