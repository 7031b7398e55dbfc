package account

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/shortlinks"
	"github.com/punktual/server/internal/domain/users"
)

type stubRepo struct {
	profile    *users.Profile
	events     []events.Event
	links      []shortlinks.ShortLink
	clicks     []shortlinks.Click
	clicksErr  error
	token      *DeletionToken
	deleted    bool
	committed  bool
	rolledBack bool
	purges     []PurgeRequest
	enqueueErr error
}

func (r *stubRepo) Profile(context.Context, uuid.UUID) (*users.Profile, error) {
	if r.profile == nil {
		return nil, users.ErrNotFound
	}
	return r.profile, nil
}

func (r *stubRepo) Events(context.Context, uuid.UUID) ([]events.Event, error) {
	return r.events, nil
}

func (r *stubRepo) ShortLinks(context.Context, uuid.UUID) ([]shortlinks.ShortLink, error) {
	return r.links, nil
}

func (r *stubRepo) Clicks(context.Context, uuid.UUID) ([]shortlinks.Click, error) {
	return r.clicks, r.clicksErr
}

func (r *stubRepo) SaveDeletionToken(_ context.Context, token DeletionToken) error {
	r.token = &token
	return nil
}

func (r *stubRepo) GetDeletionToken(context.Context, uuid.UUID) (*DeletionToken, error) {
	if r.token == nil {
		return nil, ErrTokenNotFound
	}
	return r.token, nil
}

func (r *stubRepo) BeginTx(context.Context, uuid.UUID) (TxRepository, TxCommitter, error) {
	return &stubTx{repo: r}, &stubTx{repo: r}, nil
}

type stubTx struct {
	repo *stubRepo
}

func (t *stubTx) DeleteUserData(context.Context, uuid.UUID) (DeletedCounts, error) {
	t.repo.deleted = true
	return DeletedCounts{Events: int64(len(t.repo.events)), ShortLinks: int64(len(t.repo.links))}, nil
}

func (t *stubTx) EnqueuePurge(_ context.Context, req PurgeRequest) error {
	if t.repo.enqueueErr != nil {
		return t.repo.enqueueErr
	}
	t.repo.purges = append(t.repo.purges, req)
	return nil
}

func (t *stubTx) Commit(context.Context) error {
	t.repo.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	if !t.repo.committed {
		t.repo.rolledBack = true
	}
	return nil
}

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestService(repo *stubRepo) *Service {
	svc := NewService(repo, []byte("deletion-pepper"), zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestExport(t *testing.T) {
	user := uuid.New()
	repo := &stubRepo{
		profile: &users.Profile{ID: user, Email: "ada@example.com"},
		events:  []events.Event{{ID: "01HQZX3Y4K6F7G8H9J0K1M2N3P", Title: "Launch"}},
		links:   []shortlinks.ShortLink{{ID: "abcd1234"}},
	}
	svc := newTestService(repo)

	export, err := svc.Export(context.Background(), user)

	require.NoError(t, err)
	require.Equal(t, "ada@example.com", export.Profile.Email)
	require.Len(t, export.Events, 1)
	require.Len(t, export.ShortLinks, 1)
	require.NotNil(t, export.Clicks, "empty collections export as [] rather than null")
	require.Equal(t, fixedNow, export.ExportedAt)
}

func TestExport_MissingProfileIsNotAnError(t *testing.T) {
	svc := newTestService(&stubRepo{})

	export, err := svc.Export(context.Background(), uuid.New())

	require.NoError(t, err)
	require.Nil(t, export.Profile)
}

func TestExport_PropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := newTestService(&stubRepo{clicksErr: boom})

	_, err := svc.Export(context.Background(), uuid.New())

	require.ErrorIs(t, err, boom)
}

func TestIssueDeletionToken(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)

	token, expiresAt, err := svc.IssueDeletionToken(context.Background(), uuid.New())

	require.NoError(t, err)
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	require.Len(t, raw, DeletionTokenBytes)
	require.Equal(t, fixedNow.Add(15*time.Minute), expiresAt)
	require.NotNil(t, repo.token)
	require.NotEqual(t, token, repo.token.TokenHash)
	require.Len(t, repo.token.TokenHash, 64)
}

func TestIssueDeletionToken_ReplacesPrevious(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo)
	user := uuid.New()

	first, _, err := svc.IssueDeletionToken(context.Background(), user)
	require.NoError(t, err)
	second, _, err := svc.IssueDeletionToken(context.Background(), user)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.ErrorIs(t, svc.Delete(context.Background(), user, first), ErrInvalidToken)
	require.NoError(t, svc.Delete(context.Background(), user, second))
}

func TestDelete(t *testing.T) {
	user := uuid.New()
	repo := &stubRepo{profile: &users.Profile{ID: user, Email: "ada@example.com", DisplayName: "Ada"}}
	svc := newTestService(repo)
	token, _, err := svc.IssueDeletionToken(context.Background(), user)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), user, token))

	require.True(t, repo.deleted)
	require.True(t, repo.committed)
	require.False(t, repo.rolledBack)
	require.Equal(t, []PurgeRequest{{UserID: user, Email: "ada@example.com", DisplayName: "Ada"}}, repo.purges)
}

func TestDelete_InvalidTokens(t *testing.T) {
	user := uuid.New()

	t.Run("no token issued", func(t *testing.T) {
		svc := newTestService(&stubRepo{})
		require.ErrorIs(t, svc.Delete(context.Background(), user, "anything"), ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		repo := &stubRepo{}
		svc := newTestService(repo)
		_, _, err := svc.IssueDeletionToken(context.Background(), user)
		require.NoError(t, err)
		require.ErrorIs(t, svc.Delete(context.Background(), user, ""), ErrInvalidToken)
		require.False(t, repo.deleted)
	})

	t.Run("wrong token", func(t *testing.T) {
		repo := &stubRepo{}
		svc := newTestService(repo)
		_, _, err := svc.IssueDeletionToken(context.Background(), user)
		require.NoError(t, err)
		require.ErrorIs(t, svc.Delete(context.Background(), user, "forged"), ErrInvalidToken)
		require.False(t, repo.deleted)
	})

	t.Run("expired token", func(t *testing.T) {
		repo := &stubRepo{}
		svc := newTestService(repo)
		token, _, err := svc.IssueDeletionToken(context.Background(), user)
		require.NoError(t, err)

		svc.now = func() time.Time { return fixedNow.Add(DeletionTokenTTL) }
		require.ErrorIs(t, svc.Delete(context.Background(), user, token), ErrInvalidToken)
		require.False(t, repo.deleted)
	})
}

func TestDelete_RollsBackWhenEnqueueFails(t *testing.T) {
	user := uuid.New()
	repo := &stubRepo{enqueueErr: errors.New("river unavailable")}
	svc := newTestService(repo)
	token, _, err := svc.IssueDeletionToken(context.Background(), user)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), user, token)

	require.Error(t, err)
	require.False(t, repo.committed)
	require.True(t, repo.rolledBack)
}
