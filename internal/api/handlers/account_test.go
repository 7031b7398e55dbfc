package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/punktual/server/internal/api/middleware"
	"github.com/punktual/server/internal/domain/account"
	"github.com/punktual/server/internal/domain/events"
	"github.com/punktual/server/internal/domain/users"
)

func newAccountHandler(repo *fakeAccountRepo) *AccountHandler {
	return &AccountHandler{
		Service: account.NewService(repo, []byte("pepper"), zerolog.Nop()),
		Env:     "test",
	}
}

func seededAccountRepo() *fakeAccountRepo {
	repo := newFakeAccountRepo()
	repo.profiles[aliceID] = users.Profile{ID: aliceID, Email: "alice@example.com", DisplayName: "Alice"}
	repo.events = []events.Event{
		{ID: "01HQZX3Y4K6F7G8H9J0K1M2N3P", UserID: aliceID, Title: "Mine", Start: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "01HQZX3Y4K6F7G8H9J0K1M2N3Q", UserID: bobID, Title: "Not mine", Start: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	return repo
}

func TestAccount_ExportJSON(t *testing.T) {
	h := newAccountHandler(seededAccountRepo())
	rec := httptest.NewRecorder()
	h.Export(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/account/export", nil), aliceID))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment; filename="punktual-export-`)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var export account.Export
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	require.NotNil(t, export.Profile)
	assert.Equal(t, "alice@example.com", export.Profile.Email)
	require.Len(t, export.Events, 1)
	assert.Equal(t, "Mine", export.Events[0].Title)
	assert.NotNil(t, export.ShortLinks)
	assert.NotNil(t, export.Clicks)
}

func TestAccount_ExportYAML(t *testing.T) {
	h := newAccountHandler(seededAccountRepo())
	rec := httptest.NewRecorder()
	h.Export(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/account/export?format=yaml", nil), aliceID))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/yaml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".yaml")

	var export account.Export
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &export))
	assert.Equal(t, "Alice", export.Profile.DisplayName)
	assert.Contains(t, rec.Body.String(), "short_links: []")
}

func TestAccount_ExportUnknownFormat(t *testing.T) {
	h := newAccountHandler(seededAccountRepo())
	rec := httptest.NewRecorder()
	h.Export(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/account/export?format=xml", nil), aliceID))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Errors, "format")
}

func TestAccount_DeleteFlow(t *testing.T) {
	repo := seededAccountRepo()
	h := newAccountHandler(repo)

	rec := httptest.NewRecorder()
	h.DeletionToken(rec, withUser(httptest.NewRequest(http.MethodPost, "/api/v1/account/deletion-token", nil), aliceID))
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued deletionTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.NotEmpty(t, issued.Token)
	assert.True(t, issued.ExpiresAt.After(time.Now()))

	req := withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/account", nil), aliceID)
	req.Header.Set(ConfirmationTokenHeader, "wrong")
	rec = httptest.NewRecorder()
	h.Delete(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, repo.committed)

	req = withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/account", nil), aliceID)
	req.Header.Set(ConfirmationTokenHeader, issued.Token)
	rec = httptest.NewRecorder()
	h.Delete(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.True(t, repo.committed)
	require.Len(t, repo.purges, 1)
	assert.Equal(t, "alice@example.com", repo.purges[0].Email)

	session := cookieByName(rec, middleware.SessionCookieName)
	require.NotNil(t, session)
	assert.Equal(t, -1, session.MaxAge)
}

func TestAccount_DeleteWithoutToken(t *testing.T) {
	repo := seededAccountRepo()
	h := newAccountHandler(repo)

	rec := httptest.NewRecorder()
	h.Delete(rec, withUser(httptest.NewRequest(http.MethodDelete, "/api/v1/account", nil), aliceID))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, repo.deleted)
}
