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

	"github.com/punktual/server/internal/calendar"
	"github.com/punktual/server/internal/domain/shortlinks"
)

const googleTarget = "https://calendar.google.com/calendar/render?action=TEMPLATE&text=Demo"

func newShortLinksHandler(repo *fakeLinkRepo) *ShortLinksHandler {
	svc := shortlinks.NewService(repo, shortlinks.Config{Salt: []byte("salt")}, zerolog.Nop())
	return &ShortLinksHandler{Service: svc, BaseURL: "https://punktual.test", Env: "test"}
}

func TestShortLinks_Create(t *testing.T) {
	repo := newFakeLinkRepo()
	h := newShortLinksHandler(repo)

	req := withUser(jsonRequest(t, http.MethodPost, "/api/v1/links", map[string]any{
		"platform":   "google",
		"target_url": googleTarget,
	}), aliceID)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp shortLinkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.ID, 8)
	assert.Equal(t, "https://punktual.test/s/"+resp.ID, resp.ShortURL)
	assert.Equal(t, "/s/"+resp.ID, rec.Header().Get("Location"))
	assert.Equal(t, calendar.PlatformGoogle, resp.Platform)
}

func TestShortLinks_CreateRejectsForeignHost(t *testing.T) {
	h := newShortLinksHandler(newFakeLinkRepo())
	req := withUser(jsonRequest(t, http.MethodPost, "/api/v1/links", map[string]any{
		"platform":   "google",
		"target_url": "https://evil.example.com/phish",
	}), aliceID)
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeProblem(t, rec).Errors, "target_url")
}

func TestShortLinks_Redirect(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.put(shortlinks.ShortLink{ID: "AbCd1234", UserID: aliceID, Platform: calendar.PlatformGoogle, TargetURL: googleTarget})
	h := newShortLinksHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/s/AbCd1234", nil)
	req.SetPathValue("id", "AbCd1234")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	h.Redirect(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, googleTarget, rec.Header().Get("Location"))
	require.Len(t, repo.clicks, 1)
	assert.Equal(t, "test-agent", repo.clicks[0].UserAgent)
	assert.Len(t, repo.clicks[0].IPHash, 64)
}

func TestShortLinks_RedirectRateLimitedStillRedirects(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.result = shortlinks.ClickRateLimited
	repo.put(shortlinks.ShortLink{ID: "AbCd1234", Platform: calendar.PlatformGoogle, TargetURL: googleTarget})
	h := newShortLinksHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/s/AbCd1234", nil)
	req.SetPathValue("id", "AbCd1234")
	rec := httptest.NewRecorder()
	h.Redirect(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Empty(t, repo.clicks)
}

func TestShortLinks_RedirectAppleServesICS(t *testing.T) {
	dataURI, err := calendar.ICSDataURI(calendar.Event{
		Title: "Dentist",
		Start: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	repo := newFakeLinkRepo()
	repo.put(shortlinks.ShortLink{ID: "Apple123", Platform: calendar.PlatformApple, TargetURL: dataURI})
	h := newShortLinksHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/s/Apple123", nil)
	req.SetPathValue("id", "Apple123")
	rec := httptest.NewRecorder()
	h.Redirect(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "SUMMARY:Dentist")
}

func TestShortLinks_RedirectErrors(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := newFakeLinkRepo()
	repo.put(shortlinks.ShortLink{ID: "Expired1", Platform: calendar.PlatformGoogle, TargetURL: googleTarget, ExpiresAt: &past})
	h := newShortLinksHandler(repo)

	tests := []struct {
		id     string
		status int
	}{
		{"Expired1", http.StatusGone},
		{"Missing1", http.StatusNotFound},
		{"no!", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/s/x", nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.Redirect(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.Empty(t, repo.clicks)
}

func TestShortLinks_Click(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.put(shortlinks.ShortLink{ID: "AbCd1234", Platform: calendar.PlatformGoogle, TargetURL: googleTarget})
	h := newShortLinksHandler(repo)

	click := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/links/"+id+"/click", nil)
		req.SetPathValue("id", id)
		rec := httptest.NewRecorder()
		h.Click(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, click("AbCd1234").Code)
	assert.Equal(t, http.StatusNotFound, click("Missing1").Code)

	repo.result = shortlinks.ClickRateLimited
	rec := click("AbCd1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestShortLinks_List(t *testing.T) {
	repo := newFakeLinkRepo()
	repo.put(shortlinks.ShortLink{ID: "AbCd1234", UserID: aliceID, Platform: calendar.PlatformGoogle, TargetURL: googleTarget})
	repo.put(shortlinks.ShortLink{ID: "Other123", UserID: bobID, Platform: calendar.PlatformGoogle, TargetURL: googleTarget})
	h := newShortLinksHandler(repo)

	rec := httptest.NewRecorder()
	h.List(rec, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/links", nil), aliceID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []shortLinkResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "AbCd1234", resp.Items[0].ID)
}
