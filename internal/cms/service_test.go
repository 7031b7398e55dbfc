package cms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedPost = `{
  "id": 7,
  "attributes": {
    "slug": "launch",
    "title": "We <b>launched</b>",
    "excerpt": "<script>alert(1)</script>Short",
    "content": "<p>Hello <a href=\"https://example.com\" onclick=\"x()\">there</a></p><script>bad()</script>",
    "publishedAt": "2026-03-01T10:00:00.000Z",
    "tags": {"data": [{"id": 1, "attributes": {"slug": "news", "name": "News"}}]},
    "author": {"data": {"id": 2, "attributes": {"name": "Ada"}}},
    "cover": {"data": {"id": 3, "attributes": {"url": "/uploads/cover.png"}}}
  }
}`

const flatPost = `{
  "id": 8,
  "documentId": "abc123",
  "slug": "second",
  "title": "Second",
  "content": "<p>Body</p>",
  "publishedAt": "2026-02-01T10:00:00.000Z",
  "tags": [{"slug": "tips", "name": "Tips"}],
  "author": {"name": "Grace"},
  "cover": {"url": "https://cdn.example.com/c.png"}
}`

func cmsServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeList(w http.ResponseWriter, total int, items ...string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"data":[%s],"meta":{"pagination":{"page":1,"pageSize":10,"total":%d}}}`,
		strings.Join(items, ","), total)
}

func newTestService(srv *httptest.Server, token string) *Service {
	client := NewClient(srv.URL, token, WithRetryDelay(time.Millisecond))
	return NewService(client, time.Minute, zerolog.Nop())
}

func TestListPosts_QueryAndSanitization(t *testing.T) {
	srv, _ := cmsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/posts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "publishedAt:desc", q.Get("sort"))
		assert.Equal(t, "2", q.Get("pagination[page]"))
		assert.Equal(t, "50", q.Get("pagination[pageSize]"))
		assert.Equal(t, "news", q.Get("filters[tags][slug][$eq]"))
		assert.Equal(t, "launch", q.Get("filters[title][$containsi]"))
		writeList(w, 2, nestedPost, flatPost)
	})
	svc := newTestService(srv, "secret")

	page, err := svc.ListPosts(context.Background(), Query{Page: 2, PageSize: 500, Tag: " News ", Search: " launch "})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 50, page.PageSize)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Posts, 2)

	first := page.Posts[0]
	assert.Equal(t, "7", first.ID)
	assert.Equal(t, "launch", first.Slug)
	assert.Equal(t, "We launched", first.Title)
	assert.Equal(t, "Short", first.Excerpt)
	assert.Empty(t, first.ContentHTML, "list omits the body")
	assert.Equal(t, []Tag{{Slug: "news", Name: "News"}}, first.Tags)
	assert.Equal(t, "Ada", first.Author)
	assert.Equal(t, srv.URL+"/uploads/cover.png", first.CoverURL)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), first.PublishedAt)

	second := page.Posts[1]
	assert.Equal(t, "abc123", second.ID)
	assert.Equal(t, "Grace", second.Author)
	assert.Equal(t, "https://cdn.example.com/c.png", second.CoverURL)
}

func TestGetPost_SanitizesContent(t *testing.T) {
	srv, _ := cmsServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "launch", r.URL.Query().Get("filters[slug][$eq]"))
		writeList(w, 1, nestedPost)
	})
	svc := newTestService(srv, "")

	post, err := svc.GetPost(context.Background(), "launch")
	require.NoError(t, err)
	assert.Contains(t, post.ContentHTML, `<a href="https://example.com"`)
	assert.NotContains(t, post.ContentHTML, "onclick")
	assert.NotContains(t, post.ContentHTML, "<script>")
}

func TestGetPost_NotFound(t *testing.T) {
	srv, _ := cmsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeList(w, 0)
	})
	svc := newTestService(srv, "")

	_, err := svc.GetPost(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetPost(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CachesUntilTTL(t *testing.T) {
	srv, calls := cmsServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeList(w, 1, flatPost)
	})
	svc := newTestService(srv, "")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := svc.ListPosts(context.Background(), Query{})
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))

	now = now.Add(2 * time.Minute)
	_, err := svc.ListPosts(context.Background(), Query{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestService_UpstreamFailure(t *testing.T) {
	srv, calls := cmsServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	svc := newTestService(srv, "")

	_, err := svc.ListPosts(context.Background(), Query{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.EqualValues(t, MaxRetries+1, atomic.LoadInt32(calls))
}

func TestService_NotConfigured(t *testing.T) {
	svc := NewService(NewClient("", ""), 0, zerolog.Nop())
	_, err := svc.ListPosts(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, svc.Ping(context.Background()), ErrNotConfigured)
}

func TestQueryNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Query
		want Query
	}{
		{"defaults", Query{}, Query{Page: 1, PageSize: DefaultPageSize}},
		{"negative", Query{Page: -3, PageSize: -1}, Query{Page: 1, PageSize: 1}},
		{"too large", Query{Page: 4, PageSize: 51}, Query{Page: 4, PageSize: MaxPageSize}},
		{"trims filters", Query{Page: 1, PageSize: 5, Tag: " Go ", Search: " x "}, Query{Page: 1, PageSize: 5, Tag: "go", Search: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestQueryNormalize_TruncatesSearchByRune(t *testing.T) {
	q := Query{Search: strings.Repeat("é", maxSearchLength+5)}.Normalize()

	assert.True(t, utf8.ValidString(q.Search))
	assert.Equal(t, maxSearchLength, utf8.RuneCountInString(q.Search))
}
