package cms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/punktual/server/internal/metrics"
)

const (
	DefaultCacheTTL = 5 * time.Minute
	DefaultPageSize = 10
	MaxPageSize     = 50

	maxCacheEntries = 512
	maxSearchLength = 100
)

// Query is what the blog list endpoint accepts.
type Query struct {
	Page     int
	PageSize int
	Tag      string
	Search   string
}

// Normalize clamps paging and trims the filters.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = DefaultPageSize
	case q.PageSize < 1:
		q.PageSize = 1
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	q.Tag = strings.ToLower(strings.TrimSpace(q.Tag))
	q.Search = strings.TrimSpace(q.Search)
	if r := []rune(q.Search); len(r) > maxSearchLength {
		q.Search = string(r[:maxSearchLength])
	}
	return q
}

func (q Query) cacheKey() string {
	return fmt.Sprintf("list|%d|%d|%s|%s", q.Page, q.PageSize, q.Tag, q.Search)
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// Service serves sanitized posts from a small in-process cache. Concurrent
// misses for the same key share one upstream request.
type Service struct {
	client *Client
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

func NewService(client *Client, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Service{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "cms").Logger(),
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

func (s *Service) ListPosts(ctx context.Context, q Query) (*PostPage, error) {
	q = q.Normalize()
	v, err := s.cached(ctx, q.cacheKey(), func(ctx context.Context) (any, error) {
		raw, err := s.client.listPosts(ctx, ListParams{
			Page:     q.Page,
			PageSize: q.PageSize,
			Tag:      q.Tag,
			Search:   q.Search,
		})
		if err != nil {
			return nil, err
		}
		page := &PostPage{
			Posts:    make([]Post, 0, len(raw.Posts)),
			Page:     q.Page,
			PageSize: q.PageSize,
			Total:    raw.Total,
		}
		for _, p := range raw.Posts {
			post := p.toPost(s.client.baseURL)
			// List responses stay small; the body is fetched per post.
			post.ContentHTML = ""
			page.Posts = append(page.Posts, post)
		}
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*PostPage), nil
}

func (s *Service) GetPost(ctx context.Context, slug string) (*Post, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, ErrNotFound
	}
	v, err := s.cached(ctx, "post|"+slug, func(ctx context.Context) (any, error) {
		raw, err := s.client.listPosts(ctx, ListParams{Page: 1, PageSize: 1, Slug: slug})
		if err != nil {
			return nil, err
		}
		if len(raw.Posts) == 0 {
			return nil, ErrNotFound
		}
		post := raw.Posts[0].toPost(s.client.baseURL)
		return &post, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Post), nil
}

// Ping is the health check probe. It bypasses the cache.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Service) cached(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	if v, ok := s.lookup(key); ok {
		metrics.CMSCacheHits.Inc()
		return v, nil
	}
	metrics.CMSCacheMisses.Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Shared by every waiter, so one caller's cancellation must not
		// fail the others.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout*time.Duration(MaxRetries+1))
		defer cancel()
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		s.store(key, v)
		return v, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cms request failed")
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}

func (s *Service) lookup(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(entry.expires) {
		delete(s.cache, key)
		return nil, false
	}
	return entry.value, true
}

func (s *Service) store(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if len(s.cache) >= maxCacheEntries {
		for k, e := range s.cache {
			if !now.Before(e.expires) {
				delete(s.cache, k)
			}
		}
		// Still full of live entries.
		if len(s.cache) >= maxCacheEntries {
			s.cache = make(map[string]cacheEntry)
		}
	}
	s.cache[key] = cacheEntry{value: v, expires: now.Add(s.ttl)}
}
