// Package cms reads blog posts from a Strapi-style headless CMS and serves
// them sanitized and cached.
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second
	// MaxRetries for transient errors.
	MaxRetries     = 2
	RetryBaseDelay = 250 * time.Millisecond

	maxResponseBytes = 4 << 20
)

var (
	ErrNotFound      = errors.New("post not found")
	ErrUnavailable   = errors.New("cms unavailable")
	ErrNotConfigured = errors.New("cms not configured")
)

// Client talks to the CMS REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	retryDelay time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetryDelay overrides the initial backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a CMS client. token is optional and sent as a bearer
// API token when set.
func NewClient(baseURL, token string, opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		retryDelay: RetryBaseDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// ListParams selects one page of posts, newest first.
type ListParams struct {
	Page     int
	PageSize int
	Tag      string
	Search   string
	Slug     string
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
	Meta struct {
		Pagination struct {
			Page     int `json:"page"`
			PageSize int `json:"pageSize"`
			Total    int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

// rawPage is a page of posts before sanitization.
type rawPage struct {
	Posts    []rawPost
	Page     int
	PageSize int
	Total    int
}

func (c *Client) listPosts(ctx context.Context, p ListParams) (*rawPage, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	params := url.Values{}
	params.Set("sort", "publishedAt:desc")
	params.Set("populate", "*")
	params.Set("pagination[page]", strconv.Itoa(p.Page))
	params.Set("pagination[pageSize]", strconv.Itoa(p.PageSize))
	if p.Slug != "" {
		params.Set("filters[slug][$eq]", p.Slug)
	}
	if p.Tag != "" {
		params.Set("filters[tags][slug][$eq]", p.Tag)
	}
	if p.Search != "" {
		params.Set("filters[title][$containsi]", p.Search)
	}

	var resp listResponse
	if err := c.doWithRetry(ctx, c.baseURL+"/api/posts?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	page := &rawPage{
		Page:     resp.Meta.Pagination.Page,
		PageSize: resp.Meta.Pagination.PageSize,
		Total:    resp.Meta.Pagination.Total,
		Posts:    make([]rawPost, 0, len(resp.Data)),
	}
	for _, item := range resp.Data {
		post, err := decodePost(item)
		if err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		page.Posts = append(page.Posts, post)
	}
	return page, nil
}

// Ping checks the CMS answers at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.listPosts(ctx, ListParams{Page: 1, PageSize: 1})
	return err
}

func (c *Client) doWithRetry(ctx context.Context, requestURL string, result any) error {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
		}

		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("%w: parse json: %v", ErrUnavailable, err)
		}
		return nil
	}

	return fmt.Errorf("%w: max retries exceeded: %v", ErrUnavailable, lastErr)
}
