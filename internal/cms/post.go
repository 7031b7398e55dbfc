package cms

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/punktual/server/internal/sanitize"
)

// Post is a blog post safe to render: ContentHTML has been through the UGC
// policy and every other field is plain text.
type Post struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ContentHTML string    `json:"content_html,omitempty"`
	Tags        []Tag     `json:"tags"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CoverURL    string    `json:"cover_url,omitempty"`
}

type Tag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type PostPage struct {
	Posts    []Post `json:"posts"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Total    int    `json:"total"`
}

// rawPost is one entry as the CMS returns it. Both the nested
// {"id", "attributes": {...}} shape and the flat shape decode into it.
type rawPost struct {
	ID          json.Number     `json:"id"`
	DocumentID  string          `json:"documentId"`
	Slug        string          `json:"slug"`
	Title       string          `json:"title"`
	Excerpt     string          `json:"excerpt"`
	Content     string          `json:"content"`
	PublishedAt time.Time       `json:"publishedAt"`
	Tags        json.RawMessage `json:"tags"`
	Author      json.RawMessage `json:"author"`
	Cover       json.RawMessage `json:"cover"`
}

type rawTag struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type rawAuthor struct {
	Name string `json:"name"`
}

type rawMedia struct {
	URL string `json:"url"`
}

func decodePost(item json.RawMessage) (rawPost, error) {
	var envelope struct {
		ID         json.Number     `json:"id"`
		Attributes json.RawMessage `json:"attributes"`
	}
	if err := json.Unmarshal(item, &envelope); err != nil {
		return rawPost{}, err
	}

	var post rawPost
	body := item
	if len(envelope.Attributes) > 0 {
		body = envelope.Attributes
	}
	if err := json.Unmarshal(body, &post); err != nil {
		return rawPost{}, err
	}
	if post.ID == "" {
		post.ID = envelope.ID
	}
	return post, nil
}

// unwrapRelation strips the {"data": ...} and {"attributes": ...} wrappers
// relations carry in the nested response shape.
func unwrapRelation(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		var wrapper struct {
			Data       json.RawMessage `json:"data"`
			Attributes json.RawMessage `json:"attributes"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil {
			switch {
			case len(wrapper.Data) > 0:
				return unwrapRelation(wrapper.Data)
			case len(wrapper.Attributes) > 0:
				return wrapper.Attributes
			}
		}
	}
	return raw
}

func decodeTags(raw json.RawMessage) []Tag {
	raw = unwrapRelation(raw)
	tags := []Tag{}
	if raw == nil {
		return tags
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return tags
	}
	for _, item := range items {
		var t rawTag
		if err := json.Unmarshal(unwrapRelation(item), &t); err != nil {
			continue
		}
		slug := sanitize.PlainText(t.Slug)
		if slug == "" {
			continue
		}
		tags = append(tags, Tag{Slug: slug, Name: sanitize.PlainText(t.Name)})
	}
	return tags
}

func decodeAuthor(raw json.RawMessage) string {
	raw = unwrapRelation(raw)
	if raw == nil {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return sanitize.PlainText(name)
	}
	var a rawAuthor
	if err := json.Unmarshal(raw, &a); err != nil {
		return ""
	}
	return sanitize.PlainText(a.Name)
}

// decodeCover returns an absolute cover URL. Media served by the CMS itself
// comes back as a path.
func decodeCover(raw json.RawMessage, baseURL string) string {
	raw = unwrapRelation(raw)
	if raw == nil {
		return ""
	}
	var m rawMedia
	if err := json.Unmarshal(raw, &m); err != nil || m.URL == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(m.URL, "https://"), strings.HasPrefix(m.URL, "http://"):
		return m.URL
	case strings.HasPrefix(m.URL, "/"):
		return baseURL + m.URL
	}
	return ""
}

func (p rawPost) toPost(baseURL string) Post {
	id := p.DocumentID
	if id == "" {
		id = p.ID.String()
	}
	return Post{
		ID:          id,
		Slug:        sanitize.PlainText(p.Slug),
		Title:       sanitize.Text(p.Title),
		Excerpt:     sanitize.Text(p.Excerpt),
		ContentHTML: sanitize.HTML(p.Content),
		Tags:        decodeTags(p.Tags),
		Author:      decodeAuthor(p.Author),
		PublishedAt: p.PublishedAt.UTC(),
		CoverURL:    decodeCover(p.Cover, baseURL),
	}
}
