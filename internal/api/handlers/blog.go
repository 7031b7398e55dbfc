package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/punktual/server/internal/cms"
	"github.com/punktual/server/internal/validation"
)

// BlogSource is the read side of the CMS.
type BlogSource interface {
	ListPosts(ctx context.Context, q cms.Query) (*cms.PostPage, error)
	GetPost(ctx context.Context, slug string) (*cms.Post, error)
}

type BlogHandler struct {
	Posts BlogSource
	Env   string
}

func (h *BlogHandler) List(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	page, err := optionalInt(values.Get("page"), "page")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	pageSize, err := optionalInt(values.Get("page_size"), "page_size")
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	result, err := h.Posts.ListPosts(r.Context(), cms.Query{
		Page:     page,
		PageSize: pageSize,
		Tag:      values.Get("tag"),
		Search:   values.Get("q"),
	})
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, result)
}

func (h *BlogHandler) Get(w http.ResponseWriter, r *http.Request) {
	post, err := h.Posts.GetPost(r.Context(), r.PathValue("slug"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, post)
}

func optionalInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.Error{Field: field, Message: "must be an integer"}
	}
	return n, nil
}
