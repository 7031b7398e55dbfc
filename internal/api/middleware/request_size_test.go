package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readingHandler(bodyRead *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		*bodyRead = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name           string
		maxBytes       int64
		bodySize       int
		expectStatus   int
		expectBodyRead bool
	}{
		{"small request accepted", 1024, 512, http.StatusOK, true},
		{"exact limit accepted", 1024, 1024, http.StatusOK, true},
		{"oversized request rejected", 1024, 2048, http.StatusRequestEntityTooLarge, false},
		{"json limit", JSONMaxBodySize, int(JSONMaxBodySize) + 1, http.StatusRequestEntityTooLarge, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bodyRead := false
			handler := RequestSize(tt.maxBytes, "test")(readingHandler(&bodyRead))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/links", bytes.NewReader(bytes.Repeat([]byte("x"), tt.bodySize)))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectStatus, rec.Code)
			assert.Equal(t, tt.expectBodyRead, bodyRead)
		})
	}
}

func TestRequestSize_DeclaredLengthRejectedAsProblem(t *testing.T) {
	bodyRead := false
	handler := RequestSize(10, "test")(readingHandler(&bodyRead))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(bytes.Repeat([]byte("x"), 20)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.False(t, bodyRead)
}

func TestRequestSize_UndeclaredLengthStillCapped(t *testing.T) {
	bodyRead := false
	handler := RequestSize(10, "test")(readingHandler(&bodyRead))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(bytes.Repeat([]byte("x"), 20)))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, bodyRead)
}

func TestRequestSize_NoBody(t *testing.T) {
	handler := RequestSize(1024, "test")(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
