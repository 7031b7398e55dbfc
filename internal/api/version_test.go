package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name string
		in   BuildInfo
		want BuildInfo
	}{
		{
			name: "stamped",
			in:   BuildInfo{Version: "0.3.0", GitCommit: "abc123", BuildDate: "2026-09-01T12:00:00Z"},
			want: BuildInfo{Version: "0.3.0", GitCommit: "abc123", BuildDate: "2026-09-01T12:00:00Z"},
		},
		{
			name: "defaults",
			want: BuildInfo{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
		},
		{
			name: "partial",
			in:   BuildInfo{Version: "1.0.0"},
			want: BuildInfo{Version: "1.0.0", GitCommit: "unknown", BuildDate: "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			VersionHandler(tt.in).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			var got BuildInfo
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

			tt.want.GoVersion = runtime.Version()
			assert.Equal(t, tt.want, got)
		})
	}
}
