package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/punktual/server/internal/api/problem"
	"github.com/punktual/server/internal/audit"
	"github.com/punktual/server/internal/domain/account"
)

const ConfirmationTokenHeader = "X-Confirmation-Token"

// AccountHandler serves the GDPR export and deletion endpoints.
type AccountHandler struct {
	Service *account.Service
	Env     string
}

// Export returns everything stored about the caller as a download. JSON by
// default, YAML with ?format=yaml.
func (h *AccountHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "yaml" {
		problem.BadRequest(w, r, "Validation failed", fmt.Errorf("unsupported export format %q", format), h.Env,
			problem.WithDetail("format must be json or yaml"),
			problem.WithErrors(map[string]any{"format": "must be json or yaml"}))
		return
	}

	logger := audit.FromContext(r.Context())
	export, err := h.Service.Export(r.Context(), userID)
	if err != nil {
		logger.LogFromRequest(r, audit.ActionAccountExport, "account", userID.String(), audit.StatusFailure, nil)
		writeError(w, r, err, h.Env)
		return
	}

	body, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		writeError(w, r, fmt.Errorf("marshal export: %w", err), h.Env)
		return
	}
	contentType := "application/json"
	if format == "yaml" {
		body, err = yaml.JSONToYAML(body)
		if err != nil {
			writeError(w, r, fmt.Errorf("convert export to yaml: %w", err), h.Env)
			return
		}
		contentType = "application/yaml"
	}

	logger.LogFromRequest(r, audit.ActionAccountExport, "account", userID.String(), audit.StatusSuccess,
		map[string]string{"format": format})

	filename := fmt.Sprintf("punktual-export-%s.%s", export.ExportedAt.Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type deletionTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DeletionToken issues the confirmation token DELETE /api/v1/account needs.
func (h *AccountHandler) DeletionToken(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}
	token, expiresAt, err := h.Service.IssueDeletionToken(r.Context(), userID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	audit.FromContext(r.Context()).LogFromRequest(r, audit.ActionDeletionToken, "account", userID.String(), audit.StatusSuccess, nil)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, deletionTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// Delete erases the account. The session cookies are cleared on success.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := currentUser(r)
	if !ok {
		writeError(w, r, errNoUser, h.Env)
		return
	}

	logger := audit.FromContext(r.Context())
	token := strings.TrimSpace(r.Header.Get(ConfirmationTokenHeader))
	if err := h.Service.Delete(r.Context(), userID, token); err != nil {
		logger.LogFromRequest(r, audit.ActionAccountDeleteFail, "account", userID.String(), audit.StatusFailure,
			map[string]string{"reason": err.Error()})
		writeError(w, r, err, h.Env)
		return
	}

	logger.LogFromRequest(r, audit.ActionAccountDelete, "account", userID.String(), audit.StatusSuccess, nil)
	clearSessionCookies(w, h.Env)
	w.WriteHeader(http.StatusNoContent)
}
