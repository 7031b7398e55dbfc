package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/punktual/server/internal/auth"
	"github.com/punktual/server/internal/clientip"
)

// Audited actions.
const (
	ActionLogin             = "auth.login"
	ActionLoginFailed       = "auth.login_failed"
	ActionLogout            = "auth.logout"
	ActionShortLinkCreate   = "shortlink.create"
	ActionAccountExport     = "account.export"
	ActionDeletionToken     = "account.deletion_token"
	ActionAccountDelete     = "account.delete"
	ActionAccountDeleteFail = "account.delete_failed"
	ActionCSRFFailure       = "csrf.failure"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	UserID       string            `json:"user_id"`
	ResourceType string            `json:"resource_type,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	IPAddress    string            `json:"ip_address"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

// Logger writes audit entries as nested "audit" objects on a zerolog logger.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger derives an audit logger from the global zerolog logger.
func NewLogger() *Logger {
	return NewLoggerWithZerolog(log.Logger)
}

func NewLoggerWithZerolog(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Logger()}
}

// Log writes an audit entry at info level.
func (l *Logger) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	l.logger.Info().Interface("audit", entry).Msg(entry.Action)
}

func (l *Logger) LogSuccess(action, userID, resourceType, resourceID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:       action,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ipAddress,
		Status:       StatusSuccess,
		Details:      details,
	})
}

func (l *Logger) LogFailure(action, userID, ipAddress string, details map[string]string) {
	l.Log(Entry{
		Action:    action,
		UserID:    userID,
		IPAddress: ipAddress,
		Status:    StatusFailure,
		Details:   details,
	})
}

// LogFromRequest takes the user from the auth middleware claims and the
// client IP from the clientip middleware.
func (l *Logger) LogFromRequest(r *http.Request, action, resourceType, resourceID, status string, details map[string]string) {
	userID := "anonymous"
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil && claims.Subject != "" {
		userID = claims.Subject
	}

	l.Log(Entry{
		Action:       action,
		UserID:       userID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    clientip.FromRequest(r),
		Status:       status,
		Details:      details,
	})
}

type contextKey string

const auditLoggerKey contextKey = "auditLogger"

// WithLogger adds an audit logger to the request context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, auditLoggerKey, logger)
}

// FromContext retrieves the audit logger from ctx, falling back to one
// built on the global logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(auditLoggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return NewLogger()
}

// Middleware injects logger into every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithLogger(r.Context(), logger)))
		})
	}
}
