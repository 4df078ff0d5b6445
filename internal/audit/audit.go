package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventType names the category of an audit log entry. AuthService does not
// use these constants: it passes its own dotted action strings (for example
// "auth.login.success") as DBLogger/JSONAuditLogger's action argument.
type EventType string

const (
	EventLoginSuccess       EventType = "LOGIN_SUCCESS"
	EventLoginFailed        EventType = "LOGIN_FAILED"
	EventLogout             EventType = "LOGOUT"
	EventTokenReuseDetected EventType = "TOKEN_REUSE_DETECTED"
	EventSessionsRevoked    EventType = "SESSIONS_REVOKED"
	EventPasswordChange     EventType = "PASSWORD_CHANGE"
)

// JSONAuditLogger is an AuditService that writes structured logs to stdout
// under a log_type field log aggregators can filter into a separate audit
// index, for environments without a database to persist audit_logs into
// (local dev, CI).
type JSONAuditLogger struct {
	logger *slog.Logger
}

func NewJSONAuditLogger() *JSONAuditLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &JSONAuditLogger{logger: slog.New(handler)}
}

func (l *JSONAuditLogger) Log(ctx context.Context, action string, params LogParams) {
	fields := []interface{}{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("action", action),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	if params.ActorID != uuid.Nil {
		fields = append(fields, slog.String("actor_id", params.ActorID.String()))
	}
	if params.TargetID != uuid.Nil {
		fields = append(fields, slog.String("target_id", params.TargetID.String()))
	}
	for k, v := range params.Metadata {
		fields = append(fields, slog.Any("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}

// MockAuditLogger is a no-op AuditService for tests that don't care about
// the audit trail.
type MockAuditLogger struct{}

func (MockAuditLogger) Log(context.Context, string, LogParams) {}
