package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditService defines the interface for recording security events.
type AuditService interface {
	Log(ctx context.Context, action string, params LogParams)
}

// LogParams encapsulates optional fields for an audit log entry.
type LogParams struct {
	ActorID  uuid.UUID
	TargetID uuid.UUID
	Metadata map[string]any
}

// DBLogger implements AuditService against the audit_logs table directly
// via pgx, generalizing the teacher's sqlc-backed DBLogger since the sqlc
// query layer is not part of this rewrite.
type DBLogger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDBLogger(pool *pgxpool.Pool, logger *slog.Logger) *DBLogger {
	return &DBLogger{pool: pool, logger: logger}
}

// Log records an event synchronously. At higher scale this should push to
// a queue instead of blocking the caller on a DB round-trip.
func (s *DBLogger) Log(ctx context.Context, action string, params LogParams) {
	metadataBytes, err := json.Marshal(params.Metadata)
	if err != nil {
		s.logger.Error("audit_metadata_marshal_failed", "error", err)
		metadataBytes = []byte("{}")
	}

	var actorID, targetID *uuid.UUID
	if params.ActorID != uuid.Nil {
		actorID = &params.ActorID
	}
	if params.TargetID != uuid.Nil {
		targetID = &params.TargetID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, target_id, action, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), actorID, targetID, action, metadataBytes, time.Now().UTC(),
	)
	if err != nil {
		// Fallback: log to stdout so the event isn't lost entirely.
		s.logger.Error("audit_db_insert_failed",
			"action", action,
			"error", err,
			"actor", params.ActorID,
		)
	}
}
