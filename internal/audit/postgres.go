package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PgxPool is the subset of *pgxpool.Pool used by PostgresLogger.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLogger stores events in the auth_attempts table.
type PostgresLogger struct {
	pool PgxPool
}

func NewPostgresLogger(pool PgxPool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) Log(ctx context.Context, event Event) error {
	fill(&event)

	query := `
		INSERT INTO auth_attempts (id, event_type, username, result, success, face_id, label, model, frames, latency_ms, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`

	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}

	var faceID *int64
	if event.FaceID != 0 {
		id := int64(event.FaceID)
		faceID = &id
	}

	err := l.pool.QueryRow(ctx, query,
		event.ID,
		string(event.EventType),
		event.Username,
		event.Result,
		event.Success,
		faceID,
		event.Label,
		event.Model,
		event.Frames,
		event.LatencyMs,
		event.Error,
		metadata,
		event.Timestamp,
	).Scan(&event.Timestamp)

	if err != nil {
		return fmt.Errorf("create auth attempt: %w", err)
	}

	return nil
}
