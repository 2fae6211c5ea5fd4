package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventAuthAttempt   EventType = "AUTH_ATTEMPT"
	EventAuthLocked    EventType = "AUTH_LOCKED"
	EventFaceEnrolled  EventType = "FACE_ENROLLED"
	EventFacesReloaded EventType = "FACES_RELOADED"
)

// Event is one audited authentication or enrollment action.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType EventType         `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Result    string            `json:"result"`
	Success   bool              `json:"success"`
	FaceID    uint64            `json:"face_id,omitempty"`
	Label     string            `json:"label,omitempty"`
	Model     string            `json:"model,omitempty"`
	Frames    int               `json:"frames,omitempty"`
	LatencyMs int64             `json:"latency_ms"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// fill sets the generated fields of an event.
func fill(event *Event) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	fill(&event)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("username", event.Username),
		slog.String("result", event.Result),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

// MultiLogger sends every event to all of its loggers. The event id and
// timestamp are assigned once so every sink records the same values.
type MultiLogger []Logger

func (m MultiLogger) Log(ctx context.Context, event Event) error {
	fill(&event)
	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
