package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/yahallo-auth/yahallo/internal/audit"
	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/ratelimit"
)

// Faces is the face store view the daemon needs besides matching.
type Faces interface {
	Matcher
	Reload() error
	Model() domain.ModelTag
}

// AuthService serializes authentication attempts, applies the failed-attempt
// lockout and audits every outcome.
type AuthService struct {
	mu      sync.Mutex
	session *Session
	faces   Faces
	limiter *ratelimit.Limiter
	audit   audit.Logger
	logger  *slog.Logger
}

type Option func(*AuthService)

// WithAuditLogger sets the audit logger for the service
func WithAuditLogger(l audit.Logger) Option {
	return func(s *AuthService) {
		s.audit = l
	}
}

// WithLimiter enables the failed-attempt lockout.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *AuthService) {
		s.limiter = l
	}
}

func NewAuthService(faces Faces, open CameraOpener, cfg SessionConfig, logger *slog.Logger, opts ...Option) *AuthService {
	s := &AuthService{
		session: NewSession(cfg, open, faces, logger),
		faces:   faces,
		limiter: ratelimit.NewLimiter(0, 0),
		audit:   &audit.NoOpLogger{},
		logger:  logger.With("component", "auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate runs one session for username. It returns nil only when an
// enrolled face was matched.
func (s *AuthService) Authenticate(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.limiter.Check(username); err != nil {
		s.logger.Warn("user locked out", slog.String("username", username), slog.String("reason", err.Error()))
		s.record(ctx, audit.Event{
			EventType: audit.EventAuthLocked,
			Username:  username,
			Result:    domain.Result(domain.Other(ratelimit.ErrTooManyAttempts)),
			Metadata:  map[string]string{"failures": strconv.Itoa(s.limiter.Failures(username))},
		})
		return domain.Other(ratelimit.ErrTooManyAttempts)
	}

	out, err := s.session.Run(ctx, username)
	if err == nil {
		s.limiter.Reset(username)
	} else if domain.CodeOf(err) != domain.CodeNoData {
		s.limiter.RecordFailure(username)
	}

	result := domain.Result(err)
	event := audit.Event{
		EventType: audit.EventAuthAttempt,
		Username:  username,
		Result:    result,
		Success:   err == nil,
		Model:     string(s.faces.Model()),
		Frames:    out.Frames,
		LatencyMs: out.Duration.Milliseconds(),
		Metadata: map[string]string{
			"state":     string(out.State),
			"dark":      strconv.Itoa(out.Dark),
			"processed": strconv.Itoa(out.Processed),
		},
	}
	if out.Face != nil {
		event.FaceID = out.Face.ID
		event.Label = out.Face.Label
		event.Metadata["distance"] = strconv.FormatFloat(out.Distance, 'f', 4, 64)
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.record(ctx, event)

	s.logger.Info("authentication finished",
		slog.String("username", username),
		slog.String("result", result),
		slog.Int("frames", out.Frames),
		slog.Duration("duration", out.Duration),
	)
	return err
}

// ReloadFaces re-reads the face store between sessions.
func (s *AuthService) ReloadFaces(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	if err := s.faces.Reload(); err != nil {
		return fmt.Errorf("reload faces: %w", err)
	}

	s.record(ctx, audit.Event{
		EventType: audit.EventFacesReloaded,
		Result:    domain.ResultSuccess,
		Success:   true,
		LatencyMs: time.Since(start).Milliseconds(),
	})
	return nil
}

// Wait blocks until any background camera release has finished.
func (s *AuthService) Wait() {
	s.session.Wait()
}

func (s *AuthService) record(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Error("audit log failed",
			slog.String("event_type", string(event.EventType)),
			slog.String("error", err.Error()),
		)
	}
}
