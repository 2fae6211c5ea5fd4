package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/yahallo-auth/yahallo/internal/camera"
	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/imaging"
	"github.com/yahallo-auth/yahallo/internal/repository"
)

// FrameSource is a started camera.
type FrameSource interface {
	Capture() (*camera.Frame, error)
	Stop() error
}

// CameraOpener starts the camera at device.
type CameraOpener func(device string) (FrameSource, error)

// OpenCamera returns a CameraOpener backed by V4L2 devices.
func OpenCamera(logger *slog.Logger) CameraOpener {
	return func(device string) (FrameSource, error) {
		cam, err := camera.Start(device, logger)
		if err != nil {
			return nil, err
		}
		return cam, nil
	}
}

// Matcher is the part of Recognizer a session needs.
type Matcher interface {
	HasEnrollments() bool
	CheckMatch(ctx context.Context, img *image.Gray) (*repository.Match, error)
}

var _ Matcher = (*Recognizer)(nil)

type SessionConfig struct {
	Device        string
	Timeout       time.Duration
	DarkThreshold int
}

// State is where a session ended.
type State string

const (
	StateMatched       State = "matched"
	StateNoData        State = "no_data"
	StateTimedOut      State = "timed_out"
	StateMultipleFaces State = "multiple_faces"
	StateError         State = "error"
)

// Outcome describes a finished session.
type Outcome struct {
	State     State
	Face      *domain.EnrolledFace
	Distance  float64
	Frames    int // frames captured
	Dark      int // frames rejected as too dark
	Processed int // frames that reached the detector
	Duration  time.Duration
}

// Session runs the capture, gate, detect, encode and match loop. Runs must
// not overlap; the camera of a finished run is stopped in the background and
// the next run waits for that before opening the device again.
type Session struct {
	cfg     SessionConfig
	open    CameraOpener
	matcher Matcher
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	teardown chan struct{}
}

func NewSession(cfg SessionConfig, open CameraOpener, matcher Matcher, logger *slog.Logger) *Session {
	return &Session{
		cfg:     cfg,
		open:    open,
		matcher: matcher,
		logger:  logger.With("component", "session"),
		now:     time.Now,
	}
}

// Run performs one authentication attempt. A nil error means the outcome is
// StateMatched; otherwise the error belongs to the domain taxonomy.
func (s *Session) Run(ctx context.Context, username string) (out Outcome, err error) {
	start := s.now()
	defer func() {
		out.Duration = s.now().Sub(start)
		if err != nil && out.State == "" {
			out.State = StateError
		}
	}()

	if !s.matcher.HasEnrollments() {
		out.State = StateNoData
		return out, domain.ErrNoData
	}

	// the previous run's camera must be released before we open it again
	s.Wait()

	cam, err := s.open(s.cfg.Device)
	if err != nil {
		return out, domain.Other(fmt.Errorf("start camera: %w", err))
	}
	defer s.release(cam)

	// the timeout covers capturing only, not waiting for the device
	deadline := s.now().Add(s.cfg.Timeout)
	for {
		if !s.now().Before(deadline) {
			out.State = StateTimedOut
			return out, domain.ErrTimeout
		}
		if err := ctx.Err(); err != nil {
			return out, domain.Other(err)
		}

		frame, err := cam.Capture()
		if err != nil {
			return out, domain.Other(fmt.Errorf("capture frame: %w", err))
		}
		out.Frames++

		img, err := frame.Image()
		if err != nil {
			return out, domain.Other(err)
		}

		dark, err := imaging.IsDark(img, s.cfg.DarkThreshold)
		if err != nil {
			return out, domain.Other(err)
		}
		if dark {
			out.Dark++
			s.logger.Debug("frame too dark", slog.Int("frame", out.Frames))
			continue
		}

		out.Processed++
		match, err := s.matcher.CheckMatch(ctx, img)
		if errors.Is(err, domain.ErrMultipleFaces) {
			out.State = StateMultipleFaces
			return out, domain.ErrMultipleFaces
		}
		if err != nil {
			return out, domain.Other(err)
		}
		if match == nil {
			continue
		}

		out.State = StateMatched
		out.Face = &match.Face
		out.Distance = match.Distance
		s.logger.Debug("face matched",
			slog.String("username", username),
			slog.Uint64("id", match.Face.ID),
			slog.Float64("distance", match.Distance),
		)
		return out, nil
	}
}

// release stops cam on a detached goroutine.
func (s *Session) release(cam FrameSource) {
	done := make(chan struct{})

	s.mu.Lock()
	s.teardown = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		start := time.Now()
		if err := cam.Stop(); err != nil {
			s.logger.Error("camera stop failed", slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("camera released", slog.Duration("duration", time.Since(start)))
	}()
}

// Wait blocks until the camera of the last run has been stopped.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.teardown
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}
