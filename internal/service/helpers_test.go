package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yahallo-auth/yahallo/internal/camera"
	"github.com/yahallo-auth/yahallo/internal/domain"
	providermock "github.com/yahallo-auth/yahallo/internal/provider/mock"
)

const (
	frameWidth  = 64
	frameHeight = 48
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dlibEmbedding(values ...float64) domain.Embedding {
	return domain.Embedding{Model: domain.ModelDlib, Values: values}
}

// fakeCamera serves frames from a script. A true entry is a dark frame;
// once the script runs out every frame is bright.
type fakeCamera struct {
	mu       sync.Mutex
	dark     []bool
	captures int
	err      error
	stopped  chan struct{}
	unblock  chan struct{}
}

func newFakeCamera(dark ...bool) *fakeCamera {
	return &fakeCamera{dark: dark, stopped: make(chan struct{})}
}

func (c *fakeCamera) Capture() (*camera.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}

	value := byte(200)
	if c.captures < len(c.dark) && c.dark[c.captures] {
		value = 0
	}
	c.captures++

	return &camera.Frame{
		Pix:        bytes.Repeat([]byte{value}, frameWidth*frameHeight),
		Width:      frameWidth,
		Height:     frameHeight,
		CapturedAt: time.Now(),
	}, nil
}

func (c *fakeCamera) Stop() error {
	if c.unblock != nil {
		<-c.unblock
	}
	close(c.stopped)
	return nil
}

func (c *fakeCamera) Captures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.captures
}

// fakeOpener hands out fresh cameras built by next and counts opens.
type fakeOpener struct {
	mu      sync.Mutex
	opens   int
	cameras []*fakeCamera
	next    func() *fakeCamera
	err     error
}

func (o *fakeOpener) Open(string) (FrameSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	cam := newFakeCamera()
	if o.next != nil {
		cam = o.next()
	}
	o.cameras = append(o.cameras, cam)
	return cam, nil
}

func (o *fakeOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func (o *fakeOpener) Last() *fakeCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.cameras) == 0 {
		return nil
	}
	return o.cameras[len(o.cameras)-1]
}

// stepClock advances by step on every reading.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

type fixture struct {
	detector   *providermock.Detector
	encoder    *providermock.Encoder
	recognizer *Recognizer
	facesFile  string
}

func newFixture(t *testing.T, faces int, emb domain.Embedding, threshold float64) *fixture {
	t.Helper()

	f := &fixture{
		detector:  providermock.NewDetector(faces),
		encoder:   providermock.NewEncoder(emb),
		facesFile: filepath.Join(t.TempDir(), "faces.json"),
	}

	rec, err := NewRecognizer(context.Background(), RecognizerConfig{
		FacesFile:      f.facesFile,
		MatchThreshold: threshold,
		Metric:         domain.MetricEuclidean,
	}, f.detector, f.encoder, testLogger())
	require.NoError(t, err)

	f.recognizer = rec
	return f
}

func (f *fixture) enroll(t *testing.T, label string, emb domain.Embedding) domain.EnrolledFace {
	t.Helper()
	face, err := f.recognizer.Enroll(emb, label)
	require.NoError(t, err)
	return face
}

var errCameraGone = errors.New("camera unplugged")
