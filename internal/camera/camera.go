package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/blackjack/webcam"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/imaging"
)

const (
	// frameWaitSeconds bounds a single WaitForFrame call.
	frameWaitSeconds = 1
	// maxFrameWaits is how many timed out polls in a row Capture tolerates.
	maxFrameWaits = 3
)

// ErrNoFrames is returned when the device stops delivering frames.
var ErrNoFrames = errors.New("camera delivered no frames")

// Frame is one captured greyscale frame. It owns its pixel buffer.
type Frame struct {
	Pix        []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Image returns the frame as an *image.Gray sharing the frame's buffer.
func (f *Frame) Image() (*image.Gray, error) {
	return imaging.FromGray(f.Pix, f.Width, f.Height)
}

func (f *Frame) Resolution() domain.Resolution {
	return domain.Resolution{Width: f.Width, Height: f.Height}
}

// Camera holds a V4L2 device exclusively from Start until Stop.
type Camera struct {
	path   string
	dev    Device
	mode   Mode
	logger *slog.Logger

	stopOnce sync.Once
	stopErr  error
}

// Start opens the device, negotiates a GREY mode and begins streaming.
func Start(path string, logger *slog.Logger) (*Camera, error) {
	if err := acquire(path); err != nil {
		return nil, err
	}

	cam, err := start(path, logger)
	if err != nil {
		release(path)
		return nil, err
	}
	return cam, nil
}

func start(path string, logger *slog.Logger) (*Camera, error) {
	dev, err := openDevice(path)
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", path, err)
	}

	mode, err := Negotiate(dev)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("configure camera %s: %w", path, err)
	}

	format, w, h, err := dev.SetImageFormat(mode.Format, mode.Width, mode.Height)
	if err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("set image format: %w", err)
	}
	if format != mode.Format {
		_ = dev.Close()
		return nil, fmt.Errorf("set image format: %w", ErrNoGrayFormat)
	}
	mode.Width, mode.Height = w, h

	if fps := mode.FPS(); fps > 0 {
		if err := dev.SetFramerate(fps); err != nil {
			// not every driver accepts S_PARM; the negotiated default is fine
			logger.Debug("set framerate failed", slog.String("error", err.Error()))
		}
	}

	if err := dev.StartStreaming(); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("start streaming: %w", err)
	}

	logger.Debug("camera started",
		slog.String("device", path),
		slog.Int("width", int(mode.Width)),
		slog.Int("height", int(mode.Height)),
		slog.Duration("interval", mode.Interval),
	)

	return &Camera{
		path:   path,
		dev:    dev,
		mode:   mode,
		logger: logger,
	}, nil
}

// Capture blocks until the next frame arrives and returns a copy of it. A
// device that stays silent for maxFrameWaits polls fails with ErrNoFrames.
func (c *Camera) Capture() (*Frame, error) {
	size := int(c.mode.Width) * int(c.mode.Height)
	waits := 0
	for {
		err := c.dev.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			waits++
			if waits >= maxFrameWaits {
				return nil, fmt.Errorf("wait for frame: %w after %ds", ErrNoFrames, waits*frameWaitSeconds)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("wait for frame: %w", err)
		}

		buf, err := c.dev.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if len(buf) == 0 {
			continue
		}
		if len(buf) < size {
			return nil, fmt.Errorf("read frame: got %d bytes, want %d", len(buf), size)
		}

		return &Frame{
			Pix:        bytes.Clone(buf[:size]),
			Width:      int(c.mode.Width),
			Height:     int(c.mode.Height),
			CapturedAt: time.Now(),
		}, nil
	}
}

func (c *Camera) Resolution() domain.Resolution {
	return domain.Resolution{Width: int(c.mode.Width), Height: int(c.mode.Height)}
}

func (c *Camera) Interval() time.Duration {
	return c.mode.Interval
}

func (c *Camera) Device() string {
	return c.path
}

// Stop stops streaming and releases the device. It can be slow and is safe
// to call more than once.
func (c *Camera) Stop() error {
	c.stopOnce.Do(func() {
		start := time.Now()
		defer release(c.path)

		streamErr := c.dev.StopStreaming()
		closeErr := c.dev.Close()
		c.stopErr = errors.Join(streamErr, closeErr)

		c.logger.Debug("camera stopped",
			slog.String("device", c.path),
			slog.Duration("duration", time.Since(start)),
		)
	})
	return c.stopErr
}
