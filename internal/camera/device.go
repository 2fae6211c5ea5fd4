package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blackjack/webcam"
)

// fourcc for 8-bit greyscale
const formatGrey = webcam.PixelFormat('G' | 'R'<<8 | 'E'<<16 | 'Y'<<24)

var (
	ErrNoGrayFormat   = errors.New("camera does not offer GREY format")
	ErrNoDiscreteMode = errors.New("camera offers no discrete resolution/interval for GREY")
	ErrDeviceBusy     = errors.New("camera device already in use")
)

// Device is the subset of *webcam.Webcam used by Camera.
type Device interface {
	GetSupportedFormats() map[webcam.PixelFormat]string
	GetSupportedFrameSizes(f webcam.PixelFormat) []webcam.FrameSize
	GetSupportedFramerates(f webcam.PixelFormat, width, height uint32) []webcam.FrameRate
	SetImageFormat(f webcam.PixelFormat, width, height uint32) (webcam.PixelFormat, uint32, uint32, error)
	SetFramerate(fps float32) error
	StartStreaming() error
	WaitForFrame(timeout uint32) error
	ReadFrame() ([]byte, error)
	StopStreaming() error
	Close() error
}

var _ Device = (*webcam.Webcam)(nil)

// openDevice is replaced in tests.
var openDevice = func(path string) (Device, error) {
	return webcam.Open(path)
}

// Mode is a negotiated capture configuration.
type Mode struct {
	Format   webcam.PixelFormat
	Width    uint32
	Height   uint32
	Interval time.Duration

	numerator   uint32
	denominator uint32
}

// Negotiate picks GREY with the first discrete frame size and the first
// discrete frame interval advertised for it.
func Negotiate(dev Device) (Mode, error) {
	if _, ok := dev.GetSupportedFormats()[formatGrey]; !ok {
		return Mode{}, ErrNoGrayFormat
	}

	var size *webcam.FrameSize
	for _, fs := range dev.GetSupportedFrameSizes(formatGrey) {
		if fs.StepWidth == 0 && fs.StepHeight == 0 && fs.MinWidth == fs.MaxWidth && fs.MinHeight == fs.MaxHeight {
			size = &fs
			break
		}
	}
	if size == nil {
		return Mode{}, fmt.Errorf("%w: frame sizes", ErrNoDiscreteMode)
	}

	var rate *webcam.FrameRate
	for _, fr := range dev.GetSupportedFramerates(formatGrey, size.MaxWidth, size.MaxHeight) {
		if fr.StepNumerator == 0 && fr.StepDenominator == 0 &&
			fr.MinNumerator == fr.MaxNumerator && fr.MinDenominator == fr.MaxDenominator &&
			fr.MaxDenominator != 0 {
			rate = &fr
			break
		}
	}
	if rate == nil {
		return Mode{}, fmt.Errorf("%w: frame intervals", ErrNoDiscreteMode)
	}

	return Mode{
		Format:      formatGrey,
		Width:       size.MaxWidth,
		Height:      size.MaxHeight,
		Interval:    time.Duration(float64(time.Second) * float64(rate.MaxNumerator) / float64(rate.MaxDenominator)),
		numerator:   rate.MaxNumerator,
		denominator: rate.MaxDenominator,
	}, nil
}

// FPS is the frame rate implied by the negotiated interval.
func (m Mode) FPS() float32 {
	if m.numerator == 0 {
		return 0
	}
	return float32(m.denominator) / float32(m.numerator)
}

// held tracks devices owned by a live Camera in this process.
var held sync.Map

func acquire(path string) error {
	if _, loaded := held.LoadOrStore(path, struct{}{}); loaded {
		return fmt.Errorf("%s: %w", path, ErrDeviceBusy)
	}
	return nil
}

func release(path string) {
	held.Delete(path)
}
