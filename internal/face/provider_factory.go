package face

import (
	"fmt"

	"github.com/yahallo-auth/yahallo/internal/config"
	"github.com/yahallo-auth/yahallo/internal/provider"
	"github.com/yahallo-auth/yahallo/internal/provider/dlib"
	"github.com/yahallo-auth/yahallo/internal/provider/opencv"
)

// Backends is the detector/encoder pair selected by configuration.
type Backends struct {
	Detector provider.FaceDetector
	Encoder  provider.FaceEncoder
}

// NewBackends builds the configured detector and encoder without loading
// any model. Loading happens during recognizer warm-up.
//
// Supported combinations:
//   - detector "dlib" or "yunet" with encoder "dlib"
//   - detector "yunet" with encoder "sface"
func NewBackends(cfg *config.Config) (*Backends, error) {
	det, err := provider.ParseDetector(cfg.Detector)
	if err != nil {
		return nil, err
	}
	enc, err := provider.ParseEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}
	if err := provider.ValidatePair(det, enc); err != nil {
		return nil, err
	}

	// dlib detector and encoder share one recognizer
	var models *dlib.Models
	if det == provider.DetectorDlib || enc == provider.EncoderDlib {
		models = dlib.NewModels(cfg.ModelDir)
	}

	b := &Backends{}
	switch det {
	case provider.DetectorDlib:
		b.Detector = dlib.NewDetector(models)
	case provider.DetectorYuNet:
		b.Detector = opencv.NewYuNetDetector(cfg.ModelDir)
	default:
		return nil, fmt.Errorf("unknown detector: %s (supported: %s, %s)", det, provider.DetectorDlib, provider.DetectorYuNet)
	}

	switch enc {
	case provider.EncoderDlib:
		b.Encoder = dlib.NewEncoder(models)
	case provider.EncoderSFace:
		b.Encoder = opencv.NewSFaceEncoder(cfg.ModelDir)
	default:
		return nil, fmt.Errorf("unknown encoder: %s (supported: %s, %s)", enc, provider.EncoderDlib, provider.EncoderSFace)
	}

	return b, nil
}
