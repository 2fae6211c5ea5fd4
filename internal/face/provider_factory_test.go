package face

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahallo-auth/yahallo/internal/config"
	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
	"github.com/yahallo-auth/yahallo/internal/provider/dlib"
	"github.com/yahallo-auth/yahallo/internal/provider/opencv"
)

func TestNewBackends(t *testing.T) {
	tests := []struct {
		name      string
		detector  string
		encoder   string
		wantDet   string
		wantEnc   string
		wantModel domain.ModelTag
	}{
		{
			name:      "dlib pair",
			detector:  "dlib",
			encoder:   "dlib",
			wantDet:   "*dlib.Detector",
			wantEnc:   "*dlib.Encoder",
			wantModel: domain.ModelDlib,
		},
		{
			name:      "yunet with dlib encoder",
			detector:  "yunet",
			encoder:   "dlib",
			wantDet:   "*opencv.YuNetDetector",
			wantEnc:   "*dlib.Encoder",
			wantModel: domain.ModelDlib,
		},
		{
			name:      "yunet with sface",
			detector:  "yunet",
			encoder:   "sface",
			wantDet:   "*opencv.YuNetDetector",
			wantEnc:   "*opencv.SFaceEncoder",
			wantModel: domain.ModelSFace,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Detector: tt.detector, Encoder: tt.encoder, ModelDir: t.TempDir()}

			b, err := NewBackends(cfg)
			require.NoError(t, err)

			switch tt.wantDet {
			case "*dlib.Detector":
				assert.IsType(t, &dlib.Detector{}, b.Detector)
			case "*opencv.YuNetDetector":
				assert.IsType(t, &opencv.YuNetDetector{}, b.Detector)
			}
			switch tt.wantEnc {
			case "*dlib.Encoder":
				assert.IsType(t, &dlib.Encoder{}, b.Encoder)
				_, ok := b.Encoder.(provider.LandmarkEncoder)
				assert.True(t, ok, "dlib encoder has a landmark stage")
			case "*opencv.SFaceEncoder":
				assert.IsType(t, &opencv.SFaceEncoder{}, b.Encoder)
			}
			assert.Equal(t, tt.wantModel, b.Encoder.Model())
			assert.Equal(t, tt.wantModel, provider.ModelFor(provider.EncoderKind(tt.encoder)))
		})
	}
}

func TestNewBackends_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		detector string
		encoder  string
	}{
		{"unknown detector", "haar", "dlib"},
		{"unknown encoder", "yunet", "arcface"},
		{"sface without yunet", "dlib", "sface"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBackends(&config.Config{Detector: tt.detector, Encoder: tt.encoder})
			assert.Error(t, err)
		})
	}
}
