package provider

import (
	"context"
	"fmt"
	"image"

	"github.com/yahallo-auth/yahallo/internal/domain"
)

// FaceDetector locates candidate faces in a grayscale image.
type FaceDetector interface {
	// Load initialises the detector model. It is called once during warm-up.
	Load(ctx context.Context) error

	// LocateFaces returns every face found in img, in backend order.
	// Rects are paired with img's resolution.
	LocateFaces(ctx context.Context, img *image.Gray) ([]domain.Rect, error)

	Close() error
}

// FaceEncoder turns a face rect into a tagged embedding.
type FaceEncoder interface {
	// Load initialises the embedding model.
	Load(ctx context.Context) error

	// Encode embeds the face at rect. The rect must come from a FaceDetector
	// run on the same image.
	Encode(ctx context.Context, img *image.Gray, rect domain.Rect) (domain.Embedding, error)

	// Model is the tag attached to every embedding this encoder produces.
	Model() domain.ModelTag

	Close() error
}

// LandmarkEncoder is a FaceEncoder with a separate landmark stage that has
// its own model to load.
type LandmarkEncoder interface {
	FaceEncoder
	LoadLandmarks(ctx context.Context) error
}

// DetectorKind selects a FaceDetector implementation.
type DetectorKind string

const (
	// DetectorDlib is the classical HOG detector from dlib.
	DetectorDlib DetectorKind = "dlib"
	// DetectorYuNet is the lightweight CNN detector from OpenCV.
	DetectorYuNet DetectorKind = "yunet"
)

// EncoderKind selects a FaceEncoder implementation.
type EncoderKind string

const (
	// EncoderDlib predicts landmarks then embeds with dlib's ResNet.
	EncoderDlib EncoderKind = "dlib"
	// EncoderSFace embeds the aligned crop directly with OpenCV SFace.
	EncoderSFace EncoderKind = "sface"
)

func ParseDetector(name string) (DetectorKind, error) {
	switch DetectorKind(name) {
	case DetectorDlib, DetectorYuNet:
		return DetectorKind(name), nil
	default:
		return "", fmt.Errorf("unknown detector: %s (supported: %s, %s)", name, DetectorDlib, DetectorYuNet)
	}
}

func ParseEncoder(name string) (EncoderKind, error) {
	switch EncoderKind(name) {
	case EncoderDlib, EncoderSFace:
		return EncoderKind(name), nil
	default:
		return "", fmt.Errorf("unknown encoder: %s (supported: %s, %s)", name, EncoderDlib, EncoderSFace)
	}
}

// ValidatePair rejects detector/encoder combinations that cannot work
// together. SFace was trained on YuNet crops and needs YuNet boxes.
func ValidatePair(det DetectorKind, enc EncoderKind) error {
	if enc == EncoderSFace && det != DetectorYuNet {
		return fmt.Errorf("encoder %s requires detector %s, got %s", enc, DetectorYuNet, det)
	}
	return nil
}

// ModelFor reports the embedding tag an encoder kind produces.
func ModelFor(enc EncoderKind) domain.ModelTag {
	if enc == EncoderSFace {
		return domain.ModelSFace
	}
	return domain.ModelDlib
}
