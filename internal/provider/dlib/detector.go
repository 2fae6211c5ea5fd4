package dlib

import (
	"context"
	"image"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

// Detector is the classical dlib HOG face detector.
type Detector struct {
	models *Models
}

var _ provider.FaceDetector = (*Detector)(nil)

func NewDetector(models *Models) *Detector {
	return &Detector{models: models}
}

func (d *Detector) Load(_ context.Context) error {
	return d.models.Load()
}

func (d *Detector) LocateFaces(ctx context.Context, img *image.Gray) ([]domain.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faces, err := d.models.detect(img)
	if err != nil {
		return nil, err
	}

	rects := make([]domain.Rect, 0, len(faces))
	for _, f := range faces {
		rects = append(rects, domain.RectFromImage(faceRect(f, img), img.Rect))
	}
	return rects, nil
}

func (d *Detector) Close() error {
	return d.models.Close()
}
