package dlib

import (
	"context"
	"fmt"
	"image"

	"github.com/Kagami/go-face"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

// cropPadding is the margin added around a rect before re-detecting
// landmarks inside the crop.
const cropPadding = 0.2

// Encoder predicts 5-point landmarks and embeds with dlib's ResNet.
type Encoder struct {
	models *Models
}

var _ provider.LandmarkEncoder = (*Encoder)(nil)

func NewEncoder(models *Models) *Encoder {
	return &Encoder{models: models}
}

func (e *Encoder) Model() domain.ModelTag {
	return domain.ModelDlib
}

func (e *Encoder) Load(_ context.Context) error {
	return e.models.Load()
}

// LoadLandmarks verifies the landmark predictor is available. go-face
// loads it together with the ResNet in Load.
func (e *Encoder) LoadLandmarks(_ context.Context) error {
	_, err := e.models.ModelPath(ShapePredictorFile)
	return err
}

func (e *Encoder) Encode(ctx context.Context, img *image.Gray, rect domain.Rect) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return domain.Embedding{}, err
	}

	// the dlib detector already embedded faces it found on this image
	if desc, ok := e.models.cached(img, rect.Image()); ok {
		return e.embedding(desc), nil
	}

	crop, ok := img.SubImage(PadRect(rect.Image(), img.Rect, cropPadding)).(*image.Gray)
	if !ok || crop.Rect.Empty() {
		return domain.Embedding{}, fmt.Errorf("crop face %s: empty region", rect)
	}

	f, err := e.models.describeSingle(crop)
	if err != nil {
		return domain.Embedding{}, err
	}
	if f == nil {
		return domain.Embedding{}, domain.ErrNoFace.WithError(fmt.Errorf("no landmarks inside %s", rect))
	}
	return e.embedding(f.Descriptor), nil
}

func (e *Encoder) embedding(desc face.Descriptor) domain.Embedding {
	values := make([]float64, len(desc))
	for i, v := range desc {
		values[i] = float64(v)
	}
	return domain.Embedding{Model: domain.ModelDlib, Values: values}
}

func (e *Encoder) Close() error {
	return e.models.Close()
}

// PadRect grows rc by pad of its size on every side, clipped to bounds.
func PadRect(rc, bounds image.Rectangle, pad float64) image.Rectangle {
	dx := int(float64(rc.Dx()) * pad)
	dy := int(float64(rc.Dy()) * pad)
	return image.Rect(rc.Min.X-dx, rc.Min.Y-dy, rc.Max.X+dx, rc.Max.Y+dy).Intersect(bounds)
}
