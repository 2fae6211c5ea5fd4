package domain

import (
	"fmt"
	"image"
	"time"
)

// ModelTag identifies the encoder that produced an embedding.
type ModelTag string

const (
	ModelDlib  ModelTag = "dlib"
	ModelSFace ModelTag = "sface"

	// PrimaryModel is assumed for legacy records stored as bare vectors.
	PrimaryModel = ModelDlib
)

// Resolution is the pixel size of the image a Rect was computed against.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is a face bounding box in image-pixel coordinates.
type Rect struct {
	Left   int        `json:"left"`
	Top    int        `json:"top"`
	Right  int        `json:"right"`
	Bottom int        `json:"bottom"`
	Bounds Resolution `json:"bounds"`
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Image converts the rect into an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Scale maps the rect onto an image of a different resolution.
func (r Rect) Scale(to Resolution) Rect {
	if r.Bounds.Width == 0 || r.Bounds.Height == 0 {
		return r
	}
	sx := float64(to.Width) / float64(r.Bounds.Width)
	sy := float64(to.Height) / float64(r.Bounds.Height)
	return Rect{
		Left:   int(float64(r.Left) * sx),
		Top:    int(float64(r.Top) * sy),
		Right:  int(float64(r.Right) * sx),
		Bottom: int(float64(r.Bottom) * sy),
		Bounds: to,
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)@%dx%d", r.Left, r.Top, r.Right, r.Bottom, r.Bounds.Width, r.Bounds.Height)
}

// RectFromImage builds a Rect from an image.Rectangle found in img.
func RectFromImage(rc image.Rectangle, img image.Rectangle) Rect {
	return Rect{
		Left:   rc.Min.X,
		Top:    rc.Min.Y,
		Right:  rc.Max.X,
		Bottom: rc.Max.Y,
		Bounds: Resolution{Width: img.Dx(), Height: img.Dy()},
	}
}

// Embedding is a face descriptor tagged with the model that produced it.
type Embedding struct {
	Model  ModelTag
	Values []float64
}

// EnrolledFace is one persisted enrollment. It is never mutated after creation.
type EnrolledFace struct {
	ID        uint64
	Label     string
	CreatedAt time.Time
	Embedding Embedding

	// legacy records were stored as bare vectors and are written back the same way
	legacy bool
}

// NewEnrolledFace builds a record in the tagged storage shape.
func NewEnrolledFace(id uint64, label string, createdAt time.Time, emb Embedding) EnrolledFace {
	return EnrolledFace{ID: id, Label: label, CreatedAt: createdAt, Embedding: emb}
}

// NewLegacyEnrolledFace builds a record that is stored as a bare vector.
func NewLegacyEnrolledFace(id uint64, label string, createdAt time.Time, values []float64) EnrolledFace {
	return EnrolledFace{
		ID:        id,
		Label:     label,
		CreatedAt: createdAt,
		Embedding: Embedding{Model: PrimaryModel, Values: values},
		legacy:    true,
	}
}

// Legacy reports whether the record uses the untagged storage shape.
func (f EnrolledFace) Legacy() bool {
	return f.legacy
}
