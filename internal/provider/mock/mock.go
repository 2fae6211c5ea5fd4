package mock

import (
	"context"
	"image"
	"sync"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

// Detector returns a scripted list of face boxes for every image.
type Detector struct {
	mu      sync.Mutex
	faces   int
	err     error
	loadErr error
	calls   int
	loaded  bool
}

var _ provider.FaceDetector = (*Detector)(nil)

// NewDetector reports faces boxes per image.
func NewDetector(faces int) *Detector {
	return &Detector{faces: faces}
}

// WithError makes LocateFaces fail.
func (d *Detector) WithError(err error) *Detector {
	d.err = err
	return d
}

// WithLoadError makes Load fail.
func (d *Detector) WithLoadError(err error) *Detector {
	d.loadErr = err
	return d
}

// SetFaces changes the number of faces reported from now on.
func (d *Detector) SetFaces(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces = n
}

func (d *Detector) Load(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = d.loadErr == nil
	return d.loadErr
}

func (d *Detector) LocateFaces(_ context.Context, img *image.Gray) ([]domain.Rect, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}

	b := img.Bounds()
	rects := make([]domain.Rect, 0, d.faces)
	w := b.Dx() / (d.faces + 1)
	for i := 0; i < d.faces; i++ {
		rc := image.Rect(b.Min.X+i*w, b.Min.Y, b.Min.X+(i+1)*w, b.Max.Y)
		rects = append(rects, domain.RectFromImage(rc, b))
	}
	return rects, nil
}

// Calls is the number of LocateFaces invocations.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Detector) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Detector) Close() error { return nil }

// Encoder returns a fixed embedding for every face.
type Encoder struct {
	mu        sync.Mutex
	embedding domain.Embedding
	err       error
	loadErr   error
	calls     int
}

var _ provider.FaceEncoder = (*Encoder)(nil)

func NewEncoder(emb domain.Embedding) *Encoder {
	return &Encoder{embedding: emb}
}

func (e *Encoder) WithError(err error) *Encoder {
	e.err = err
	return e
}

func (e *Encoder) WithLoadError(err error) *Encoder {
	e.loadErr = err
	return e
}

// SetEmbedding changes the embedding returned from now on.
func (e *Encoder) SetEmbedding(emb domain.Embedding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.embedding = emb
}

func (e *Encoder) Model() domain.ModelTag {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.embedding.Model
}

func (e *Encoder) Load(_ context.Context) error {
	return e.loadErr
}

func (e *Encoder) Encode(_ context.Context, _ *image.Gray, _ domain.Rect) (domain.Embedding, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return domain.Embedding{}, e.err
	}
	values := append([]float64(nil), e.embedding.Values...)
	return domain.Embedding{Model: e.embedding.Model, Values: values}, nil
}

func (e *Encoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Encoder) Close() error { return nil }

// LandmarkEncoder is an Encoder with a separate landmark model.
type LandmarkEncoder struct {
	*Encoder
	landmarkErr error
	landmarks   func()
}

var _ provider.LandmarkEncoder = (*LandmarkEncoder)(nil)

// NewLandmarkEncoder wraps enc. hook, if set, runs inside LoadLandmarks.
func NewLandmarkEncoder(enc *Encoder, landmarkErr error, hook func()) *LandmarkEncoder {
	return &LandmarkEncoder{Encoder: enc, landmarkErr: landmarkErr, landmarks: hook}
}

func (e *LandmarkEncoder) LoadLandmarks(_ context.Context) error {
	if e.landmarks != nil {
		e.landmarks()
	}
	return e.landmarkErr
}
