package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

const (
	SFaceModelFile = "face_recognition_sface_2021dec.onnx"

	sfaceInputSize = 112
)

// SFaceEncoder embeds the face crop directly with OpenCV's SFace network.
type SFaceEncoder struct {
	dir string

	mu  sync.Mutex
	rec *gocv.FaceRecognizerSF
}

var _ provider.FaceEncoder = (*SFaceEncoder)(nil)

func NewSFaceEncoder(modelDir string) *SFaceEncoder {
	return &SFaceEncoder{dir: modelDir}
}

func (e *SFaceEncoder) Model() domain.ModelTag {
	return domain.ModelSFace
}

func (e *SFaceEncoder) Load(_ context.Context) error {
	path, err := modelPath(e.dir, SFaceModelFile)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		rec := gocv.NewFaceRecognizerSF(path, "")
		e.rec = &rec
	}
	return nil
}

func (e *SFaceEncoder) Encode(ctx context.Context, img *image.Gray, rect domain.Rect) (domain.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return domain.Embedding{}, err
	}

	bgr, err := grayToBGR(img)
	if err != nil {
		return domain.Embedding{}, err
	}
	defer bgr.Close()

	rc := rect.Image().Sub(img.Rect.Min).Intersect(image.Rect(0, 0, bgr.Cols(), bgr.Rows()))
	if rc.Empty() {
		return domain.Embedding{}, fmt.Errorf("crop face %s: empty region", rect)
	}

	region := bgr.Region(rc)
	defer region.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.Resize(region, &aligned, image.Pt(sfaceInputSize, sfaceInputSize), 0, 0, gocv.InterpolationLinear)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec == nil {
		return domain.Embedding{}, ErrNotLoaded
	}

	feature := gocv.NewMat()
	defer feature.Close()
	e.rec.Feature(aligned, &feature)

	n := feature.Cols() * feature.Rows()
	if n == 0 {
		return domain.Embedding{}, fmt.Errorf("sface: empty feature")
	}
	values := make([]float64, 0, n)
	for r := 0; r < feature.Rows(); r++ {
		for c := 0; c < feature.Cols(); c++ {
			values = append(values, float64(feature.GetFloatAt(r, c)))
		}
	}
	return domain.Embedding{Model: domain.ModelSFace, Values: values}, nil
}

func (e *SFaceEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	return nil
}
