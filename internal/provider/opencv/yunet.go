package opencv

import (
	"context"
	"errors"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/provider"
)

const (
	YuNetModelFile = "face_detection_yunet_2023mar.onnx"

	yunetScoreThreshold = 0.9
	yunetNMSThreshold   = 0.3
	yunetTopK           = 5000
)

var ErrNotLoaded = errors.New("opencv model not loaded")

// YuNetDetector is the lightweight CNN detector shipped with OpenCV.
type YuNetDetector struct {
	dir string

	mu     sync.Mutex
	det    *gocv.FaceDetectorYN
	inSize image.Point
}

var _ provider.FaceDetector = (*YuNetDetector)(nil)

func NewYuNetDetector(modelDir string) *YuNetDetector {
	return &YuNetDetector{dir: modelDir}
}

func (d *YuNetDetector) Load(_ context.Context) error {
	path, err := modelPath(d.dir, YuNetModelFile)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.det != nil {
		return nil
	}

	// input size is reset per image in LocateFaces
	d.inSize = image.Pt(320, 320)
	det := gocv.NewFaceDetectorYNWithParams(path, "", d.inSize, yunetScoreThreshold, yunetNMSThreshold, yunetTopK, 0, 0)
	d.det = &det
	return nil
}

func (d *YuNetDetector) LocateFaces(ctx context.Context, img *image.Gray) ([]domain.Rect, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bgr, err := grayToBGR(img)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.det == nil {
		return nil, ErrNotLoaded
	}

	size := image.Pt(bgr.Cols(), bgr.Rows())
	if size != d.inSize {
		d.det.SetInputSize(size)
		d.inSize = size
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.det.Detect(bgr, &faces)

	bounds := image.Rect(0, 0, size.X, size.Y)
	rects := make([]domain.Rect, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		y := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		rc := image.Rect(x, y, x+w, y+h).Intersect(bounds)
		if rc.Empty() {
			continue
		}
		rects = append(rects, domain.RectFromImage(rc, bounds))
	}
	return rects, nil
}

func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.det != nil {
		d.det.Close()
		d.det = nil
	}
	return nil
}
