package opencv

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/yahallo-auth/yahallo/internal/imaging"
)

// grayToBGR converts a greyscale image into the 3-channel Mat both networks
// expect. The caller closes the returned Mat.
func grayToBGR(img *image.Gray) (gocv.Mat, error) {
	packed := imaging.Compact(img)
	b := packed.Bounds()

	gray, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, packed.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("gray to mat: %w", err)
	}
	defer gray.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr, nil
}

func modelPath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("model file not found %s: %w", path, err)
	}
	return path, nil
}
