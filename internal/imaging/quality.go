package imaging

import (
	"errors"
	"image"
)

// HistogramBins is the number of intensity buckets used by IsDark.
const HistogramBins = 12

// ErrPortrait is returned for images taller than they are wide.
var ErrPortrait = errors.New("portrait image not supported")

// CenterCrop returns the largest centered square of a landscape image.
func CenterCrop(img *image.Gray) (*image.Gray, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < h {
		return nil, ErrPortrait
	}
	x := b.Min.X + (w-h)/2
	sub, ok := img.SubImage(image.Rect(x, b.Min.Y, x+h, b.Max.Y)).(*image.Gray)
	if !ok {
		return nil, errors.New("crop: unexpected image type")
	}
	return sub, nil
}

// Histogram counts pixels into bins buckets of width ceil(255/bins).
func Histogram(img *image.Gray, bins int) []int {
	hist := make([]int, bins)
	perBin := (255-1)/bins + 1

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for _, v := range row {
			hist[int(v)/perBin]++
		}
	}
	return hist
}

// IsDark reports whether the share of pixels in the darkest bucket of the
// center crop is at least thresholdPercent.
func IsDark(img *image.Gray, thresholdPercent int) (bool, error) {
	cropped, err := CenterCrop(img)
	if err != nil {
		return false, err
	}

	hist := Histogram(cropped, HistogramBins)
	total := 0
	for _, c := range hist {
		total += c
	}
	if total == 0 {
		return true, nil
	}

	darkPercent := hist[0] * 100 / total
	return darkPercent >= thresholdPercent, nil
}
