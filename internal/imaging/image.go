package imaging

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// FromGray wraps a packed single-channel buffer as an image without copying.
func FromGray(buf []byte, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(buf) < width*height {
		return nil, fmt.Errorf("short frame: %d bytes for %dx%d", len(buf), width, height)
	}
	return &image.Gray{
		Pix:    buf[:width*height],
		Stride: width,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// ResizeToWidth scales img to the given width, preserving the aspect ratio.
// Images already at or below that width are returned unchanged.
func ResizeToWidth(img *image.Gray, width int) *image.Gray {
	b := img.Bounds()
	if width <= 0 || b.Dx() <= width {
		return img
	}
	height := int(math.Round(float64(width) * float64(b.Dy()) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Compact returns img with Stride == width and origin at (0,0), copying
// only when needed. Native backends expect tightly packed buffers.
func Compact(img *image.Gray) *image.Gray {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == b.Dx() {
		return img
	}
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
