package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestCenterCrop(t *testing.T) {
	img := filled(160, 90, 0)

	sq, err := CenterCrop(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(35, 0, 125, 90), sq.Bounds())

	_, err = CenterCrop(filled(90, 160, 0))
	assert.ErrorIs(t, err, ErrPortrait)
}

func TestHistogram(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 1))
	img.Pix = []uint8{0, 21, 22, 255}

	hist := Histogram(img, HistogramBins)

	require.Len(t, hist, HistogramBins)
	assert.Equal(t, 2, hist[0])
	assert.Equal(t, 1, hist[1])
	assert.Equal(t, 1, hist[11])
}

func TestIsDark(t *testing.T) {
	black := filled(64, 48, 0)
	bright := filled(64, 48, 200)

	for _, threshold := range []int{0, 1, 50, 100} {
		dark, err := IsDark(black, threshold)
		require.NoError(t, err)
		assert.True(t, dark, "black frame, threshold %d", threshold)
	}

	for _, threshold := range []int{1, 30, 100} {
		dark, err := IsDark(bright, threshold)
		require.NoError(t, err)
		assert.False(t, dark, "bright frame, threshold %d", threshold)
	}
}

func TestIsDark_OnlyCenterCounts(t *testing.T) {
	// dark side bands outside the centered square are ignored
	img := filled(80, 40, 255)
	for y := 0; y < 40; y++ {
		for x := 0; x < 20; x++ {
			img.SetGray(x, y, color.Gray{})
			img.SetGray(79-x, y, color.Gray{})
		}
	}

	dark, err := IsDark(img, 1)
	require.NoError(t, err)
	assert.False(t, dark)
}

func TestIsDark_Threshold(t *testing.T) {
	// 30% of the square is black
	img := filled(10, 10, 180)
	copy(img.Pix, make([]uint8, 30))

	dark, err := IsDark(img, 30)
	require.NoError(t, err)
	assert.True(t, dark)

	dark, err = IsDark(img, 31)
	require.NoError(t, err)
	assert.False(t, dark)
}

func TestIsDark_Portrait(t *testing.T) {
	_, err := IsDark(filled(10, 20, 0), 50)
	assert.ErrorIs(t, err, ErrPortrait)
}
