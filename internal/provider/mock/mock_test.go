package mock

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yahallo-auth/yahallo/internal/domain"
)

func TestDetector_LocateFaces(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 90, 30))

	tests := []struct {
		name  string
		faces int
	}{
		{"none", 0},
		{"one", 1},
		{"two", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(tt.faces)

			rects, err := d.LocateFaces(context.Background(), img)

			require.NoError(t, err)
			assert.Len(t, rects, tt.faces)
			for _, r := range rects {
				assert.Equal(t, domain.Resolution{Width: 90, Height: 30}, r.Bounds)
				assert.Positive(t, r.Width())
			}
			assert.Equal(t, 1, d.Calls())
		})
	}
}

func TestDetector_Errors(t *testing.T) {
	boom := errors.New("boom")
	d := NewDetector(1).WithError(boom).WithLoadError(boom)

	assert.ErrorIs(t, d.Load(context.Background()), boom)
	assert.False(t, d.Loaded())

	_, err := d.LocateFaces(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, boom)
}

func TestEncoder_Encode(t *testing.T) {
	emb := domain.Embedding{Model: domain.ModelDlib, Values: []float64{1, 2, 3}}
	e := NewEncoder(emb)

	got, err := e.Encode(context.Background(), nil, domain.Rect{})
	require.NoError(t, err)
	assert.Equal(t, emb, got)
	assert.Equal(t, domain.ModelDlib, e.Model())

	// callers cannot mutate the scripted embedding
	got.Values[0] = 99
	again, _ := e.Encode(context.Background(), nil, domain.Rect{})
	assert.Equal(t, 1.0, again.Values[0])
	assert.Equal(t, 2, e.Calls())
}

func TestLandmarkEncoder(t *testing.T) {
	called := false
	e := NewLandmarkEncoder(NewEncoder(domain.Embedding{Model: domain.ModelDlib}), nil, func() { called = true })

	require.NoError(t, e.LoadLandmarks(context.Background()))
	assert.True(t, called)
}
