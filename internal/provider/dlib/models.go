package dlib

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"

	"github.com/Kagami/go-face"
)

// Model files expected in the model directory. go-face loads all three
// when the recognizer is created.
const (
	ShapePredictorFile = "shape_predictor_5_face_landmarks.dat"
	ResNetFile         = "dlib_face_recognition_resnet_model_v1.dat"
	CNNDetectorFile    = "mmod_human_face_detector.dat"
)

var ErrNotLoaded = errors.New("dlib models not loaded")

// Models is the dlib recognizer shared by the detector and the encoder.
// The first Load call does the work; later calls return the same result.
type Models struct {
	dir string

	loadOnce sync.Once
	loadErr  error

	mu     sync.Mutex
	rec    *face.Recognizer
	closed bool

	// faces found by the last detection, so encoding the same image does
	// not run the network twice
	lastImg   *image.Gray
	lastFaces []face.Face
}

func NewModels(dir string) *Models {
	return &Models{dir: dir}
}

// ModelPath returns the full path of a model file, failing if it is missing.
func (m *Models) ModelPath(name string) (string, error) {
	path := filepath.Join(m.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("model file not found %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model file %s is a directory", path)
	}
	return path, nil
}

func (m *Models) Load() error {
	m.loadOnce.Do(func() {
		for _, name := range []string{ShapePredictorFile, ResNetFile, CNNDetectorFile} {
			if _, err := m.ModelPath(name); err != nil {
				m.loadErr = err
				return
			}
		}

		rec, err := face.NewRecognizer(m.dir)
		if err != nil {
			m.loadErr = fmt.Errorf("load dlib models: %w", err)
			return
		}

		m.mu.Lock()
		m.rec = rec
		m.mu.Unlock()
	})
	return m.loadErr
}

// detect runs HOG detection plus descriptor extraction on img and caches
// the result for a following encode of the same image.
func (m *Models) detect(img *image.Gray) ([]face.Face, error) {
	data, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, ErrNotLoaded
	}

	faces, err := m.rec.Recognize(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}
	m.lastImg = img
	m.lastFaces = faces
	return faces, nil
}

// cached returns the descriptor computed for rc on img by the last detect.
// rc is in img coordinates, as reported by the detector.
func (m *Models) cached(img *image.Gray, rc image.Rectangle) (face.Descriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastImg != img {
		return face.Descriptor{}, false
	}
	for _, f := range m.lastFaces {
		if faceRect(f, img) == rc {
			return f.Descriptor, true
		}
	}
	return face.Descriptor{}, false
}

// describeSingle runs the landmark and embedding stages on a face crop.
func (m *Models) describeSingle(crop *image.Gray) (*face.Face, error) {
	data, err := encodeJPEG(crop)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, ErrNotLoaded
	}

	f, err := m.rec.RecognizeSingle(data)
	if err != nil {
		return nil, fmt.Errorf("dlib recognize single: %w", err)
	}
	return f, nil
}

func (m *Models) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.rec != nil {
		m.rec.Close()
		m.rec = nil
	}
	m.lastImg, m.lastFaces = nil, nil
	return nil
}

// faceRect maps a go-face rectangle into img coordinates, clipped to img.
func faceRect(f face.Face, img *image.Gray) image.Rectangle {
	return f.Rectangle.Add(img.Rect.Min).Intersect(img.Rect)
}

func encodeJPEG(img *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
