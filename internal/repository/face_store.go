package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/yahallo-auth/yahallo/internal/domain"
)

// FaceStore is the JSON-file database of enrolled faces. Records keep
// enrollment order; ids are assigned as last id + 1.
type FaceStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	faces []domain.EnrolledFace
}

// OpenFaceStore loads the store at path, creating it with an empty list
// when the file does not exist yet.
func OpenFaceStore(path string, logger *slog.Logger) (*FaceStore, error) {
	s := &FaceStore{
		path:   path,
		logger: logger.With("component", "face_store"),
		now:    time.Now,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory records with the file contents.
func (s *FaceStore) Reload() error {
	faces, err := readFaces(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := createEmpty(s.path); err != nil {
			return err
		}
		faces = nil
	} else if err != nil {
		return err
	}

	s.mu.Lock()
	s.faces = faces
	s.mu.Unlock()

	s.logger.Debug("faces loaded", slog.String("path", s.path), slog.Int("count", len(faces)))
	return nil
}

func (s *FaceStore) Path() string {
	return s.path
}

func (s *FaceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.faces)
}

// Faces returns a snapshot of the records in enrollment order.
func (s *FaceStore) Faces() []domain.EnrolledFace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EnrolledFace, len(s.faces))
	copy(out, s.faces)
	return out
}

// Add appends a record with the next id. An empty label becomes
// "Model #<id>". No similarity check is made against existing records.
func (s *FaceStore) Add(emb domain.Embedding, label string) domain.EnrolledFace {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(1)
	if n := len(s.faces); n > 0 {
		id = s.faces[n-1].ID + 1
	}
	if label == "" {
		label = fmt.Sprintf("Model #%d", id)
	}

	values := append([]float64(nil), emb.Values...)
	f := domain.NewEnrolledFace(id, label, s.now().Truncate(time.Second), domain.Embedding{Model: emb.Model, Values: values})
	s.faces = append(s.faces, f)
	return f
}

// Match is a lookup result.
type Match struct {
	Face     domain.EnrolledFace
	Distance float64
}

// CheckMatch scans records in enrollment order and returns the first one
// whose distance to query is at most threshold. Records from another model
// never match.
func (s *FaceStore) CheckMatch(query domain.Embedding, threshold float64, metric domain.Metric) (*Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	skipped := 0
	for _, known := range s.faces {
		d, err := metric.Distance(known.Embedding, query)
		if err != nil {
			skipped++
			continue
		}
		if d <= threshold {
			return &Match{Face: known, Distance: d}, true
		}
	}

	s.logger.Debug("no match",
		slog.Int("known", len(s.faces)),
		slog.Int("incompatible", skipped),
		slog.String("model", string(query.Model)),
	)
	return nil, false
}

// Save writes the records back to the store's own path.
func (s *FaceStore) Save() error {
	return s.Export(s.path)
}

// Export atomically writes the records to path as a pretty-printed array.
func (s *FaceStore) Export(path string) error {
	s.mu.RLock()
	records := make([]record, 0, len(s.faces))
	for _, f := range s.faces {
		r, err := toRecord(f)
		if err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("encode face %d: %w", f.ID, err)
		}
		records = append(records, r)
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode faces: %w", err)
	}
	data = append(data, '\n')

	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write faces file %s: %w", path, err)
	}

	s.logger.Info("faces written", slog.String("path", path), slog.Int("count", len(records)))
	return nil
}

type record struct {
	Time  int64           `json:"time"`
	Label string          `json:"label"`
	ID    uint64          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

type taggedEmbedding struct {
	Model domain.ModelTag `json:"model"`
	Emb   json.RawMessage `json:"emb"`
}

func toRecord(f domain.EnrolledFace) (record, error) {
	var (
		data []byte
		err  error
	)
	if f.Legacy() {
		data, err = json.Marshal(f.Embedding.Values)
	} else {
		data, err = json.Marshal(struct {
			Model domain.ModelTag `json:"model"`
			Emb   []float64       `json:"emb"`
		}{f.Embedding.Model, f.Embedding.Values})
	}
	if err != nil {
		return record{}, err
	}
	return record{
		Time:  f.CreatedAt.Unix(),
		Label: f.Label,
		ID:    f.ID,
		Data:  data,
	}, nil
}

func readFaces(path string) ([]domain.EnrolledFace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to read json at %s: %w", path, err)
	}

	faces := make([]domain.EnrolledFace, 0, len(records))
	for i, r := range records {
		f, err := fromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

func fromRecord(r record) (domain.EnrolledFace, error) {
	created := time.Unix(r.Time, 0)
	raw := bytes.TrimSpace(r.Data)
	if len(raw) == 0 {
		return domain.EnrolledFace{}, errors.New("missing 'data'")
	}

	if raw[0] == '{' {
		var tagged taggedEmbedding
		if err := json.Unmarshal(raw, &tagged); err != nil {
			return domain.EnrolledFace{}, fmt.Errorf("invalid 'data': %w", err)
		}
		if tagged.Model == "" {
			return domain.EnrolledFace{}, errors.New("invalid 'data': missing model")
		}
		values, err := decodeVector(tagged.Emb)
		if err != nil {
			return domain.EnrolledFace{}, err
		}
		return domain.NewEnrolledFace(r.ID, r.Label, created, domain.Embedding{Model: tagged.Model, Values: values}), nil
	}

	values, err := decodeVector(raw)
	if err != nil {
		return domain.EnrolledFace{}, err
	}
	return domain.NewLegacyEnrolledFace(r.ID, r.Label, created, values), nil
}

// decodeVector accepts a flat vector or a vector of vectors, in which case
// the first inner vector is used.
func decodeVector(raw json.RawMessage) ([]float64, error) {
	var flat []float64
	if err := json.Unmarshal(raw, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("empty 'data'")
		}
		return flat, nil
	}

	var nested [][]float64
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("invalid 'data': %w", err)
	}
	if len(nested) == 0 || len(nested[0]) == 0 {
		return nil, errors.New("empty 'data'")
	}
	return nested[0], nil
}

func createEmpty(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("couldn't create %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, []byte("[]"), 0o600); err != nil {
		return fmt.Errorf("couldn't create %s: %w", path, err)
	}
	return nil
}
