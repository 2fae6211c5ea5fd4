package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yahallo-auth/yahallo/internal/domain"
	"github.com/yahallo-auth/yahallo/internal/imaging"
	"github.com/yahallo-auth/yahallo/internal/provider"
	"github.com/yahallo-auth/yahallo/internal/repository"
)

type RecognizerConfig struct {
	FacesFile      string
	MatchThreshold float64
	Metric         domain.Metric
	// WorkWidth is the width frames are downscaled to before detection.
	// Zero keeps the camera resolution.
	WorkWidth int
}

// Recognizer ties a detector, an encoder and the face store together. It
// is safe for use by one session at a time.
type Recognizer struct {
	cfg      RecognizerConfig
	detector provider.FaceDetector
	encoder  provider.FaceEncoder
	store    *repository.FaceStore
	logger   *slog.Logger
}

// FrameResult is what a single frame produced. Rect is nil when no face was
// found; Match is nil when the face is not enrolled.
type FrameResult struct {
	Rect      *domain.Rect
	Embedding domain.Embedding
	Match     *repository.Match
}

// NewRecognizer loads the detector, the landmark model (when the encoder has
// one) and the encoder concurrently, then opens the face store. It fails if
// any load task fails or panics.
func NewRecognizer(ctx context.Context, cfg RecognizerConfig, det provider.FaceDetector, enc provider.FaceEncoder, logger *slog.Logger) (*Recognizer, error) {
	logger = logger.With("component", "recognizer")

	if err := warmUp(ctx, det, enc, logger); err != nil {
		return nil, fmt.Errorf("warm up models: %w", err)
	}

	store, err := repository.OpenFaceStore(cfg.FacesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open face store: %w", err)
	}

	return &Recognizer{
		cfg:      cfg,
		detector: det,
		encoder:  enc,
		store:    store,
		logger:   logger,
	}, nil
}

func warmUp(ctx context.Context, det provider.FaceDetector, enc provider.FaceEncoder, logger *slog.Logger) error {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(loadTask(gctx, "detector", det.Load, logger))
	if lm, ok := enc.(provider.LandmarkEncoder); ok {
		g.Go(loadTask(gctx, "landmarks", lm.LoadLandmarks, logger))
	}
	g.Go(loadTask(gctx, "encoder", enc.Load, logger))

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("models loaded",
		slog.String("model", string(enc.Model())),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func loadTask(ctx context.Context, name string, load func(context.Context) error, logger *slog.Logger) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("load %s: panic: %v", name, r)
			}
		}()

		start := time.Now()
		if err := load(ctx); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		logger.Debug("model ready", slog.String("task", name), slog.Duration("duration", time.Since(start)))
		return nil
	}
}

// Prepare downscales img to the working width.
func (r *Recognizer) Prepare(img *image.Gray) *image.Gray {
	return imaging.ResizeToWidth(img, r.cfg.WorkWidth)
}

// LocateFace returns the single face in img, nil when there is none, and
// ErrMultipleFaces when there is more than one.
func (r *Recognizer) LocateFace(ctx context.Context, img *image.Gray) (*domain.Rect, error) {
	faces, err := r.detector.LocateFaces(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("locate faces: %w", err)
	}

	switch len(faces) {
	case 0:
		return nil, nil
	case 1:
		return &faces[0], nil
	default:
		return nil, domain.ErrMultipleFaces.WithError(fmt.Errorf("%d faces", len(faces)))
	}
}

// EncodeAt embeds the face at rect, which must come from LocateFace on img.
func (r *Recognizer) EncodeAt(ctx context.Context, img *image.Gray, rect domain.Rect) (domain.Embedding, error) {
	emb, err := r.encoder.Encode(ctx, img, rect)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("encode face: %w", err)
	}
	if emb.Model != r.encoder.Model() {
		return domain.Embedding{}, fmt.Errorf("encode face: %w: got %s, want %s", domain.ErrModelMismatch, emb.Model, r.encoder.Model())
	}
	return emb, nil
}

// Lookup returns the first enrolled face within the match threshold.
func (r *Recognizer) Lookup(emb domain.Embedding) (*repository.Match, bool) {
	return r.store.CheckMatch(emb, r.cfg.MatchThreshold, r.cfg.Metric)
}

// Analyze runs locate, encode and lookup on one camera frame. The returned
// rect is paired with the working resolution.
func (r *Recognizer) Analyze(ctx context.Context, img *image.Gray) (FrameResult, error) {
	work := r.Prepare(img)

	rect, err := r.LocateFace(ctx, work)
	if err != nil || rect == nil {
		return FrameResult{}, err
	}

	emb, err := r.EncodeAt(ctx, work, *rect)
	if err != nil {
		return FrameResult{Rect: rect}, err
	}

	res := FrameResult{Rect: rect, Embedding: emb}
	if m, ok := r.Lookup(emb); ok {
		res.Match = m
	}
	return res, nil
}

// CheckMatch returns the enrolled face seen in img, or nil when there is no
// face or it is unknown.
func (r *Recognizer) CheckMatch(ctx context.Context, img *image.Gray) (*repository.Match, error) {
	res, err := r.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}
	return res.Match, nil
}

// Encode is the single-shot path used for enrollment: a frame without a
// face is an ErrNoFace error instead of a retry.
func (r *Recognizer) Encode(ctx context.Context, img *image.Gray) (domain.Embedding, domain.Rect, error) {
	work := r.Prepare(img)

	rect, err := r.LocateFace(ctx, work)
	if err != nil {
		return domain.Embedding{}, domain.Rect{}, err
	}
	if rect == nil {
		return domain.Embedding{}, domain.Rect{}, domain.ErrNoFace
	}

	emb, err := r.EncodeAt(ctx, work, *rect)
	if err != nil {
		return domain.Embedding{}, domain.Rect{}, err
	}
	return emb, *rect, nil
}

// Enroll adds emb to the store in memory. Call Export to persist it.
func (r *Recognizer) Enroll(emb domain.Embedding, label string) (domain.EnrolledFace, error) {
	if len(emb.Values) == 0 {
		return domain.EnrolledFace{}, errors.New("enroll: empty embedding")
	}
	if !emb.Finite() {
		return domain.EnrolledFace{}, errors.New("enroll: embedding has non-finite values")
	}
	if emb.Model != r.encoder.Model() {
		return domain.EnrolledFace{}, fmt.Errorf("enroll: %w: got %s, want %s", domain.ErrModelMismatch, emb.Model, r.encoder.Model())
	}

	f := r.store.Add(emb, label)
	r.logger.Info("face enrolled", slog.Uint64("id", f.ID), slog.String("label", f.Label))
	return f, nil
}

func (r *Recognizer) HasEnrollments() bool {
	return r.store.Len() > 0
}

// Faces returns the enrolled faces in enrollment order.
func (r *Recognizer) Faces() []domain.EnrolledFace {
	return r.store.Faces()
}

// Export writes the store back to its file.
func (r *Recognizer) Export() error {
	return r.store.Save()
}

// ExportTo writes the store to another path.
func (r *Recognizer) ExportTo(path string) error {
	return r.store.Export(path)
}

// Reload re-reads the store from disk.
func (r *Recognizer) Reload() error {
	return r.store.Reload()
}

func (r *Recognizer) Model() domain.ModelTag {
	return r.encoder.Model()
}

func (r *Recognizer) Close() error {
	return errors.Join(r.detector.Close(), r.encoder.Close())
}
