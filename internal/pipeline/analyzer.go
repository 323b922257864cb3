// Package pipeline runs the analysis chain for one image: preprocess,
// classify, calibrate and score uncertainty.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/calibration"
	"github.com/hyperjump/fieldscout/internal/fileid"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
	"github.com/hyperjump/fieldscout/internal/uncertainty"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// DefaultTopK is the number of predictions reported when callers do not ask
// for a specific count.
const DefaultTopK = 3

// Model is the classifier the analyzer drives.
type Model interface {
	Predict(ctx context.Context, input []float32) ([]float32, error)
	Labels() []string
	ModelVersion() string
}

// CaptureStore is the persistence the analyzer reads and writes.
type CaptureStore interface {
	GetCapture(ctx context.Context, id string) (*models.Capture, error)
	ListCaptures(ctx context.Context, filter storage.CaptureFilter) ([]*models.Capture, error)
	SetPrediction(ctx context.Context, id string, upd models.PredictionUpdate) error
}

// Analyzer ties the pipeline stages together.
type Analyzer struct {
	pre    *imageprep.Preprocessor
	model  Model
	cal    *calibration.Calibrator
	store  CaptureStore
	cache  *ProbabilityCache
	logger *zap.Logger
	now    func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithStore enables AnalyzeCapture and AnalyzePending.
func WithStore(s CaptureStore) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithCacheSize sets the probability cache capacity. 0 disables it.
func WithCacheSize(n int) Option {
	return func(a *Analyzer) { a.cache = NewProbabilityCache(n) }
}

// NewAnalyzer returns an Analyzer. A nil calibrator means temperature 1.
func NewAnalyzer(pre *imageprep.Preprocessor, model Model, cal *calibration.Calibrator, opts ...Option) *Analyzer {
	if cal == nil {
		cal = calibration.New(calibration.DefaultTemperature)
	}
	a := &Analyzer{
		pre:    pre,
		model:  model,
		cal:    cal,
		cache:  NewProbabilityCache(256),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type analysis struct {
	result *models.InferenceResult
	probs  []float64
	hash   string
}

// Analyze runs the full chain on src and returns the top k predictions with
// entropy, quality and confidence band. Nothing is persisted.
func (a *Analyzer) Analyze(ctx context.Context, src imageprep.Source, k int) (*models.InferenceResult, error) {
	an, err := a.analyze(ctx, src, k)
	if err != nil {
		return nil, err
	}
	return an.result, nil
}

func (a *Analyzer) analyze(ctx context.Context, src imageprep.Source, k int) (res *analysis, err error) {
	defer func() { metrics.AnalysesTotal.WithLabelValues(outcome(err)).Inc() }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash, err := hashSource(src)
	if err != nil {
		return nil, err
	}

	probs, cached := a.cache.Get(hash)
	if cached {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		if probs, err = a.infer(ctx, src); err != nil {
			return nil, err
		}
		a.cache.Set(hash, probs)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := uncertainty.Estimate(probs, a.model.Labels(), k)
	result.ModelVersion = a.model.ModelVersion()
	metrics.PredictionQuality.Observe(result.Quality)
	metrics.ConfidenceBands.WithLabelValues(string(result.Band)).Inc()

	a.logger.Debug("image analyzed",
		zap.String("source", src.String()),
		zap.Bool("cached", cached),
		zap.Float64("entropy", result.Entropy),
		zap.Float64("quality", result.Quality),
		zap.String("band", string(result.Band)),
	)
	return &analysis{result: result, probs: probs, hash: hash}, nil
}

func (a *Analyzer) infer(ctx context.Context, src imageprep.Source) ([]float64, error) {
	start := time.Now()
	tensor, err := a.pre.Process(ctx, src)
	if err != nil {
		return nil, err
	}
	metrics.ObserveStage("preprocess", start)

	start = time.Now()
	logits, err := a.model.Predict(ctx, tensor.Data)
	if err != nil {
		return nil, err
	}
	metrics.ObserveStage("inference", start)

	start = time.Now()
	probs := a.cal.Probabilities(utils.ToFloat64(logits))
	metrics.ObserveStage("calibrate", start)
	return probs, nil
}

func hashSource(src imageprep.Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", imageprep.ErrDecode, src, err)
	}
	defer rc.Close()
	h, err := fileid.Hash(rc)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", imageprep.ErrDecode, src, err)
	}
	return h, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, imageprep.ErrDecode):
		return "decode_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

// AnalyzeCapture analyzes the file behind a stored capture and writes the top
// prediction back onto it. It returns the updated capture and the full result.
func (a *Analyzer) AnalyzeCapture(ctx context.Context, captureID string, k int) (*models.Capture, *models.InferenceResult, error) {
	if a.store == nil {
		return nil, nil, errors.New("analyzer has no capture store")
	}
	capture, err := a.store.GetCapture(ctx, captureID)
	if err != nil {
		return nil, nil, err
	}
	an, err := a.analyze(ctx, imageprep.FileSource(capture.URI), k)
	if err != nil {
		return nil, nil, err
	}

	top := utils.ArgMax(an.probs)
	if top < 0 {
		return nil, nil, fmt.Errorf("model returned no classes for %s", captureID)
	}
	labels := a.model.Labels()
	upd := models.PredictionUpdate{
		PredictedClass: labels[top],
		Top1Prob:       an.probs[top],
		ModelVersion:   a.model.ModelVersion(),
		ContentHash:    an.hash,
		AnalyzedAt:     a.now().UTC(),
	}
	if err := a.store.SetPrediction(ctx, captureID, upd); err != nil {
		return nil, nil, fmt.Errorf("failed to save prediction: %w", err)
	}

	capture.PredictedClass = &upd.PredictedClass
	capture.Top1Prob = &upd.Top1Prob
	capture.ModelVersion = &upd.ModelVersion
	capture.ContentHash = upd.ContentHash
	capture.AnalyzedAt = &upd.AnalyzedAt

	a.logger.Info("capture analyzed",
		zap.String("capture_id", captureID),
		zap.String("class", upd.PredictedClass),
		zap.Float64("top1", upd.Top1Prob),
		zap.String("band", string(an.result.Band)),
	)
	return capture, an.result, nil
}

// AnalyzePending analyzes every capture that has no prediction yet. Captures
// whose image cannot be decoded are logged and skipped; other errors stop the
// run. It returns the number of captures analyzed.
func (a *Analyzer) AnalyzePending(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, errors.New("analyzer has no capture store")
	}
	pending := false
	captures, err := a.store.ListCaptures(ctx, storage.CaptureFilter{Analyzed: &pending})
	if err != nil {
		return 0, err
	}
	done := 0
	for _, c := range captures {
		if _, _, err := a.AnalyzeCapture(ctx, c.ID, DefaultTopK); err != nil {
			if errors.Is(err, imageprep.ErrDecode) {
				a.logger.Warn("skipping undecodable capture", zap.String("capture_id", c.ID), zap.String("uri", c.URI), zap.Error(err))
				continue
			}
			return done, err
		}
		done++
	}
	return done, nil
}
