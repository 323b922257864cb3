package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/fileid"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
)

// CaptureStore is the persistence the inbox writes to.
type CaptureStore interface {
	CreateCapture(ctx context.Context, c *models.Capture) error
	GetCaptureByURI(ctx context.Context, uri string) (*models.Capture, error)
	DeleteCaptureByURI(ctx context.Context, uri string) error
}

// CaptureAnalyzer analyzes a stored capture.
type CaptureAnalyzer interface {
	AnalyzeCapture(ctx context.Context, captureID string, k int) (*models.Capture, *models.InferenceResult, error)
}

// Inbox is the Handler that registers dropped photos as captures.
type Inbox struct {
	ctx      context.Context
	store    CaptureStore
	analyzer CaptureAnalyzer // nil disables auto-analysis
	fieldID  string
	topK     int
	timeout  time.Duration
	logger   *zap.Logger
}

// InboxOption configures an Inbox.
type InboxOption func(*Inbox)

// WithAutoAnalyze analyzes each imported capture, reporting k predictions.
func WithAutoAnalyze(a CaptureAnalyzer, k int) InboxOption {
	return func(in *Inbox) {
		in.analyzer = a
		in.topK = k
	}
}

// WithDefaultField assigns imported captures to a field.
func WithDefaultField(id string) InboxOption {
	return func(in *Inbox) { in.fieldID = id }
}

// WithInboxLogger sets the logger.
func WithInboxLogger(l *zap.Logger) InboxOption {
	return func(in *Inbox) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewInbox returns an Inbox bound to ctx; callbacks stop doing work once ctx
// is done.
func NewInbox(ctx context.Context, store CaptureStore, opts ...InboxOption) *Inbox {
	in := &Inbox{
		ctx:     ctx,
		store:   store,
		topK:    3,
		timeout: time.Minute,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Import registers path as a capture. With auto-analysis on, a file already
// registered is analyzed again when it has no prediction yet or its content
// changed since it was last hashed; otherwise it is left alone.
func (in *Inbox) Import(path string) {
	if in.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(in.ctx, in.timeout)
	defer cancel()

	uri, err := fileid.NormalizeURI(path)
	if err != nil {
		in.logger.Warn("inbox: bad path", zap.String("path", path), zap.Error(err))
		return
	}
	hash, err := fileid.HashFile(uri)
	if err != nil {
		in.logger.Warn("inbox: unreadable file", zap.String("path", uri), zap.Error(err))
		return
	}

	c := &models.Capture{
		ID:          uuid.NewString(),
		URI:         uri,
		ContentHash: hash,
		CreatedAt:   time.Now().UTC(),
	}
	if in.fieldID != "" {
		field := in.fieldID
		c.FieldID = &field
	}
	switch err := in.store.CreateCapture(ctx, c); {
	case errors.Is(err, storage.ErrDuplicate):
		in.reimport(ctx, uri, hash)
		return
	case err != nil:
		in.logger.Error("inbox: failed to register capture", zap.String("uri", uri), zap.Error(err))
		return
	}
	metrics.CapturesImported.WithLabelValues("watcher").Inc()
	in.logger.Info("inbox: capture registered", zap.String("capture_id", c.ID), zap.String("uri", uri))

	if in.analyzer != nil {
		in.analyze(ctx, c.ID)
	}
}

// reimport handles a file whose URI is already registered.
func (in *Inbox) reimport(ctx context.Context, uri, hash string) {
	if in.analyzer == nil {
		in.logger.Debug("inbox: already registered", zap.String("uri", uri))
		return
	}
	existing, err := in.store.GetCaptureByURI(ctx, uri)
	if err != nil {
		in.logger.Error("inbox: failed to load capture", zap.String("uri", uri), zap.Error(err))
		return
	}
	if existing.HasPrediction() && existing.ContentHash == hash {
		in.logger.Debug("inbox: already analyzed", zap.String("capture_id", existing.ID))
		return
	}
	in.logger.Info("inbox: re-analyzing capture",
		zap.String("capture_id", existing.ID),
		zap.Bool("had_prediction", existing.HasPrediction()),
		zap.Bool("content_changed", existing.ContentHash != hash),
	)
	in.analyze(ctx, existing.ID)
}

func (in *Inbox) analyze(ctx context.Context, id string) {
	_, res, err := in.analyzer.AnalyzeCapture(ctx, id, in.topK)
	if err != nil {
		in.logger.Warn("inbox: analysis failed", zap.String("capture_id", id), zap.Error(err))
		return
	}
	if len(res.TopK) > 0 {
		in.logger.Info("inbox: capture analyzed",
			zap.String("capture_id", id),
			zap.String("class", res.TopK[0].Label),
			zap.String("band", string(res.Band)),
		)
	}
}

// Forget deletes the capture registered for path, with its advice history.
func (in *Inbox) Forget(path string) {
	if in.ctx.Err() != nil {
		return
	}
	uri, err := fileid.NormalizeURI(path)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(in.ctx, in.timeout)
	defer cancel()
	switch err := in.store.DeleteCaptureByURI(ctx, uri); {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		in.logger.Error("inbox: failed to delete capture", zap.String("uri", uri), zap.Error(err))
	default:
		in.logger.Info("inbox: capture removed", zap.String("uri", uri))
	}
}
