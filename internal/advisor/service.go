package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
)

// ErrNoPrediction means the capture has not been analyzed yet.
var ErrNoPrediction = errors.New("capture has no prediction yet")

// Store is the persistence the advisor needs.
type Store interface {
	GetCapture(ctx context.Context, id string) (*models.Capture, error)
	InsertAdvice(ctx context.Context, s *models.AdviceSession) error
	ListAdvice(ctx context.Context, captureID string) ([]*models.AdviceSession, error)
}

// Retriever returns knowledge entries for a class.
type Retriever interface {
	ForClass(class string, k int) []models.KnowledgeEntry
}

// Service generates and records advice for analyzed captures.
type Service struct {
	store  Store
	kb     Retriever
	gen    Generator
	topK   int
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTopK sets how many knowledge entries are retrieved per advice.
func WithTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewService returns a Service. A nil generator uses the template.
func NewService(store Store, kb Retriever, gen Generator, opts ...Option) *Service {
	if gen == nil {
		gen = NewTemplateGenerator()
	}
	s := &Service{
		store:  store,
		kb:     kb,
		gen:    gen,
		topK:   3,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advise loads the capture, retrieves notes for its predicted class, generates
// an answer and stores it as a new advice session.
func (s *Service) Advise(ctx context.Context, captureID, question string) (*models.AdviceSession, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = models.DefaultQuestion
	}

	capture, err := s.store.GetCapture(ctx, captureID)
	if err != nil {
		return nil, err
	}
	if !capture.HasPrediction() {
		return nil, fmt.Errorf("%w: %s", ErrNoPrediction, captureID)
	}
	class := *capture.PredictedClass

	docs := s.kb.ForClass(class, s.topK)
	if len(docs) == 0 {
		metrics.RetrievalTotal.WithLabelValues("miss").Inc()
		s.logger.Warn("no knowledge for class", zap.String("class", class))
	} else {
		metrics.RetrievalTotal.WithLabelValues("hit").Inc()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	answer, err := s.gen.Generate(ctx, class, docs, question)
	if err != nil {
		metrics.AdviceTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to generate advice: %w", err)
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	session := &models.AdviceSession{
		ID:             ulid.Make().String(),
		CaptureID:      captureID,
		Query:          question,
		PredictedClass: class,
		SourceDocIDs:   ids,
		AnswerText:     answer,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.InsertAdvice(ctx, session); err != nil {
		metrics.AdviceTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to save advice: %w", err)
	}
	metrics.AdviceTotal.WithLabelValues(s.gen.Name()).Inc()
	s.logger.Info("advice generated",
		zap.String("capture_id", captureID),
		zap.String("advice_id", session.ID),
		zap.String("class", class),
		zap.Int("sources", len(ids)),
	)
	return session, nil
}

// History lists the advice sessions of a capture, newest first.
func (s *Service) History(ctx context.Context, captureID string) ([]*models.AdviceSession, error) {
	if _, err := s.store.GetCapture(ctx, captureID); err != nil {
		return nil, err
	}
	return s.store.ListAdvice(ctx, captureID)
}
