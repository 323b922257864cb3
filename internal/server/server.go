// Package server provides the fieldscout HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/config"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// Analyzer runs the inference pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, src imageprep.Source, k int) (*models.InferenceResult, error)
	AnalyzeCapture(ctx context.Context, captureID string, k int) (*models.Capture, *models.InferenceResult, error)
}

// Advisor produces and lists advice sessions.
type Advisor interface {
	Advise(ctx context.Context, captureID, question string) (*models.AdviceSession, error)
	History(ctx context.Context, captureID string) ([]*models.AdviceSession, error)
}

// Knowledge is the read side of the knowledge base.
type Knowledge interface {
	Search(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error)
	Suggest(query string) string
	Get(id string) (models.KnowledgeEntry, bool)
	ForClass(class string, k int) []models.KnowledgeEntry
	Classes() []string
	TitleOf(id string) string
}

// ModelInfo describes the loaded classifier.
type ModelInfo interface {
	Labels() []string
	ModelVersion() string
}

// WatchService manages inbox directories. Nil when the inbox is disabled.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Deps are the services the API is built on. Watch may be nil.
type Deps struct {
	Analyzer  Analyzer
	Advisor   Advisor
	Knowledge Knowledge
	Model     ModelInfo
	Storage   storage.Storage
	Watch     WatchService
}

// Server is the HTTP server for the fieldscout API.
type Server struct {
	deps       Deps
	cfg        *config.Config
	configPath string // when set, inbox directory changes are saved back
	cfgMu      sync.Mutex
	logger     *zap.Logger
	limiter    *rateLimiter
	server     *http.Server
}

// NewServer creates a server. cfg supplies the server section plus the
// model and analysis defaults reported by /status and used by handlers.
func NewServer(deps Deps, cfg *config.Config, configPath string, logger *zap.Logger) *Server {
	logger = utils.OrNop(logger)
	return &Server{
		deps:       deps,
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		limiter:    newRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.With(s.limiter.Middleware).Post("/analyze", s.handleAnalyze)

		r.Route("/fields", func(r chi.Router) {
			r.Post("/", s.handleCreateField)
			r.Get("/", s.handleListFields)
			r.Get("/{id}", s.handleGetField)
			r.Delete("/{id}", s.handleDeleteField)
		})

		r.Route("/captures", func(r chi.Router) {
			r.Post("/", s.handleCreateCapture)
			r.Get("/", s.handleListCaptures)
			r.Get("/export.xlsx", s.handleExportCaptures)
			r.Get("/{id}", s.handleGetCapture)
			r.Delete("/{id}", s.handleDeleteCapture)
			r.With(s.limiter.Middleware).Post("/{id}/analyze", s.handleAnalyzeCapture)
			r.With(s.limiter.Middleware).Post("/{id}/advice", s.handleAdvise)
			r.Get("/{id}/advice", s.handleAdviceHistory)
		})

		r.Get("/advice/{id}/report.pdf", s.handleAdviceReport)

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/search", s.handleKnowledgeSearch)
			r.Get("/classes", s.handleKnowledgeClasses)
			r.Get("/classes/{class}", s.handleKnowledgeForClass)
			r.Get("/{id}", s.handleKnowledgeGet)
		})

		r.Route("/watch/directories", func(r chi.Router) {
			r.Get("/", s.handleWatchDirectoriesList)
			r.Post("/", s.handleWatchDirectoriesAdd)
			r.Delete("/", s.handleWatchDirectoriesRemove)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
