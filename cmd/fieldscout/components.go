package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/advisor"
	"github.com/hyperjump/fieldscout/internal/calibration"
	"github.com/hyperjump/fieldscout/internal/classifier"
	"github.com/hyperjump/fieldscout/internal/config"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/knowledge"
	"github.com/hyperjump/fieldscout/internal/metrics"
	"github.com/hyperjump/fieldscout/internal/pipeline"
	"github.com/hyperjump/fieldscout/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Provider  *classifier.Provider
	Knowledge *knowledge.Base
	Analyzer  *pipeline.Analyzer
	Advisor   *advisor.Service
}

// Close releases everything that was opened, in reverse order.
func (c *Components) Close() {
	if c.Provider != nil {
		_ = c.Provider.Shutdown()
	}
	if c.Knowledge != nil {
		_ = c.Knowledge.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// initializeComponents opens storage, the classifier, calibration and the
// knowledge base and wires the analyzer and advisor. A label/model width
// mismatch is fatal; a missing calibration file or a knowledge base that does
// not cover every label is only logged.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	metrics.Init()
	comps := &Components{}
	defer func() {
		if err != nil {
			comps.Close()
		}
	}()

	comps.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	labels, err := classifier.LoadLabels(cfg.Model.LabelsPath)
	if err != nil {
		return nil, err
	}
	comps.Provider = classifier.NewProvider(func() (*classifier.Classifier, error) {
		backend, err := newBackend(cfg, len(labels))
		if err != nil {
			return nil, err
		}
		c, err := classifier.New(backend, labels,
			classifier.WithLogger(logger),
			classifier.WithModelVersion(cfg.Model.Version),
		)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		return c, nil
	})
	// Build eagerly so a label/model mismatch fails startup.
	clf, err := comps.Provider.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	logger.Info("classifier ready",
		zap.String("backend", cfg.Model.Backend),
		zap.String("version", clf.ModelVersion()),
		zap.Int("classes", clf.NumClasses()),
	)

	cal := calibration.Load(cfg.Model.CalibrationPath, logger)

	comps.Knowledge, err = knowledge.LoadFile(cfg.Advisor.KnowledgePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}
	if cov := comps.Knowledge.Validate(labels); !cov.OK() {
		logger.Warn("knowledge base does not line up with model labels",
			zap.Strings("unknown_classes", cov.UnknownClasses),
			zap.Strings("uncovered_labels", cov.UncoveredLabels),
		)
	}

	pre := imageprep.New(imageprep.Options{
		InputSize:    cfg.Model.InputSize,
		MaxDecodeDim: cfg.Model.MaxDecodeDim,
		MaxPixels:    cfg.Model.MaxPixels,
		Layout:       imageprep.Layout(cfg.Model.Layout),
		ScaleToUnit:  cfg.Model.ScaleToUnit,
	})
	comps.Analyzer = pipeline.NewAnalyzer(pre, comps.Provider, cal,
		pipeline.WithLogger(logger),
		pipeline.WithStore(comps.Storage),
		pipeline.WithCacheSize(cfg.Model.CacheSize),
	)
	comps.Advisor = advisor.NewService(comps.Storage, comps.Knowledge, newGenerator(cfg, logger),
		advisor.WithLogger(logger),
		advisor.WithTopK(cfg.Advisor.TopKDocs),
	)
	return comps, nil
}

// newBackend builds the configured inference backend. The mock backend is
// sized to the label file so it always passes the width check.
func newBackend(cfg *config.Config, numLabels int) (classifier.Backend, error) {
	switch cfg.Model.Backend {
	case "mock":
		return classifier.NewMockBackend(numLabels), nil
	case "onnx":
		size := int64(cfg.Model.InputSize)
		shape := []int64{1, size, size, 3}
		if imageprep.Layout(cfg.Model.Layout) == imageprep.LayoutNCHW {
			shape = []int64{1, 3, size, size}
		}
		b, err := classifier.NewONNXBackend(classifier.ONNXOptions{
			ModelPath:         cfg.Model.ModelPath,
			SharedLibraryPath: cfg.Model.SharedLibraryPath,
			InputShape:        shape,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Model.Backend)
	}
}

// newGenerator picks the advice generator. The OpenAI generator needs a key in
// the configured environment variable; without one the template is used.
func newGenerator(cfg *config.Config, logger *zap.Logger) advisor.Generator {
	template := advisor.NewTemplateGenerator()
	if cfg.Advisor.Generator != "openai" {
		return template
	}
	o := cfg.Advisor.OpenAI
	key := o.APIKey()
	if key == "" {
		logger.Warn("openai generator selected but no API key set; using template",
			zap.String("env", o.APIKeyEnv))
		return template
	}
	return advisor.NewOpenAIGenerator(advisor.OpenAIConfig{
		APIKey:      key,
		BaseURL:     o.BaseURL,
		Model:       o.Model,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
		Timeout:     o.Timeout(),
	}, template, logger)
}

// openStorage opens only the database, for commands that never run the model.
func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}
