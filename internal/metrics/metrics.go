// Package metrics holds the Prometheus collectors for the analysis and advice
// paths.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldscout_stage_duration_seconds",
			Help:    "Duration of each analysis stage in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_analyses_total",
			Help: "Total number of image analyses",
		},
		[]string{"status"},
	)

	PredictionQuality = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldscout_prediction_quality",
			Help:    "Entropy-based quality of predictions",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ConfidenceBands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_confidence_band_total",
			Help: "Predictions by confidence band",
		},
		[]string{"band"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_cache_lookups_total",
			Help: "Probability cache lookups",
		},
		[]string{"result"},
	)

	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_retrieval_total",
			Help: "Knowledge retrievals by outcome",
		},
		[]string{"result"},
	)

	AdviceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_advice_total",
			Help: "Advice sessions by generator, or error",
		},
		[]string{"outcome"},
	)

	CapturesImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldscout_captures_imported_total",
			Help: "Captures registered by source",
		},
		[]string{"source"},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			StageDuration,
			AnalysesTotal,
			PredictionQuality,
			ConfidenceBands,
			CacheLookups,
			RetrievalTotal,
			AdviceTotal,
			CapturesImported,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStage records how long stage took since start.
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
