// Package uncertainty scores calibrated probability vectors: entropy, quality,
// top-K selection and confidence bands.
package uncertainty

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// Entropy returns -Σ p·ln(p) in nats, treating 0·ln(0) as 0.
func Entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	if h < 0 {
		// -0 and rounding on one-hot vectors
		return 0
	}
	return h
}

// Quality maps entropy to [0,1]: 1 - entropy/ln(k). With k <= 1 there is
// nothing to discriminate and quality is 0.
func Quality(entropy float64, k int) float64 {
	if k <= 1 {
		return 0
	}
	return utils.Clamp01(1 - entropy/math.Log(float64(k)))
}

// TopK returns the k most probable labels in descending order. Ties keep label
// order. k <= 0 yields an empty slice.
func TopK(probs []float64, labels []string, k int) []models.Prediction {
	if k <= 0 {
		return []models.Prediction{}
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]models.Prediction, k)
	for i := 0; i < k; i++ {
		j := idx[i]
		out[i] = models.Prediction{Label: labelAt(labels, j), Probability: probs[j]}
	}
	return out
}

func labelAt(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("class_%d", i)
}

// Band thresholds; tuned against field feedback.
const (
	highQuality   = 0.85
	highTop1      = 0.60
	mediumQuality = 0.60
	mediumTop1    = 0.35
)

// Band buckets a result by quality and top-1 probability.
func Band(quality, top1 float64) models.ConfidenceBand {
	switch {
	case quality >= highQuality && top1 >= highTop1:
		return models.BandHigh
	case quality >= mediumQuality && top1 >= mediumTop1:
		return models.BandMedium
	default:
		return models.BandLow
	}
}

// Estimate builds the full inference result for a calibrated distribution.
func Estimate(probs []float64, labels []string, k int) *models.InferenceResult {
	h := Entropy(probs)
	q := Quality(h, len(probs))
	top := TopK(probs, labels, k)
	var top1 float64
	if len(top) > 0 {
		top1 = top[0].Probability
	}
	return &models.InferenceResult{
		TopK:       top,
		Entropy:    h,
		Quality:    q,
		Band:       Band(q, top1),
		NumClasses: len(probs),
	}
}
