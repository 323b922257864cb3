package uncertainty

import (
	"math"
	"testing"

	"github.com/hyperjump/fieldscout/internal/calibration"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntropyBounds(t *testing.T) {
	for _, k := range []int{2, 3, 10} {
		oneHot := make([]float64, k)
		oneHot[k-1] = 1
		assert.Equal(t, 0.0, Entropy(oneHot))
		assert.Equal(t, 1.0, Quality(Entropy(oneHot), k))

		uniform := calibration.Uniform(k)
		assert.InDelta(t, math.Log(float64(k)), Entropy(uniform), 1e-12)
		assert.InDelta(t, 0.0, Quality(Entropy(uniform), k), 1e-12)

		skewed := calibration.Softmax([]float64{3, 1, 0.5, 0, -1}[:min(k, 5)])
		h := Entropy(skewed)
		assert.Greater(t, h, 0.0)
		assert.Less(t, h, math.Log(float64(len(skewed))))
	}
}

func TestQuality_MonotonicAndBounded(t *testing.T) {
	prev := 2.0
	for h := 0.0; h <= math.Log(5); h += 0.1 {
		q := Quality(h, 5)
		assert.GreaterOrEqual(t, q, 0.0)
		assert.LessOrEqual(t, q, 1.0)
		assert.Less(t, q, prev)
		prev = q
	}
	assert.Equal(t, 0.0, Quality(0, 1))
	assert.Equal(t, 0.0, Quality(0, 0))
}

func TestKnownClassScenario(t *testing.T) {
	labels := []string{"blight", "rust", "healthy"}
	logits := []float64{math.Log(0.7), math.Log(0.2), math.Log(0.1)}
	probs := calibration.New(1).Probabilities(logits)

	res := Estimate(probs, labels, 2)
	require.Len(t, res.TopK, 2)
	assert.Equal(t, "blight", res.TopK[0].Label)
	assert.InDelta(t, 0.7, res.TopK[0].Probability, 1e-9)
	assert.Equal(t, "rust", res.TopK[1].Label)
	assert.InDelta(t, 0.2, res.TopK[1].Probability, 1e-9)
	assert.InDelta(t, 0.8018, res.Entropy, 1e-4)
	assert.InDelta(t, 0.270, res.Quality, 1e-3)
	assert.Equal(t, 3, res.NumClasses)
	assert.Equal(t, models.BandLow, res.Band)
}

func TestUniformScenario(t *testing.T) {
	labels := []string{"a", "b", "c", "d"}
	probs := calibration.Softmax([]float64{1, 1, 1, 1})
	res := Estimate(probs, labels, 4)
	for _, p := range res.TopK {
		assert.InDelta(t, 0.25, p.Probability, 1e-12)
	}
	assert.InDelta(t, math.Log(4), res.Entropy, 1e-12)
	assert.InDelta(t, 0.0, res.Quality, 1e-12)
}

func TestTopKContract(t *testing.T) {
	probs := []float64{0.05, 0.4, 0.05, 0.3, 0.2}
	labels := []string{"a", "b", "c", "d", "e"}
	for k := 1; k <= 7; k++ {
		top := TopK(probs, labels, k)
		want := k
		if want > len(probs) {
			want = len(probs)
		}
		require.Len(t, top, want)
		for i := 1; i < len(top); i++ {
			assert.GreaterOrEqual(t, top[i-1].Probability, top[i].Probability)
		}
		for _, p := range top {
			idx := -1
			for j, l := range labels {
				if l == p.Label {
					idx = j
				}
			}
			require.NotEqual(t, -1, idx)
			assert.Equal(t, probs[idx], p.Probability)
		}
	}
	assert.Empty(t, TopK(probs, labels, 0))

	ties := TopK([]float64{0.05, 0.4, 0.05, 0.3, 0.2}, labels, 5)
	assert.Equal(t, "a", ties[3].Label)
	assert.Equal(t, "c", ties[4].Label)
}

func TestTopK_MissingLabels(t *testing.T) {
	top := TopK([]float64{0.1, 0.9}, []string{"only"}, 1)
	assert.Equal(t, "class_1", top[0].Label)
}

func TestBand(t *testing.T) {
	tests := []struct {
		quality, top1 float64
		want          models.ConfidenceBand
	}{
		{0.9, 0.95, models.BandHigh},
		{0.85, 0.60, models.BandHigh},
		{0.9, 0.5, models.BandMedium},
		{0.6, 0.35, models.BandMedium},
		{0.59, 0.9, models.BandLow},
		{0.7, 0.2, models.BandLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Band(tt.quality, tt.top1), "q=%v top1=%v", tt.quality, tt.top1)
	}
}
