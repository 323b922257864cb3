package calibration

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sum(p []float64) float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

func maxOf(p []float64) float64 {
	m := math.Inf(-1)
	for _, v := range p {
		if v > m {
			m = v
		}
	}
	return m
}

var logitCases = [][]float64{
	{2.0, 1.0, 0.1},
	{-5, 0, 5, 10},
	{1000, 999, -1000},
	{-1000, -1001, -999},
	{0.3},
	{3.2, 3.2, 3.2, 3.3},
}

func TestSoftmax_SumsToOne(t *testing.T) {
	for _, temp := range []float64{0.5, 1, 2.5} {
		c := New(temp)
		for _, logits := range logitCases {
			p := c.Probabilities(logits)
			require.Len(t, p, len(logits))
			for _, v := range p {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
			assert.InDelta(t, 1.0, sum(p), 1e-5, "T=%v logits=%v", temp, logits)
		}
	}
}

func TestTemperatureIdentity(t *testing.T) {
	c := New(1)
	for _, logits := range logitCases {
		assert.Equal(t, Softmax(logits), c.Probabilities(logits))
	}
}

func TestTemperatureMonotonicity(t *testing.T) {
	base := New(1)
	for _, temp := range []float64{1.5, 2, 10} {
		hot := New(temp)
		for _, logits := range logitCases {
			if len(logits) < 2 {
				continue
			}
			assert.Less(t, maxOf(hot.Probabilities(logits)), maxOf(base.Probabilities(logits)),
				"T=%v logits=%v", temp, logits)
		}
	}
}

func TestSoftmax_UniformLogits(t *testing.T) {
	for _, k := range []int{2, 3, 38} {
		logits := make([]float64, k)
		for i := range logits {
			logits[i] = 4.2
		}
		for _, p := range New(1.7).Probabilities(logits) {
			assert.InDelta(t, 1/float64(k), p, 1e-12)
		}
	}
}

func TestSoftmax_DegenerateInputsFallBackToUniform(t *testing.T) {
	negInf := math.Inf(-1)
	p := Softmax([]float64{negInf, negInf, negInf, negInf})
	assert.Equal(t, Uniform(4), p)

	p = Softmax([]float64{math.NaN(), 1})
	assert.Equal(t, Uniform(2), p)

	assert.Empty(t, Softmax(nil))
}

func TestNew_InvalidTemperature(t *testing.T) {
	for _, temp := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.Equal(t, DefaultTemperature, New(temp).Temperature())
	}
	assert.Equal(t, 1.8, New(1.8).Temperature())
}

func TestLoadTemperature(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	got, err := LoadTemperature(write("ok.json", `{"temperature": 1.37}`))
	require.NoError(t, err)
	assert.Equal(t, 1.37, got)

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.json")},
		{"malformed", write("bad.json", `{"temperature":`)},
		{"no field", write("empty.json", `{}`)},
		{"zero", write("zero.json", `{"temperature": 0}`)},
		{"negative", write("neg.json", `{"temperature": -2}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTemperature(tt.path)
			assert.Error(t, err)
			assert.Equal(t, DefaultTemperature, Load(tt.path, zap.NewNop()).Temperature())
		})
	}
}
