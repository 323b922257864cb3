// Package calibration converts raw logits into temperature-scaled probabilities.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"
)

// DefaultTemperature leaves logits unscaled.
const DefaultTemperature = 1.0

// Calibrator applies a fixed temperature before softmax.
type Calibrator struct {
	temperature float64
}

// New returns a calibrator with temperature t. Non-positive or non-finite
// temperatures fall back to DefaultTemperature.
func New(t float64) *Calibrator {
	if !validTemperature(t) {
		t = DefaultTemperature
	}
	return &Calibrator{temperature: t}
}

// Load reads the temperature from path. Load never fails: a missing or invalid
// file yields the identity calibrator and a warning on logger.
func Load(path string, logger *zap.Logger) *Calibrator {
	t, err := LoadTemperature(path)
	if err != nil {
		if logger != nil {
			logger.Warn("calibration unavailable, using identity temperature",
				zap.String("path", path), zap.Error(err))
		}
		return New(DefaultTemperature)
	}
	if logger != nil {
		logger.Info("calibration loaded", zap.String("path", path), zap.Float64("temperature", t))
	}
	return New(t)
}

type temperatureFile struct {
	Temperature *float64 `json:"temperature"`
}

// LoadTemperature reads a {"temperature": T} file.
func LoadTemperature(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read calibration: %w", err)
	}
	var f temperatureFile
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse calibration: %w", err)
	}
	if f.Temperature == nil {
		return 0, fmt.Errorf("calibration file has no temperature")
	}
	if !validTemperature(*f.Temperature) {
		return 0, fmt.Errorf("invalid temperature %v", *f.Temperature)
	}
	return *f.Temperature, nil
}

func validTemperature(t float64) bool {
	return t > 0 && !math.IsInf(t, 0) && !math.IsNaN(t)
}

// Temperature returns the scaling constant.
func (c *Calibrator) Temperature() float64 { return c.temperature }

// Probabilities returns softmax(logits / T).
func (c *Calibrator) Probabilities(logits []float64) []float64 {
	if c.temperature == 1 {
		return Softmax(logits)
	}
	scaled := make([]float64, len(logits))
	for i, v := range logits {
		scaled[i] = v / c.temperature
	}
	return Softmax(scaled)
}

// Softmax is the max-subtracted softmax. When the exponentials sum to zero or
// a non-finite value, it returns the uniform distribution.
func Softmax(logits []float64) []float64 {
	n := len(logits)
	probs := make([]float64, n)
	if n == 0 {
		return probs
	}
	hi := math.Inf(-1)
	for _, v := range logits {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - hi)
		probs[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Uniform(n)
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Uniform returns n equal probabilities.
func Uniform(n int) []float64 {
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = 1 / float64(n)
	}
	return probs
}
