// Package models defines core data structures for predictions, captures, knowledge, and advice.
package models

// Prediction is a single class label with its calibrated probability.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// ConfidenceBand is a coarse bucket of how much to trust a prediction.
type ConfidenceBand string

const (
	BandHigh   ConfidenceBand = "high"
	BandMedium ConfidenceBand = "medium"
	BandLow    ConfidenceBand = "low"
)

// InferenceResult is the output of one analysis.
// TopK is sorted by descending probability; Quality is 1 - Entropy/ln(NumClasses).
type InferenceResult struct {
	TopK         []Prediction   `json:"top_k"`
	Entropy      float64        `json:"entropy"`
	Quality      float64        `json:"quality"`
	Band         ConfidenceBand `json:"band"`
	NumClasses   int            `json:"num_classes"`
	ModelVersion string         `json:"model_version,omitempty"`
}

// Top returns the highest-probability prediction, or false when TopK is empty.
func (r *InferenceResult) Top() (Prediction, bool) {
	if r == nil || len(r.TopK) == 0 {
		return Prediction{}, false
	}
	return r.TopK[0], true
}
