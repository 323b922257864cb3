package models

import "time"

// Field is a named plot that captures can be assigned to.
type Field struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Notes     string    `json:"notes" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Capture is a stored leaf photo and the prediction last written onto it.
// Prediction fields are nil until the capture has been analyzed.
type Capture struct {
	ID             string     `json:"id" db:"id"`
	URI            string     `json:"uri" db:"uri"`
	FieldID        *string    `json:"field_id,omitempty" db:"field_id"`
	ContentHash    string     `json:"content_hash,omitempty" db:"content_hash"`
	PredictedClass *string    `json:"predicted_class,omitempty" db:"predicted_class"`
	Top1Prob       *float64   `json:"top1_prob,omitempty" db:"top1_prob"`
	ModelVersion   *string    `json:"model_version,omitempty" db:"model_version"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty" db:"analyzed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// HasPrediction reports whether a predicted class has been written to the capture.
func (c *Capture) HasPrediction() bool {
	return c.PredictedClass != nil && *c.PredictedClass != ""
}

// PredictionUpdate holds the fields written back to a capture after analysis.
// An empty ContentHash leaves the stored hash unchanged.
type PredictionUpdate struct {
	PredictedClass string
	Top1Prob       float64
	ModelVersion   string
	ContentHash    string
	AnalyzedAt     time.Time
}

// CaptureInput is the input for registering a capture.
type CaptureInput struct {
	URI     string  `json:"uri" validate:"required,max=4096"`
	FieldID *string `json:"field_id,omitempty" validate:"omitempty,max=64"`
}

// FieldInput is the input for creating a field.
type FieldInput struct {
	Name  string `json:"name" validate:"required,max=120"`
	Notes string `json:"notes,omitempty" validate:"max=2000"`
}
