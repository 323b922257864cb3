package models

import "time"

// DefaultQuestion is asked when the user leaves the question blank.
const DefaultQuestion = "What should I do now?"

// AdviceSession is one advisory answer generated for a capture. It is never
// mutated after creation and is removed only with its capture.
type AdviceSession struct {
	ID             string    `json:"id" db:"id"`
	CaptureID      string    `json:"capture_id" db:"capture_id"`
	Query          string    `json:"query" db:"query"`
	PredictedClass string    `json:"predicted_class" db:"predicted_class"`
	SourceDocIDs   []string  `json:"source_doc_ids" db:"source_doc_ids"`
	AnswerText     string    `json:"answer_text" db:"answer_text"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AdviceRequest is the body of an advice request.
type AdviceRequest struct {
	Question string `json:"question" validate:"max=2000"`
}
