// Package storage persists fields, captures and advice sessions.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/fieldscout/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a capture URI is already registered.
	ErrDuplicate = errors.New("already exists")
)

// CaptureFilter narrows ListCaptures. Zero values mean no filter; Limit <= 0
// means no limit.
type CaptureFilter struct {
	FieldID  string
	Class    string
	Analyzed *bool
	Offset   int
	Limit    int
}

// Stats summarizes the database.
type Stats struct {
	Fields         int64            `json:"fields"`
	Captures       int64            `json:"captures"`
	Analyzed       int64            `json:"analyzed"`
	AdviceSessions int64            `json:"advice_sessions"`
	ByClass        map[string]int64 `json:"by_class"`
}

// Storage defines field, capture and advice persistence operations.
type Storage interface {
	// Field operations
	CreateField(ctx context.Context, f *models.Field) error
	GetField(ctx context.Context, id string) (*models.Field, error)
	ListFields(ctx context.Context) ([]*models.Field, error)
	DeleteField(ctx context.Context, id string) error

	// Capture operations
	CreateCapture(ctx context.Context, c *models.Capture) error
	GetCapture(ctx context.Context, id string) (*models.Capture, error)
	GetCaptureByURI(ctx context.Context, uri string) (*models.Capture, error)
	ListCaptures(ctx context.Context, filter CaptureFilter) ([]*models.Capture, error)
	SetPrediction(ctx context.Context, id string, upd models.PredictionUpdate) error
	DeleteCapture(ctx context.Context, id string) error
	DeleteCaptureByURI(ctx context.Context, uri string) error

	// Advice operations
	InsertAdvice(ctx context.Context, s *models.AdviceSession) error
	GetAdvice(ctx context.Context, id string) (*models.AdviceSession, error)
	ListAdvice(ctx context.Context, captureID string) ([]*models.AdviceSession, error)

	// Stats
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
