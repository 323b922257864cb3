package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/fieldscout/internal/models"
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and migrates
// the schema. Parent directories are created if they do not exist. Foreign
// keys are enforced on every connection.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// DB exposes the underlying handle.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}

// CreateField inserts a field, setting CreatedAt.
func (s *SQLiteStorage) CreateField(ctx context.Context, f *models.Field) error {
	f.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fields (id, name, notes, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, f.Notes, f.CreatedAt,
	)
	if isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("field %s: %w", f.ID, ErrDuplicate)
	}
	return err
}

// GetField returns a field by ID.
func (s *SQLiteStorage) GetField(ctx context.Context, id string) (*models.Field, error) {
	var f models.Field
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, notes, created_at FROM fields WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Notes, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("field %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFields returns all fields ordered by name.
func (s *SQLiteStorage) ListFields(ctx context.Context) ([]*models.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, notes, created_at FROM fields ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Field
	for rows.Next() {
		var f models.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.Notes, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteField removes a field. Its captures survive with field_id cleared.
func (s *SQLiteStorage) DeleteField(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "field", `DELETE FROM fields WHERE id = ?`, id)
}

const captureColumns = `id, uri, field_id, content_hash, predicted_class, top1_prob, model_version, analyzed_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(r rowScanner) (*models.Capture, error) {
	var (
		c          models.Capture
		fieldID    sql.NullString
		class      sql.NullString
		top1       sql.NullFloat64
		version    sql.NullString
		analyzedAt sql.NullTime
	)
	if err := r.Scan(&c.ID, &c.URI, &fieldID, &c.ContentHash, &class, &top1, &version, &analyzedAt, &c.CreatedAt); err != nil {
		return nil, err
	}
	if fieldID.Valid {
		c.FieldID = &fieldID.String
	}
	if class.Valid {
		c.PredictedClass = &class.String
	}
	if top1.Valid {
		c.Top1Prob = &top1.Float64
	}
	if version.Valid {
		c.ModelVersion = &version.String
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		c.AnalyzedAt = &t
	}
	return &c, nil
}

// CreateCapture inserts a capture, setting CreatedAt. A duplicate URI returns
// ErrDuplicate and an unknown field returns ErrNotFound.
func (s *SQLiteStorage) CreateCapture(ctx context.Context, c *models.Capture) error {
	c.CreatedAt = time.Now().UTC()
	var fieldID interface{}
	if c.FieldID != nil && *c.FieldID != "" {
		fieldID = *c.FieldID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (id, uri, field_id, content_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.URI, fieldID, c.ContentHash, c.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case isConstraint(err, sqlite3.ErrConstraintUnique), isConstraint(err, sqlite3.ErrConstraintPrimaryKey):
		return fmt.Errorf("capture %s: %w", c.URI, ErrDuplicate)
	case isConstraint(err, sqlite3.ErrConstraintForeignKey):
		return fmt.Errorf("field %v: %w", fieldID, ErrNotFound)
	default:
		return err
	}
}

// GetCapture returns a capture by ID.
func (s *SQLiteStorage) GetCapture(ctx context.Context, id string) (*models.Capture, error) {
	c, err := scanCapture(s.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capture %s: %w", id, ErrNotFound)
	}
	return c, err
}

// GetCaptureByURI returns the capture registered for uri.
func (s *SQLiteStorage) GetCaptureByURI(ctx context.Context, uri string) (*models.Capture, error) {
	c, err := scanCapture(s.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM captures WHERE uri = ?`, uri))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capture %s: %w", uri, ErrNotFound)
	}
	return c, err
}

// ListCaptures returns captures newest first.
func (s *SQLiteStorage) ListCaptures(ctx context.Context, filter CaptureFilter) ([]*models.Capture, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.FieldID != "" {
		where = append(where, "field_id = ?")
		args = append(args, filter.FieldID)
	}
	if filter.Class != "" {
		where = append(where, "predicted_class = ?")
		args = append(args, filter.Class)
	}
	if filter.Analyzed != nil {
		if *filter.Analyzed {
			where = append(where, "predicted_class IS NOT NULL")
		} else {
			where = append(where, "predicted_class IS NULL")
		}
	}
	q := `SELECT ` + captureColumns + ` FROM captures`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetPrediction writes analysis results onto a capture.
func (s *SQLiteStorage) SetPrediction(ctx context.Context, id string, upd models.PredictionUpdate) error {
	analyzedAt := upd.AnalyzedAt
	if analyzedAt.IsZero() {
		analyzedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE captures
		 SET predicted_class = ?, top1_prob = ?, model_version = ?, analyzed_at = ?,
		     content_hash = CASE WHEN ? = '' THEN content_hash ELSE ? END
		 WHERE id = ?`,
		upd.PredictedClass, upd.Top1Prob, upd.ModelVersion, analyzedAt.UTC(),
		upd.ContentHash, upd.ContentHash, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("capture %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteCapture removes a capture and, by cascade, its advice sessions.
func (s *SQLiteStorage) DeleteCapture(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "capture", `DELETE FROM captures WHERE id = ?`, id)
}

// DeleteCaptureByURI removes the capture registered for uri.
func (s *SQLiteStorage) DeleteCaptureByURI(ctx context.Context, uri string) error {
	return s.deleteOne(ctx, "capture", `DELETE FROM captures WHERE uri = ?`, uri)
}

func (s *SQLiteStorage) deleteOne(ctx context.Context, kind, query, key string) error {
	result, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return nil
}

// InsertAdvice stores an advice session. An unknown capture returns ErrNotFound.
func (s *SQLiteStorage) InsertAdvice(ctx context.Context, a *models.AdviceSession) error {
	ids := a.SourceDocIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal source ids: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO advice_sessions (id, capture_id, query, predicted_class, source_doc_ids, answer_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CaptureID, a.Query, a.PredictedClass, string(idsJSON), a.AnswerText, a.CreatedAt.UTC(),
	)
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return fmt.Errorf("capture %s: %w", a.CaptureID, ErrNotFound)
	}
	return err
}

const adviceColumns = `id, capture_id, query, predicted_class, source_doc_ids, answer_text, created_at`

func scanAdvice(r rowScanner) (*models.AdviceSession, error) {
	var a models.AdviceSession
	var idsJSON string
	if err := r.Scan(&a.ID, &a.CaptureID, &a.Query, &a.PredictedClass, &idsJSON, &a.AnswerText, &a.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &a.SourceDocIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source ids: %w", err)
	}
	return &a, nil
}

// GetAdvice returns an advice session by ID.
func (s *SQLiteStorage) GetAdvice(ctx context.Context, id string) (*models.AdviceSession, error) {
	a, err := scanAdvice(s.db.QueryRowContext(ctx,
		`SELECT `+adviceColumns+` FROM advice_sessions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("advice %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ListAdvice returns a capture's advice sessions, most recent first.
func (s *SQLiteStorage) ListAdvice(ctx context.Context, captureID string) ([]*models.AdviceSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+adviceColumns+` FROM advice_sessions WHERE capture_id = ?
		 ORDER BY created_at DESC, id DESC`, captureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*models.AdviceSession{}
	for rows.Next() {
		a, err := scanAdvice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats returns row counts and the number of captures per predicted class.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ByClass: make(map[string]int64)}
	counts := []struct {
		dst   *int64
		query string
	}{
		{&st.Fields, `SELECT COUNT(*) FROM fields`},
		{&st.Captures, `SELECT COUNT(*) FROM captures`},
		{&st.Analyzed, `SELECT COUNT(*) FROM captures WHERE predicted_class IS NOT NULL`},
		{&st.AdviceSessions, `SELECT COUNT(*) FROM advice_sessions`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT predicted_class, COUNT(*) FROM captures
		 WHERE predicted_class IS NOT NULL GROUP BY predicted_class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var class string
		var n int64
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		st.ByClass[class] = n
	}
	return st, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
