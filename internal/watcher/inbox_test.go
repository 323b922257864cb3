package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/fieldscout/internal/fileid"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
)

// stubAnalyzer records calls. With a store it writes a prediction and the
// current file hash back, like the pipeline analyzer does.
type stubAnalyzer struct {
	store *storage.SQLiteStorage
	calls []string
	err   error
}

func (s *stubAnalyzer) AnalyzeCapture(ctx context.Context, id string, k int) (*models.Capture, *models.InferenceResult, error) {
	s.calls = append(s.calls, id)
	if s.err != nil {
		return nil, nil, s.err
	}
	if s.store != nil {
		c, err := s.store.GetCapture(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		hash, err := fileid.HashFile(c.URI)
		if err != nil {
			return nil, nil, err
		}
		if err := s.store.SetPrediction(ctx, id, models.PredictionUpdate{
			PredictedClass: "Tomato___healthy",
			Top1Prob:       0.9,
			ModelVersion:   "test",
			ContentHash:    hash,
		}); err != nil {
			return nil, nil, err
		}
	}
	return &models.Capture{ID: id}, &models.InferenceResult{
		TopK: []models.Prediction{{Label: "Tomato___healthy", Probability: 0.9}},
		Band: models.BandHigh,
	}, nil
}

func newInboxStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "inbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInbox_ImportRegistersOnce(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	require.NoError(t, store.CreateField(ctx, &models.Field{ID: "north", Name: "North plot"}))

	analyzer := &stubAnalyzer{store: store}
	in := NewInbox(ctx, store, WithAutoAnalyze(analyzer, 3), WithDefaultField("north"))

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg bytes"), 0600))

	in.Import(photo)
	in.Import(photo)

	c, err := store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)
	require.NotNil(t, c.FieldID)
	assert.Equal(t, "north", *c.FieldID)
	assert.Contains(t, c.ContentHash, "sha256:")
	assert.Equal(t, []string{c.ID}, analyzer.calls, "duplicate import is not analyzed again")

	all, err := store.ListCaptures(ctx, storage.CaptureFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInbox_AnalysisFailureKeepsCapture(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	in := NewInbox(ctx, store, WithAutoAnalyze(&stubAnalyzer{err: errors.New("decode")}, 3))

	photo := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("nope"), 0600))
	in.Import(photo)

	_, err := store.GetCaptureByURI(ctx, photo)
	assert.NoError(t, err)
}

func TestInbox_RetriesCaptureWithoutPrediction(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	analyzer := &stubAnalyzer{store: store, err: errors.New("truncated upload")}
	in := NewInbox(ctx, store, WithAutoAnalyze(analyzer, 3))

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("half a jpeg"), 0600))
	in.Import(photo)

	c, err := store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)
	assert.False(t, c.HasPrediction())

	analyzer.err = nil
	require.NoError(t, os.WriteFile(photo, []byte("the whole jpeg"), 0600))
	in.Import(photo)

	assert.Equal(t, []string{c.ID, c.ID}, analyzer.calls)
	c, err = store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)
	assert.True(t, c.HasPrediction())
	want, err := fileid.HashFile(photo)
	require.NoError(t, err)
	assert.Equal(t, want, c.ContentHash)
}

func TestInbox_ReanalyzesChangedContent(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	analyzer := &stubAnalyzer{store: store}
	in := NewInbox(ctx, store, WithAutoAnalyze(analyzer, 3))

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("first photo"), 0600))
	in.Import(photo)
	first, err := store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(photo, []byte("second photo"), 0600))
	in.Import(photo)
	in.Import(photo)

	assert.Len(t, analyzer.calls, 2, "changed content is analyzed once more, then left alone")
	second, err := store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestInbox_DuplicateWithoutAutoAnalyze(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	in := NewInbox(ctx, store)

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg"), 0600))
	in.Import(photo)
	require.NoError(t, os.WriteFile(photo, []byte("new jpeg"), 0600))
	in.Import(photo)

	all, err := store.ListCaptures(ctx, storage.CaptureFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.False(t, all[0].HasPrediction())
}

func TestInbox_MissingFileIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	in := NewInbox(ctx, store)

	in.Import(filepath.Join(t.TempDir(), "gone.jpg"))

	all, err := store.ListCaptures(ctx, storage.CaptureFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInbox_Forget(t *testing.T) {
	ctx := context.Background()
	store := newInboxStore(t)
	in := NewInbox(ctx, store)

	photo := filepath.Join(t.TempDir(), "leaf.png")
	require.NoError(t, os.WriteFile(photo, []byte("png"), 0600))
	in.Import(photo)
	_, err := store.GetCaptureByURI(ctx, photo)
	require.NoError(t, err)

	in.Forget(photo)
	_, err = store.GetCaptureByURI(ctx, photo)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	in.Forget(photo) // already gone
}

func TestInbox_CancelledContextDoesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := newInboxStore(t)
	in := NewInbox(ctx, store)
	cancel()

	photo := filepath.Join(t.TempDir(), "leaf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpg"), 0600))
	in.Import(photo)

	_, err := store.GetCaptureByURI(context.Background(), photo)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
