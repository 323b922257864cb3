package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/calibration"
	"github.com/hyperjump/fieldscout/internal/classifier"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/internal/storage"
)

var labels = []string{"blight", "rust", "healthy"}

func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string, c color.Color) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngBytes(t, c), 0o644))
	return path
}

func newAnalyzer(t *testing.T, backend classifier.Backend, opts ...Option) *Analyzer {
	t.Helper()
	c, err := classifier.New(backend, labels)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	pre := imageprep.New(imageprep.Options{InputSize: 16})
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	return NewAnalyzer(pre, c, calibration.New(1), opts...)
}

func knownLogits() []float32 {
	return []float32{float32(math.Log(0.7)), float32(math.Log(0.2)), float32(math.Log(0.1))}
}

func TestAnalyze_KnownClass(t *testing.T) {
	a := newAnalyzer(t, classifier.NewFixedBackend(knownLogits()))
	src := imageprep.BytesSource{Name: "leaf.png", Data: pngBytes(t, color.NRGBA{G: 200, A: 255})}

	res, err := a.Analyze(context.Background(), src, 3)
	require.NoError(t, err)
	require.Len(t, res.TopK, 3)
	assert.Equal(t, "blight", res.TopK[0].Label)
	assert.InDelta(t, 0.7, res.TopK[0].Probability, 1e-6)
	assert.InDelta(t, 0.8018, res.Entropy, 1e-4)
	assert.InDelta(t, 0.270, res.Quality, 1e-3)
	assert.Equal(t, models.BandLow, res.Band)
	assert.Equal(t, classifier.DefaultModelVersion, res.ModelVersion)
	assert.Equal(t, 3, res.NumClasses)

	var sum float64
	for _, p := range res.TopK {
		sum += p.Probability
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
}

func TestAnalyze_CacheSkipsInference(t *testing.T) {
	backend := classifier.NewFixedBackend(knownLogits())
	a := newAnalyzer(t, backend)
	data := pngBytes(t, color.NRGBA{R: 90, G: 160, B: 40, A: 255})

	first, err := a.Analyze(context.Background(), imageprep.BytesSource{Data: data}, 2)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), imageprep.BytesSource{Data: data}, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, 1, a.cache.Len())

	_, err = a.Analyze(context.Background(), imageprep.BytesSource{Data: pngBytes(t, color.NRGBA{R: 1, A: 255})}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.Calls())
}

func TestAnalyze_CacheDisabled(t *testing.T) {
	backend := classifier.NewFixedBackend(knownLogits())
	a := newAnalyzer(t, backend, WithCacheSize(0))
	data := pngBytes(t, color.NRGBA{B: 255, A: 255})
	for i := 0; i < 2; i++ {
		_, err := a.Analyze(context.Background(), imageprep.BytesSource{Data: data}, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, backend.Calls())
}

func TestAnalyze_UniformLogits(t *testing.T) {
	a := newAnalyzer(t, classifier.NewFixedBackend([]float32{2, 2, 2}))
	res, err := a.Analyze(context.Background(), imageprep.BytesSource{Data: pngBytes(t, color.White)}, 3)
	require.NoError(t, err)
	for _, p := range res.TopK {
		assert.InDelta(t, 1.0/3, p.Probability, 1e-9)
	}
	assert.InDelta(t, math.Log(3), res.Entropy, 1e-9)
	assert.InDelta(t, 0.0, res.Quality, 1e-9)
}

func TestAnalyze_Errors(t *testing.T) {
	backend := classifier.NewFixedBackend(knownLogits())
	a := newAnalyzer(t, backend)

	_, err := a.Analyze(context.Background(), imageprep.BytesSource{Data: []byte("not an image")}, 3)
	assert.ErrorIs(t, err, imageprep.ErrDecode)

	_, err = a.Analyze(context.Background(), imageprep.FileSource(filepath.Join(t.TempDir(), "missing.png")), 3)
	assert.ErrorIs(t, err, imageprep.ErrDecode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, imageprep.BytesSource{Data: pngBytes(t, color.Black)}, 3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, backend.Calls())
}

func newStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db", "fieldscout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAnalyzeCapture(t *testing.T) {
	store := newStore(t)
	a := newAnalyzer(t, classifier.NewFixedBackend([]float32{0, 3, 1}), WithStore(store))
	ctx := context.Background()

	path := writePNG(t, t.TempDir(), "leaf.png", color.NRGBA{G: 255, A: 255})
	require.NoError(t, store.CreateCapture(ctx, &models.Capture{ID: "c1", URI: path}))

	capture, res, err := a.AnalyzeCapture(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Len(t, res.TopK, 2)
	require.True(t, capture.HasPrediction())
	assert.Equal(t, "rust", *capture.PredictedClass)
	assert.Equal(t, res.TopK[0].Probability, *capture.Top1Prob)

	stored, err := store.GetCapture(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "rust", *stored.PredictedClass)
	assert.Equal(t, classifier.DefaultModelVersion, *stored.ModelVersion)
	assert.NotEmpty(t, stored.ContentHash)
	require.NotNil(t, stored.AnalyzedAt)

	_, _, err = a.AnalyzeCapture(ctx, "missing", 2)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestAnalyzeCapture_TopKZeroStillPersists(t *testing.T) {
	store := newStore(t)
	a := newAnalyzer(t, classifier.NewFixedBackend([]float32{5, 0, 0}), WithStore(store))
	ctx := context.Background()
	path := writePNG(t, t.TempDir(), "leaf.png", color.Black)
	require.NoError(t, store.CreateCapture(ctx, &models.Capture{ID: "c1", URI: path}))

	capture, res, err := a.AnalyzeCapture(ctx, "c1", 0)
	require.NoError(t, err)
	assert.Empty(t, res.TopK)
	assert.Equal(t, "blight", *capture.PredictedClass)
}

func TestAnalyzePending(t *testing.T) {
	store := newStore(t)
	a := newAnalyzer(t, classifier.NewMockBackend(3), WithStore(store))
	ctx := context.Background()
	dir := t.TempDir()

	good := writePNG(t, dir, "good.png", color.NRGBA{R: 10, G: 200, B: 10, A: 255})
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	require.NoError(t, store.CreateCapture(ctx, &models.Capture{ID: "good", URI: good}))
	require.NoError(t, store.CreateCapture(ctx, &models.Capture{ID: "bad", URI: bad}))

	n, err := a.AnalyzePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	g, _ := store.GetCapture(ctx, "good")
	assert.True(t, g.HasPrediction())
	b, _ := store.GetCapture(ctx, "bad")
	assert.False(t, b.HasPrediction())
}

func TestAnalyzeCapture_NoStore(t *testing.T) {
	a := newAnalyzer(t, classifier.NewMockBackend(3))
	_, _, err := a.AnalyzeCapture(context.Background(), "c1", 3)
	assert.Error(t, err)
	_, err = a.AnalyzePending(context.Background())
	assert.Error(t, err)
}
