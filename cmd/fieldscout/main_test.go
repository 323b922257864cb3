package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/advisor"
	"github.com/hyperjump/fieldscout/internal/classifier"
	"github.com/hyperjump/fieldscout/internal/config"
	"github.com/hyperjump/fieldscout/internal/imageprep"
	"github.com/hyperjump/fieldscout/internal/models"
)

const testLabels = "Tomato___Late_blight\nTomato___Leaf_Mold\nTomato___healthy\n"

const testKB = `{"id":"lb-1","title":"Late blight overview","class":"Tomato___Late_blight","text":"Remove infected leaves and apply copper fungicide."}
{"id":"lm-1","title":"Leaf mold","class":"Tomato___Leaf_Mold","text":"Lower humidity and improve airflow."}
{"id":"h-1","title":"Healthy tomato","class":"Tomato___healthy","text":"Keep watering at the base."}
`

// writeTestConfig lays out a config with the mock backend next to its
// labels, knowledge base and database and returns the config path.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "labels.txt"), []byte(testLabels), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kb.jsonl"), []byte(testKB), 0644))
	cfg := `storage:
  database_path: ./fieldscout.db
model:
  backend: mock
  labels_path: ./labels.txt
  calibration_path: ./calibration.json
advisor:
  knowledge_path: ./kb.jsonl
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func writeTestImage(t *testing.T, dir, name string) string {
	t.Helper()
	return writeShadedImage(t, dir, name, 160)
}

func writeShadedImage(t *testing.T, dir, name string, green uint8) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: green, B: uint8(y * 8), A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := writeTestConfig(t)
	cfg, loaded, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, "mock", cfg.Model.Backend)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "labels.txt"), cfg.Model.LabelsPath)
}

func TestLoadConfig_CwdFallback(t *testing.T) {
	path := writeTestConfig(t)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(filepath.Dir(path)))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, loaded, err := loadConfig(defaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "config.yaml", filepath.Base(loaded))
}

func TestLoadConfig_Missing(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"blight"}, "blight"},
		{"multiple words", []string{"late", "blight"}, "late blight"},
		{"quoted phrase", []string{"late  blight "}, "late blight"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", " "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, joinArgs(tt.args))
		})
	}
}

func TestNewBackend_Mock(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Model.Backend = "mock"
	b, err := newBackend(cfg, 3)
	require.NoError(t, err)
	defer b.Close()
	_, ok := b.(*classifier.MockBackend)
	assert.True(t, ok)
}

func TestNewBackend_Unknown(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Model.Backend = "tflite"
	_, err := newBackend(cfg, 3)
	assert.Error(t, err)
}

func TestNewGenerator(t *testing.T) {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	assert.Equal(t, "template", newGenerator(cfg, zap.NewNop()).Name())

	cfg.Advisor.Generator = "openai"
	cfg.Advisor.OpenAI.APIKeyEnv = "FIELDSCOUT_TEST_MISSING_KEY"
	t.Setenv("FIELDSCOUT_TEST_MISSING_KEY", "")
	assert.Equal(t, "template", newGenerator(cfg, zap.NewNop()).Name(), "no key falls back to template")

	t.Setenv("FIELDSCOUT_TEST_MISSING_KEY", "sk-test")
	gen := newGenerator(cfg, zap.NewNop())
	_, ok := gen.(*advisor.OpenAIGenerator)
	assert.True(t, ok)
}

func TestInitializeComponents_AnalyzerSurvivesClassifierShutdown(t *testing.T) {
	cfg, _, err := loadConfig(writeTestConfig(t))
	require.NoError(t, err)
	comps, err := initializeComponents(cfg, zap.NewNop())
	require.NoError(t, err)
	defer comps.Close()

	img := imageprep.FileSource(writeTestImage(t, t.TempDir(), "leaf.png"))
	first, err := comps.Analyzer.Analyze(context.Background(), img, 3)
	require.NoError(t, err)

	require.NoError(t, comps.Provider.Shutdown())

	// A different image so the probability cache cannot answer.
	other := imageprep.FileSource(writeShadedImage(t, t.TempDir(), "other.png", 40))
	second, err := comps.Analyzer.Analyze(context.Background(), other, 3)
	require.NoError(t, err, "the provider rebuilds the classifier")
	assert.Len(t, second.TopK, 3)
	assert.Equal(t, first.ModelVersion, second.ModelVersion)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "2.0 KB", formatSize(2048))
	assert.Equal(t, "1.5 MB", formatSize(3*512*1024))
	assert.Equal(t, "1.0 GB", formatSize(1024*1024*1024))
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "fieldscout version "+version)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := run(t, "--config", writeTestConfig(t), "-o", "yaml", "field", "list")
	assert.Error(t, err)
}

func TestFieldAndCaptureCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, "--config", cfgPath, "-o", "json", "field", "add", "North", "plot", "--notes", "tomatoes")
	require.NoError(t, err)
	var fields []models.Field
	require.NoError(t, json.Unmarshal([]byte(out), &fields))
	require.Len(t, fields, 1)
	assert.Equal(t, "North plot", fields[0].Name)
	fieldID := fields[0].ID

	out, err = run(t, "--config", cfgPath, "field", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "North plot")

	img := writeTestImage(t, t.TempDir(), "leaf.png")
	out, err = run(t, "--config", cfgPath, "-o", "json", "capture", "add", img, "--field", fieldID)
	require.NoError(t, err)
	var captures []models.Capture
	require.NoError(t, json.Unmarshal([]byte(out), &captures))
	require.Len(t, captures, 1)
	require.NotNil(t, captures[0].FieldID)
	assert.Equal(t, fieldID, *captures[0].FieldID)
	captureID := captures[0].ID

	_, err = run(t, "--config", cfgPath, "capture", "add", img)
	assert.Error(t, err, "the same file cannot be registered twice")

	_, err = run(t, "--config", cfgPath, "advise", captureID)
	assert.ErrorIs(t, err, advisor.ErrNoPrediction)

	out, err = run(t, "--config", cfgPath, "capture", "analyze", captureID)
	require.NoError(t, err)
	assert.Contains(t, out, "Confidence:")

	out, err = run(t, "--config", cfgPath, "-o", "json", "capture", "list", "--analyzed")
	require.NoError(t, err)
	captures = nil
	require.NoError(t, json.Unmarshal([]byte(out), &captures))
	require.Len(t, captures, 1)
	assert.True(t, captures[0].HasPrediction())

	out, err = run(t, "--config", cfgPath, "-o", "json", "advise", captureID, "how", "bad", "is", "it")
	require.NoError(t, err)
	var session models.AdviceSession
	require.NoError(t, json.Unmarshal([]byte(out), &session))
	assert.Equal(t, "how bad is it", session.Query)
	assert.Equal(t, *captures[0].PredictedClass, session.PredictedClass)

	out, err = run(t, "--config", cfgPath, "advice", "list", captureID)
	require.NoError(t, err)
	assert.Contains(t, out, session.ID)

	out, err = run(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Captures:  1 (1 analyzed)")

	xlsx := filepath.Join(t.TempDir(), "captures.xlsx")
	_, err = run(t, "--config", cfgPath, "export", "captures", "--out", xlsx)
	require.NoError(t, err)
	data, err := os.ReadFile(xlsx)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	pdf := filepath.Join(t.TempDir(), "advice.pdf")
	_, err = run(t, "--config", cfgPath, "export", "advice", session.ID, "--out", pdf)
	require.NoError(t, err)
	data, err = os.ReadFile(pdf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	out, err = run(t, "--config", cfgPath, "capture", "delete", captureID)
	require.NoError(t, err)
	assert.Contains(t, out, captureID)
}

func TestAnalyzeCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	dir := t.TempDir()
	img := writeTestImage(t, dir, "leaf.png")

	out, err := run(t, "--config", cfgPath, "analyze", img, "-k", "2")
	require.NoError(t, err)
	assert.Contains(t, out, img)
	assert.Contains(t, out, "2. ")
	assert.NotContains(t, out, "3. ")

	bad := filepath.Join(dir, "notes.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))
	_, err = run(t, "--config", cfgPath, "analyze", img, bad)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "1 of 2"))
}

func TestKBCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := run(t, "--config", cfgPath, "kb", "search", "copper", "fungicide")
	require.NoError(t, err)
	assert.Contains(t, out, "lb-1")

	out, err = run(t, "--config", cfgPath, "kb", "show", "lm-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Leaf mold")

	_, err = run(t, "--config", cfgPath, "kb", "show", "missing")
	assert.Error(t, err)

	out, err = run(t, "--config", cfgPath, "kb", "check", "--strict")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
}
