package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleKB = `{"id":"lb-1","title":"Late blight basics","class":"Tomato___Late_blight","text":"Remove infected leaves and avoid overhead irrigation."}
{"id":"lb-2","title":"Late blight fungicides","class":"Tomato___Late_blight","text":"Copper sprays slow spread in humid weather."}

{"id":"pm-1","title":"Powdery mildew","class":"Squash___Powdery_mildew","text":"White powder on leaf surfaces; improve airflow."}
{"id":"lb-3","title":"Late blight scouting","class":"Tomato___Late_blight","text":"Check lower canopy after rain."}
{"id":"lb-4","title":"Late blight disposal","class":"Tomato___Late_blight","text":"Bag and remove plant debris."}
`

func loadSample(t *testing.T) *Base {
	t.Helper()
	b, err := Load(strings.NewReader(sampleKB))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestLoad_Indexes(t *testing.T) {
	b := loadSample(t)
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, []string{"Tomato___Late_blight", "Squash___Powdery_mildew"}, b.Classes())

	e, ok := b.Get("pm-1")
	require.True(t, ok)
	assert.Equal(t, "Powdery mildew", e.Title)
	assert.Equal(t, "Late blight fungicides", b.TitleOf("lb-2"))
	assert.Equal(t, "", b.TitleOf("nope"))
}

func TestForClass(t *testing.T) {
	b := loadSample(t)

	got := b.ForClass("Tomato___Late_blight", DefaultK)
	require.Len(t, got, 3)
	assert.Equal(t, "lb-1", got[0].ID)
	assert.Equal(t, "lb-2", got[1].ID)
	assert.Equal(t, "lb-3", got[2].ID)

	assert.Len(t, b.ForClass("Squash___Powdery_mildew", 3), 1)
	assert.Len(t, b.ForClass("Tomato___Late_blight", 10), 4)
	assert.Empty(t, b.ForClass("Tomato___Late_blight", 0))
	assert.Empty(t, b.ForClass("Corn___Common_rust", 3))
	assert.NotNil(t, b.ForClass("Corn___Common_rust", 3))
}

func TestForClass_Deterministic(t *testing.T) {
	b := loadSample(t)
	first := b.ForClass("Tomato___Late_blight", 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, b.ForClass("Tomato___Late_blight", 3))
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"malformed json", "{\"id\":\"a\",\n", "line 1"},
		{"missing text", `{"id":"a","title":"t","class":"c"}`, "text"},
		{"missing id and class", `{"title":"t","text":"x"}`, "id, class"},
		{"duplicate id", `{"id":"a","title":"t","class":"c","text":"x"}` + "\n\n" + `{"id":"a","title":"u","class":"c","text":"y"}`, "line 3: duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleKB), 0o644))
	b, err := LoadFile(path)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 5, b.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestLoad_Empty(t *testing.T) {
	b, err := Load(strings.NewReader("\n\n"))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.ForClass("anything", 3))
	hits, err := b.Search(context.Background(), "blight", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestValidate(t *testing.T) {
	b := loadSample(t)
	cov := b.Validate([]string{"Tomato___Late_blight", "Tomato___healthy"})
	assert.False(t, cov.OK())
	assert.Equal(t, []string{"Squash___Powdery_mildew"}, cov.UnknownClasses)
	assert.Equal(t, []string{"Tomato___healthy"}, cov.UncoveredLabels)

	assert.True(t, b.Validate([]string{"Tomato___Late_blight", "Squash___Powdery_mildew"}).OK())
}
