package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/fieldscout/internal/models"
)

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func sampleCaptures() []*models.Capture {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	return []*models.Capture{
		{
			ID: "c1", URI: "/inbox/a.jpg", FieldID: strPtr("f1"),
			PredictedClass: strPtr("Tomato___Late_blight"), Top1Prob: f64Ptr(0.82),
			ModelVersion: strPtr("mobilenetv2-v1"), AnalyzedAt: &at, CreatedAt: at,
		},
		{ID: "c2", URI: "/inbox/b.jpg", CreatedAt: at},
		{ID: "c3", URI: "/inbox/c.jpg", PredictedClass: strPtr("Tomato___Late_blight"), CreatedAt: at},
	}
}

func TestWriteCapturesWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCapturesWorkbook(&buf, sampleCaptures(), map[string]string{"f1": "North plot"}))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{capturesSheet, summarySheet}, f.GetSheetList())

	rows, err := f.GetRows(capturesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Predicted class", rows[0][3])
	assert.Equal(t, "c1", rows[1][0])
	assert.Equal(t, "North plot", rows[1][2])
	assert.Equal(t, "Tomato___Late_blight", rows[1][3])
	assert.Equal(t, "Tomato – Late Blight", rows[1][4])
	assert.Equal(t, "0.82", rows[1][5])
	assert.Equal(t, "2025-06-01T09:30:00Z", rows[1][7])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"Tomato___Late_blight", "Tomato – Late Blight", "2"}, summary[1])
	assert.Equal(t, []string{"Total", "", "3"}, summary[2])
}

func TestWriteCapturesWorkbook_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCapturesWorkbook(&buf, nil, nil))
	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(capturesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestReadCaptureImport(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "Field_ID")
	f.SetCellValue("Sheet1", "B1", "URI")
	f.SetCellValue("Sheet1", "A2", "f1")
	f.SetCellValue("Sheet1", "B2", " /inbox/a.jpg ")
	f.SetCellValue("Sheet1", "B3", "")
	f.SetCellValue("Sheet1", "B4", "/inbox/b.jpg")
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	rows, err := ReadCaptureImport(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []ImportRow{
		{URI: "/inbox/a.jpg", FieldID: "f1"},
		{URI: "/inbox/b.jpg"},
	}, rows)
}

func TestReadCaptureImport_NoURIColumn(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "name")
	f.SetCellValue("Sheet1", "A2", "x")
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	_, err = ReadCaptureImport(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)

	_, err = ReadCaptureImport(bytes.NewReader([]byte("not a workbook")))
	assert.Error(t, err)
}

func TestWriteAdvicePDF(t *testing.T) {
	caps := sampleCaptures()
	advice := &models.AdviceSession{
		ID:             "01HZX",
		CaptureID:      "c1",
		Query:          models.DefaultQuestion,
		PredictedClass: "Tomato___Late_blight",
		SourceDocIDs:   []string{"lb-1", "lb-9"},
		AnswerText:     "Diagnosis: Tomato___Late_blight\n\n- If spread is rapid—seek local extension advice.\n",
		CreatedAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer
	err := WriteAdvicePDF(&buf, AdviceReport{
		Capture: caps[0],
		Advice:  advice,
		Sources: map[string]string{"lb-1": "Late blight basics"},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)

	assert.Error(t, WriteAdvicePDF(&bytes.Buffer{}, AdviceReport{}))
}
