// Package report exports captures to spreadsheets and advice sessions to PDF,
// and reads capture lists back from spreadsheets for bulk import.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

const (
	capturesSheet = "Captures"
	summarySheet  = "Summary"
)

var captureHeader = []interface{}{
	"ID", "URI", "Field", "Predicted class", "Label", "Top-1", "Model", "Analyzed at", "Created at",
}

// WriteCapturesWorkbook writes captures to an xlsx workbook with a Captures
// sheet and a per-class Summary sheet. fieldNames maps field id to name.
func WriteCapturesWorkbook(w io.Writer, captures []*models.Capture, fieldNames map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", capturesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(capturesSheet, "A1", &captureHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	counts := make(map[string]int)
	for i, c := range captures {
		row := captureRow(c, fieldNames)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(capturesSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		if c.HasPrediction() {
			counts[*c.PredictedClass]++
		}
	}
	if len(captures) > 0 {
		_ = f.AutoFilter(capturesSheet, fmt.Sprintf("A1:I%d", len(captures)+1), nil)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary: %w", err)
	}
	if err := writeSummary(f, counts, len(captures)); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func captureRow(c *models.Capture, fieldNames map[string]string) []interface{} {
	row := []interface{}{c.ID, c.URI, "", "", "", "", "", "", c.CreatedAt.UTC().Format(time.RFC3339)}
	if c.FieldID != nil {
		name := fieldNames[*c.FieldID]
		if name == "" {
			name = *c.FieldID
		}
		row[2] = name
	}
	if c.HasPrediction() {
		row[3] = *c.PredictedClass
		row[4] = utils.PrettyLabel(*c.PredictedClass)
	}
	if c.Top1Prob != nil {
		row[5] = *c.Top1Prob
	}
	if c.ModelVersion != nil {
		row[6] = *c.ModelVersion
	}
	if c.AnalyzedAt != nil {
		row[7] = c.AnalyzedAt.UTC().Format(time.RFC3339)
	}
	return row
}

func writeSummary(f *excelize.File, counts map[string]int, total int) error {
	header := []interface{}{"Class", "Label", "Captures"}
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return err
	}
	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Slice(classes, func(i, j int) bool {
		if counts[classes[i]] != counts[classes[j]] {
			return counts[classes[i]] > counts[classes[j]]
		}
		return classes[i] < classes[j]
	})
	for i, c := range classes {
		row := []interface{}{c, utils.PrettyLabel(c), counts[c]}
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	totalRow := []interface{}{"Total", "", total}
	return f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", len(classes)+2), &totalRow)
}

// ImportRow is one capture to register from a spreadsheet.
type ImportRow struct {
	URI     string
	FieldID string
}

// ReadCaptureImport reads captures to register from the first sheet of an
// xlsx workbook. The first row is a header naming a "uri" column and an
// optional "field_id" column; rows with an empty uri are skipped.
func ReadCaptureImport(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	uriCol, fieldCol := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "uri", "path":
			uriCol = i
		case "field_id", "field":
			fieldCol = i
		}
	}
	if uriCol < 0 {
		return nil, fmt.Errorf("sheet %q has no uri column", sheets[0])
	}

	var out []ImportRow
	for _, row := range rows[1:] {
		item := ImportRow{URI: cell(row, uriCol), FieldID: cell(row, fieldCol)}
		if item.URI == "" {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
