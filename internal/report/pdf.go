package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// AdviceReport is everything printed on an advice PDF.
type AdviceReport struct {
	Capture *models.Capture
	Advice  *models.AdviceSession
	// Sources maps knowledge ids to titles; unknown ids print as the id.
	Sources map[string]string
}

// WriteAdvicePDF renders an advice session as a one-document PDF.
func WriteAdvicePDF(w io.Writer, rep AdviceReport) error {
	if rep.Advice == nil {
		return fmt.Errorf("advice is required")
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle("Field advice "+rep.Advice.ID, true)
	pdf.SetCreator("fieldscout", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 14)
	pdf.MultiCell(0, 8, tr("Field advice: "+utils.PrettyLabel(rep.Advice.PredictedClass)), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 9)
	meta := []string{
		"Advice ID: " + rep.Advice.ID,
		"Capture: " + rep.Advice.CaptureID,
		"Created: " + rep.Advice.CreatedAt.UTC().Format(time.RFC1123),
	}
	if c := rep.Capture; c != nil {
		meta = append(meta, "Image: "+c.URI)
		if c.Top1Prob != nil {
			meta = append(meta, "Top-1 probability: "+utils.FormatPct(*c.Top1Prob))
		}
		if c.ModelVersion != nil {
			meta = append(meta, "Model: "+*c.ModelVersion)
		}
	}
	for _, m := range meta {
		pdf.CellFormat(0, 5, tr(m), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	for _, para := range strings.Split(rep.Advice.AnswerText, "\n") {
		if strings.TrimSpace(para) == "" {
			pdf.Ln(3)
			continue
		}
		pdf.MultiCell(0, 5, tr(para), "", "L", false)
	}

	if len(rep.Advice.SourceDocIDs) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 6, "Sources", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, id := range rep.Advice.SourceDocIDs {
			title := rep.Sources[id]
			if title == "" {
				title = id
			}
			pdf.CellFormat(0, 5, tr("- "+title+" ("+id+")"), "", 1, "L", false, 0, "")
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to generate PDF: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return nil
}
