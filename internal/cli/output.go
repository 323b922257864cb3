// Package cli renders fieldscout results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes one analysis result.
func WriteResult(w io.Writer, source string, res *models.InferenceResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "\n%s\n", source)
	fmt.Fprintf(w, "Confidence: %s (quality %.3f, entropy %.4f over %d classes)\n",
		res.Band, res.Quality, res.Entropy, res.NumClasses)
	if res.ModelVersion != "" {
		fmt.Fprintf(w, "Model: %s\n", res.ModelVersion)
	}
	fmt.Fprintln(w)
	for i, p := range res.TopK {
		fmt.Fprintf(w, "  %d. %-40s %7s\n", i+1, utils.PrettyLabel(p.Label), utils.FormatPct(p.Probability))
	}
	if res.Band == models.BandLow {
		fmt.Fprintln(w, "\nLow confidence: retake the photo in even light with one leaf filling the frame.")
	}
	fmt.Fprintln(w)
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

// WriteCaptures writes a capture table.
func WriteCaptures(w io.Writer, captures []*models.Capture, format OutputFormat) error {
	if format == OutputJSON {
		if captures == nil {
			captures = []*models.Capture{}
		}
		return WriteJSON(w, captures)
	}
	if len(captures) == 0 {
		fmt.Fprintln(w, "No captures.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLASS\tTOP-1\tANALYZED\tURI")
	for _, c := range captures {
		class, top := "-", "-"
		if c.HasPrediction() {
			class = *c.PredictedClass
		}
		if c.Top1Prob != nil {
			top = utils.FormatPct(*c.Top1Prob)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, class, top, formatTime(c.AnalyzedAt), utils.Truncate(c.URI, 60))
	}
	return tw.Flush()
}

// WriteCapture writes one capture in detail.
func WriteCapture(w io.Writer, c *models.Capture, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, c)
	}
	fmt.Fprintf(w, "ID:       %s\n", c.ID)
	fmt.Fprintf(w, "URI:      %s\n", c.URI)
	if f := deref(c.FieldID); f != "" {
		fmt.Fprintf(w, "Field:    %s\n", f)
	}
	if c.ContentHash != "" {
		fmt.Fprintf(w, "Hash:     %s\n", c.ContentHash)
	}
	fmt.Fprintf(w, "Created:  %s\n", formatTime(&c.CreatedAt))
	if !c.HasPrediction() {
		fmt.Fprintln(w, "Status:   not analyzed")
		return nil
	}
	fmt.Fprintf(w, "Class:    %s (%s)\n", utils.PrettyLabel(*c.PredictedClass), *c.PredictedClass)
	if c.Top1Prob != nil {
		fmt.Fprintf(w, "Top-1:    %s\n", utils.FormatPct(*c.Top1Prob))
	}
	if v := deref(c.ModelVersion); v != "" {
		fmt.Fprintf(w, "Model:    %s\n", v)
	}
	fmt.Fprintf(w, "Analyzed: %s\n", formatTime(c.AnalyzedAt))
	return nil
}

// WriteFields writes a field table.
func WriteFields(w io.Writer, fields []*models.Field, format OutputFormat) error {
	if format == OutputJSON {
		if fields == nil {
			fields = []*models.Field{}
		}
		return WriteJSON(w, fields)
	}
	if len(fields) == 0 {
		fmt.Fprintln(w, "No fields.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tNOTES")
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.ID, f.Name, utils.Truncate(f.Notes, 50))
	}
	return tw.Flush()
}

// WriteAdvice writes one advice session. titles maps source ids to titles.
func WriteAdvice(w io.Writer, s *models.AdviceSession, titles func(id string) string, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	writeAdviceText(w, s, titles)
	return nil
}

func writeAdviceText(w io.Writer, s *models.AdviceSession, titles func(id string) string) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Advice %s  %s\n", s.ID, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Capture: %s | Class: %s\n\n", s.CaptureID, utils.PrettyLabel(s.PredictedClass))
	fmt.Fprintln(w, strings.TrimRight(s.AnswerText, "\n"))
	if len(s.SourceDocIDs) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, id := range s.SourceDocIDs {
			title := ""
			if titles != nil {
				title = titles(id)
			}
			if title == "" {
				fmt.Fprintf(w, "  - %s\n", id)
			} else {
				fmt.Fprintf(w, "  - %s (%s)\n", title, id)
			}
		}
	}
	fmt.Fprintln(w)
}

// WriteAdviceHistory writes advice sessions newest first.
func WriteAdviceHistory(w io.Writer, sessions []*models.AdviceSession, titles func(id string) string, format OutputFormat) error {
	if format == OutputJSON {
		if sessions == nil {
			sessions = []*models.AdviceSession{}
		}
		return WriteJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No advice yet.")
		return nil
	}
	for _, s := range sessions {
		writeAdviceText(w, s, titles)
	}
	return nil
}

// WriteKnowledgeHits writes search hits; suggestion is printed when there are none.
func WriteKnowledgeHits(w io.Writer, query string, hits []models.KnowledgeHit, suggestion string, format OutputFormat) error {
	if format == OutputJSON {
		out := map[string]interface{}{"query": query, "hits": hits}
		if suggestion != "" {
			out["suggestion"] = suggestion
		}
		return WriteJSON(w, out)
	}
	fmt.Fprintf(w, "\nFound %d entries for %q\n\n", len(hits), query)
	if len(hits) == 0 && suggestion != "" {
		fmt.Fprintf(w, "Did you mean %q?\n\n", suggestion)
	}
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%d. %s  [%s] score %.4f\n", i+1, h.Entry.Title, h.Entry.ID, h.Score)
		fmt.Fprintf(w, "Class: %s\n", h.Entry.Class)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Entry.Text, 200))
	}
	return nil
}

// WriteEntry writes one knowledge entry in full.
func WriteEntry(w io.Writer, e models.KnowledgeEntry, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, e)
	}
	fmt.Fprintf(w, "%s [%s]\nClass: %s\n\n%s\n", e.Title, e.ID, e.Class, e.Text)
	return nil
}
