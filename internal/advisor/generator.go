// Package advisor turns a prediction and retrieved agronomy notes into
// guidance text and records it as an advice session.
package advisor

import (
	"context"
	"strings"

	"github.com/hyperjump/fieldscout/internal/models"
)

// Generator produces advice text for a predicted class.
type Generator interface {
	Generate(ctx context.Context, predictedClass string, docs []models.KnowledgeEntry, question string) (string, error)
	Name() string
}

// TemplateGenerator renders a fixed-structure answer. It is deterministic and
// never fails.
type TemplateGenerator struct{}

// NewTemplateGenerator returns the offline template generator.
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{}
}

// Name identifies the generator in logs and metrics.
func (TemplateGenerator) Name() string { return "template" }

// Generate renders the answer. An empty question is replaced with
// models.DefaultQuestion.
func (TemplateGenerator) Generate(_ context.Context, predictedClass string, docs []models.KnowledgeEntry, question string) (string, error) {
	return renderTemplate(predictedClass, docs, question), nil
}

func renderTemplate(class string, docs []models.KnowledgeEntry, question string) string {
	if strings.TrimSpace(question) == "" {
		question = models.DefaultQuestion
	}
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	line("Diagnosis: " + class)
	line("Question: " + question)
	line("")
	line("What this means:")
	line("- Based on your photo, this looks like " + class + ". Compare the symptoms listed below with your plant.")
	line("")
	line("Immediate steps (today/tomorrow):")
	line("- Remove heavily infected leaves/fruit if present.")
	line("- Avoid wetting foliage late in the day; prefer drip/soil-level watering.")
	line("- Improve airflow (spacing, pruning lower leaves touching soil).")
	line("")
	line("Context from agronomy notes:")
	line(mergeSources(docs))
	line("")
	line("When to escalate:")
	line("- If spread is rapid, fruit is affected, or weather strongly favors disease—seek local extension advice.")
	line("")
	line("This is guidance, not a medical or legal instruction.")
	return b.String()
}

// mergeSources joins docs as "Source: <title>\n<text>" blocks separated by ---.
func mergeSources(docs []models.KnowledgeEntry) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = "Source: " + d.Title + "\n" + d.Text
	}
	return strings.Join(parts, "\n---\n")
}
