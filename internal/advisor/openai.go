package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/fieldscout/internal/models"
	"github.com/hyperjump/fieldscout/pkg/utils"
)

const defaultModel = "gpt-4o-mini"

const systemPrompt = `You are an agronomy assistant helping a grower act on a leaf disease diagnosis.
Answer using only the agronomy notes provided. Be concrete and brief. Recommend contacting local
extension services when the notes do not cover the situation. End with: "This is guidance, not a
medical or legal instruction."`

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIGenerator asks a chat model for advice grounded in the retrieved notes.
// Any failure falls back to the template so advice is always produced.
type OpenAIGenerator struct {
	client   *openai.Client
	cfg      OpenAIConfig
	fallback Generator
	logger   *zap.Logger
}

// NewOpenAIGenerator builds a generator. A nil fallback uses the template.
func NewOpenAIGenerator(cfg OpenAIConfig, fallback Generator, logger *zap.Logger) *OpenAIGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if fallback == nil {
		fallback = NewTemplateGenerator()
	}
	logger = utils.OrNop(logger)
	return &OpenAIGenerator{
		client:   openai.NewClientWithConfig(clientCfg),
		cfg:      cfg,
		fallback: fallback,
		logger:   logger,
	}
}

// Name identifies the generator in logs and metrics.
func (g *OpenAIGenerator) Name() string { return "openai" }

// Generate requests a completion and falls back on error or empty output.
func (g *OpenAIGenerator) Generate(ctx context.Context, predictedClass string, docs []models.KnowledgeEntry, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		question = models.DefaultQuestion
	}
	text, err := g.complete(ctx, predictedClass, docs, question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.logger.Warn("completion failed, using template", zap.String("model", g.cfg.Model), zap.Error(err))
		return g.fallback.Generate(ctx, predictedClass, docs, question)
	}
	return text, nil
}

func (g *OpenAIGenerator) complete(ctx context.Context, class string, docs []models.KnowledgeEntry, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(class, docs, question)},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("completion returned empty content")
	}
	g.logger.Debug("advice completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)
	return content, nil
}

func userPrompt(class string, docs []models.KnowledgeEntry, question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Diagnosis: %s\nQuestion: %s\n\nAgronomy notes:\n", class, question)
	if len(docs) == 0 {
		b.WriteString("(none available)\n")
	} else {
		b.WriteString(mergeSources(docs))
		b.WriteByte('\n')
	}
	return b.String()
}
