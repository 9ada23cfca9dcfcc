package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"fuelrag/internal/domain"
)

const (
	defaultChatModel = "gpt-4"
	defaultMaxTokens = 300

	systemPrompt = `You are a fuel sales data analyst.
Answer questions about fuel sales using ONLY the transaction records provided.
If the records are insufficient to answer, say so explicitly.
When the question asks for totals or comparisons, compute exact numbers from the records.
Be concise and direct.`
)

// Generator produces grounded answers via the chat completions API.
type Generator struct {
	sdk        openaisdk.Client
	model      string
	maxTokens  int
	maxRetries int
}

// GeneratorConfig configures the generative client.
type GeneratorConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
	Timeout    time.Duration
}

// NewGenerator creates the chat completions client.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	g := &Generator{
		sdk:        openaisdk.NewClient(opts...),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		maxRetries: cfg.MaxRetries,
	}
	if g.model == "" {
		g.model = defaultChatModel
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	return g, nil
}

// Model returns the chat model identifier.
func (g *Generator) Model() string { return g.model }

// Generate answers the question from the supplied context lines. Transient
// failures are retried with backoff; a content-filter stop surfaces as
// ErrContentFiltered.
func (g *Generator) Generate(ctx context.Context, question string, contexts []string) (string, error) {
	prompt := buildUserPrompt(question, contexts)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying chat completion", "attempt", attempt, "error", lastErr)
			if err := sleep(ctx, backoff(attempt-1, lastErr)); err != nil {
				return "", err
			}
		}
		answer, err := g.generateOnce(ctx, prompt)
		if err == nil {
			return answer, nil
		}
		if !domain.IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: chat retries exhausted: %v", domain.ErrUpstreamUnavailable, lastErr)
}

func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := g.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(g.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(systemPrompt),
			openaisdk.UserMessage(prompt),
		},
		Temperature:         param.NewOpt(0.3),
		MaxCompletionTokens: param.NewOpt(int64(g.maxTokens)),
	})
	if err != nil {
		return "", mapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", domain.ErrContentFiltered
	}
	answer := strings.TrimSpace(choice.Message.Content)
	if answer == "" {
		return "", errors.New("chat completion returned an empty answer")
	}
	return answer, nil
}

func buildUserPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n\nTransaction records:\n")
	for _, c := range contexts {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer concisely using only the records above:")
	return b.String()
}
