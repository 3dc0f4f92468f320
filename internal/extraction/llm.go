package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/pkg/utils"
)

const systemPrompt = `You are an expert procurement analyst. Read the vendor proposal and extract:
1. vendor_name: the vendor or company submitting the proposal
2. project_name: the name or title of the proposed project
3. price: the total project price in dollars, as a number (the total, not individual line items)
4. delivery_timeline: timeline, delivery schedule, duration and milestones
5. scope_summary: summary of the scope, deliverables and services offered
6. risks: risks, challenges, limitations or concerns mentioned

The information may appear anywhere in the document. Respond with one JSON object with
exactly these keys. Use an empty string for text you cannot find and null for a missing price.`

// Config configures an LLMExtractor.
type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	// MaxAttempts bounds retries on malformed JSON. Default 3.
	MaxAttempts int
	// MaxChars truncates the document text. 0 means no limit.
	MaxChars int
}

// LLMExtractor extracts fields with an OpenAI-compatible chat model in JSON mode.
type LLMExtractor struct {
	client llms.Model
	cfg    Config
	logger *zap.Logger
}

// Option configures an LLMExtractor.
type Option func(*LLMExtractor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(e *LLMExtractor) { e.logger = l }
}

// WithModel replaces the chat model client.
func WithModel(m llms.Model) Option {
	return func(e *LLMExtractor) { e.client = m }
}

// NewLLMExtractor creates an extractor. Without WithModel it connects to the OpenAI API
// (or cfg.BaseURL) using cfg.APIKey.
func NewLLMExtractor(cfg Config, opts ...Option) (*LLMExtractor, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	e := &LLMExtractor{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.client != nil {
		return e, nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extraction requires an API key (set OPENAI_API_KEY)")
	}
	clientOpts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction model: %w", err)
	}
	e.client = client
	return e, nil
}

// Extract asks the model for the proposal fields of text. Malformed JSON is retried;
// a failed model call is not.
func (e *LLMExtractor) Extract(ctx context.Context, source, text string) (*Fields, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &models.ExtractionError{Source: source, Err: errors.New("no text to extract from")}
	}
	if e.cfg.MaxChars > 0 {
		text = utils.Truncate(text, e.cfg.MaxChars)
	}
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, "DOCUMENT CONTENT:\n"+text),
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		resp, err := e.client.GenerateContent(ctx, content,
			llms.WithTemperature(e.cfg.Temperature),
			llms.WithJSONMode(),
		)
		if err != nil {
			return nil, &models.ExtractionError{Source: source, Err: fmt.Errorf("model call failed: %w", err)}
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("model returned no choices")
			continue
		}
		var f Fields
		if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Content)), &f); err != nil {
			lastErr = fmt.Errorf("malformed model response: %w", err)
			e.logger.Warn("error parsing extraction response",
				zap.String("source", source),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}
		e.logger.Debug("fields extracted", zap.String("source", source), zap.Int("attempt", attempt))
		return &f, nil
	}
	return nil, &models.ExtractionError{Source: source, Err: lastErr}
}

// stripFences removes a markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
