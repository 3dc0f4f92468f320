package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/sattyani/ai-procurement-agent/internal/metrics"
)

const providerOpenAI = "openai"

// OpenAIConfig holds the settings of an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	// RequestsPerSecond throttles calls; zero disables throttling.
	RequestsPerSecond float64
}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	limiter    *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder for cfg. An API key is required.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder requires an API key (embedding.api_key or OPENAI_API_KEY)")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		limiter:    limiter,
	}, nil
}

// Embed returns the embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	// Only the text-embedding-3 family accepts a reduced output size.
	if strings.HasPrefix(string(e.model), "text-embedding-3") {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, string(e.model), "error").Inc()
		return nil, parseAPIError(err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(providerOpenAI, string(e.model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerOpenAI, string(e.model)).Observe(time.Since(start).Seconds())

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("malformed response: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

// parseAPIError extracts a readable message and marks client errors other than
// rate limiting as permanent.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, errorDetail(reqErr.Body))
		return classify(reqErr.HTTPStatusCode, msg)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		return classify(apiErr.HTTPStatusCode, msg)
	}
	return fmt.Errorf("embedding request failed: %w", err)
}

func classify(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return Permanent(err)
	}
	return err
}

func errorDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return string(body)
}
