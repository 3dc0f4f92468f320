package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// Options selects and configures an embedding provider.
type Options struct {
	// Provider is "hashing", "onnx" or "openai".
	Provider   string
	Model      string
	ModelPath  string
	Dimensions int
	MaxTokens  int
	CacheSize  int

	APIKey            string
	BaseURL           string
	RequestsPerSecond float64

	Retry RetryPolicy
}

// New builds the provider named by opts and wraps it with retries and, when
// CacheSize > 0, an LRU cache.
func New(opts Options, logger *zap.Logger) (Embedder, error) {
	var base Embedder
	switch opts.Provider {
	case "", "hashing":
		base = NewHashingEmbedder(opts.Model, opts.Dimensions)
	case "onnx":
		e, err := NewONNXEmbedder(ONNXConfig{ModelPath: opts.ModelPath, Dimensions: opts.Dimensions, MaxTokens: opts.MaxTokens})
		if err != nil {
			return nil, fmt.Errorf("failed to create ONNX embedder: %w", err)
		}
		base = e
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            opts.APIKey,
			BaseURL:           opts.BaseURL,
			Model:             opts.Model,
			Dimensions:        opts.Dimensions,
			RequestsPerSecond: opts.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		base = e
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	var emb Embedder = NewRetryingEmbedder(base, opts.Model, opts.Retry, logger)
	if opts.CacheSize > 0 {
		emb = NewCachedEmbedder(emb, opts.CacheSize)
	}
	return emb, nil
}
