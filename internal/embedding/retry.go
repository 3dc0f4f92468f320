package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// RetryPolicy bounds how long and how often an embedding call is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Timeout applies to each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultRetryPolicy is three attempts with exponential backoff from 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second, Timeout: 30 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// RetryingEmbedder retries failed or malformed embedding calls and reports
// exhaustion as *models.EmbeddingServiceError.
type RetryingEmbedder struct {
	inner  Embedder
	model  string
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryingEmbedder wraps inner with policy. model names the embedder in errors and metrics.
func NewRetryingEmbedder(inner Embedder, model string, policy RetryPolicy, logger *zap.Logger) *RetryingEmbedder {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryingEmbedder{inner: inner, model: model, policy: policy, logger: logger}
}

// Embed embeds text, retrying transient failures.
func (e *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := e.do(ctx, func(ctx context.Context) error {
		v, err := e.inner.Embed(ctx, text)
		if err != nil {
			return err
		}
		if err := e.check(v); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// EmbedBatch embeds texts, retrying the whole batch on transient failures.
func (e *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := e.do(ctx, func(ctx context.Context) error {
		vs, err := e.inner.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vs) != len(texts) {
			return fmt.Errorf("malformed response: expected %d embeddings, got %d", len(texts), len(vs))
		}
		for _, v := range vs {
			if err := e.check(v); err != nil {
				return err
			}
		}
		out = vs
		return nil
	})
	return out, err
}

func (e *RetryingEmbedder) check(v []float32) error {
	if len(v) != e.inner.Dimensions() {
		return fmt.Errorf("malformed response: expected %d dimensions, got %d", e.inner.Dimensions(), len(v))
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.New("malformed response: non-finite component")
		}
	}
	return nil
}

func (e *RetryingEmbedder) do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	attempt := 0
	for attempt < e.policy.MaxAttempts {
		attempt++
		if err := ctx.Err(); err != nil {
			return e.fail(attempt-1, err)
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if e.policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.policy.Timeout)
		}
		lastErr = op(attemptCtx)
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				e.logger.Debug("embedding succeeded after retry", zap.String("model", e.model), zap.Int("attempt", attempt))
			}
			return nil
		}
		if IsPermanent(lastErr) || ctx.Err() != nil {
			break
		}
		if attempt == e.policy.MaxAttempts {
			break
		}

		e.logger.Warn("embedding failed, retrying",
			zap.String("model", e.model), zap.Int("attempt", attempt), zap.Error(lastErr))
		metrics.EmbeddingRetriesTotal.WithLabelValues(e.model).Inc()

		timer := time.NewTimer(e.policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return e.fail(attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return e.fail(attempt, lastErr)
}

func (e *RetryingEmbedder) fail(attempts int, err error) error {
	return &models.EmbeddingServiceError{Model: e.model, Attempts: attempts, Err: err}
}

// Dimensions returns the inner embedder's dimension.
func (e *RetryingEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Close closes the inner embedder.
func (e *RetryingEmbedder) Close() error {
	return e.inner.Close()
}
