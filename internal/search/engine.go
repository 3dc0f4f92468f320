// Package search executes weighted multi-space queries over the composite index.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/config"
	"github.com/sattyani/ai-procurement-agent/internal/indexer"
	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
)

// Engine scores every indexed proposal in each active space and ranks by the weighted sum.
// It keeps no state between calls.
type Engine struct {
	index  *indexer.CompositeIndex
	config *config.SearchConfig
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over idx. A nil cfg means no upper bound on limit.
func NewEngine(idx *indexer.CompositeIndex, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = &config.SearchConfig{}
	}
	e := &Engine{index: idx, config: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteSpec runs a query given in the wire shape.
func (e *Engine) ExecuteSpec(ctx context.Context, spec models.QuerySpec) (*models.SearchResponse, error) {
	return e.Execute(ctx, spec.Query())
}

// Execute validates q, embeds its text targets and returns the top q.Limit proposals.
// Invalid queries fail with *models.InvalidQueryError before any embedding call.
func (e *Engine) Execute(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	startTime := time.Now()
	resp, err := e.execute(ctx, q)
	metrics.QueryDuration.Observe(time.Since(startTime).Seconds())

	var invalid *models.InvalidQueryError
	switch {
	case err == nil:
		metrics.QueriesTotal.WithLabelValues("ok").Inc()
	case errors.As(err, &invalid):
		metrics.QueriesTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.QueriesTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		return nil, err
	}
	resp.QueryTime = time.Since(startTime).Milliseconds()
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	active, err := e.validate(q)
	if err != nil {
		return nil, err
	}
	targets, err := e.embedTargets(ctx, q, active)
	if err != nil {
		return nil, err
	}
	scored, err := e.index.Scores(targets, active)
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}
	fused := Fuse(scored, active, q.Weights)

	limit := q.Limit
	if e.config.MaxLimit > 0 && limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}
	if limit > len(fused) {
		limit = len(fused)
	}

	response := &models.SearchResponse{
		Results: make([]*models.SearchResult, 0, limit),
		Total:   len(fused),
	}
	for i, r := range fused[:limit] {
		response.Results = append(response.Results, &models.SearchResult{
			Proposal:    r.Record,
			Score:       r.Score,
			SpaceScores: r.SpaceScores,
			Rank:        i + 1,
		})
	}
	e.logger.Debug("query executed",
		zap.Strings("spaces", active),
		zap.Int("scored", len(fused)),
		zap.Int("returned", limit),
	)
	return response, nil
}

// validate returns the active space names in configuration order.
func (e *Engine) validate(q models.Query) ([]string, error) {
	if q.Limit <= 0 {
		return nil, &models.InvalidQueryError{Reason: fmt.Sprintf("limit must be positive, got %d", q.Limit)}
	}
	for name, w := range q.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, &models.InvalidQueryError{Reason: fmt.Sprintf("weight for %q must be finite", name)}
		}
		if _, ok := e.index.Space(name); !ok && w != 0 {
			return nil, &models.InvalidQueryError{Reason: fmt.Sprintf("unknown space %q", name)}
		}
	}

	var active []string
	for _, sp := range e.index.Spaces() {
		if q.Weights[sp.Name()] == 0 {
			continue
		}
		if sp.Kind() == space.KindText && strings.TrimSpace(q.Targets[sp.Name()]) == "" {
			return nil, &models.InvalidQueryError{Reason: fmt.Sprintf("space %q has a non-zero weight but no query text", sp.Name())}
		}
		active = append(active, sp.Name())
	}
	if len(active) == 0 {
		return nil, &models.InvalidQueryError{Reason: "no active search criteria"}
	}
	return active, nil
}

// embedTargets embeds the query text of every active text space concurrently.
func (e *Engine) embedTargets(ctx context.Context, q models.Query, active []string) (map[string][]float32, error) {
	var (
		targets = make(map[string][]float32, len(active))
		mu      sync.Mutex
		wg      sync.WaitGroup
		errChan = make(chan error, len(active))
	)
	for _, name := range active {
		sp, _ := e.index.Space(name)
		ts, ok := sp.(*space.TextSpace)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := ts.EmbedQuery(ctx, q.Targets[name])
			if err != nil {
				var svc *models.EmbeddingServiceError
				if !errors.As(err, &svc) {
					err = &models.EmbeddingServiceError{Model: ts.Model(), Attempts: 1, Err: err}
				}
				errChan <- err
				return
			}
			mu.Lock()
			targets[name] = v
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}
	return targets, nil
}
