package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/config"
	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/extraction"
	"github.com/sattyani/ai-procurement-agent/internal/indexer"
	"github.com/sattyani/ai-procurement-agent/internal/ingest"
	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/search"
	"github.com/sattyani/ai-procurement-agent/internal/space"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	Embedders    map[string]embedding.Embedder
	KeywordIndex keyword.KeywordIndex
	Index        *indexer.CompositeIndex
	Engine       *search.Engine
	Pipeline     *ingest.Pipeline
	logger       *zap.Logger
}

// SaveSnapshot persists vectors so the next start can skip re-embedding.
func (c *Components) SaveSnapshot() {
	if c.Index == nil || c.Config.Storage.SnapshotPath == "" {
		return
	}
	if err := c.Index.SaveSnapshot(c.Config.Storage.SnapshotPath); err != nil {
		c.logger.Warn("vector snapshot save failed", zap.String("path", c.Config.Storage.SnapshotPath), zap.Error(err))
	}
}

func (c *Components) Close() {
	if c.Pipeline != nil {
		c.Pipeline.Release()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	for _, e := range c.Embedders {
		_ = e.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

// embedderResolver builds one embedder per distinct model named by the text spaces.
func embedderResolver(cfg *config.Config, logger *zap.Logger, built map[string]embedding.Embedder) space.EmbedderResolver {
	return func(model string) (embedding.Embedder, error) {
		if e, ok := built[model]; ok {
			return e, nil
		}
		e, err := embedding.New(embedding.Options{
			Provider:          cfg.Embedding.Provider,
			Model:             model,
			ModelPath:         cfg.Embedding.ModelPath,
			Dimensions:        cfg.Embedding.Dimensions,
			MaxTokens:         cfg.Embedding.MaxTokens,
			CacheSize:         cfg.Embedding.CacheSize,
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Retry: embedding.RetryPolicy{
				MaxAttempts: cfg.Embedding.MaxAttempts,
				BaseDelay:   time.Duration(cfg.Embedding.BaseDelayMs) * time.Millisecond,
				MaxDelay:    time.Duration(cfg.Embedding.MaxDelayMs) * time.Millisecond,
				Timeout:     time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		built[model] = e
		return e, nil
	}
}

// initializeComponents opens the store, builds the spaces and rebuilds the index from
// the store, reusing snapshot vectors where they are still valid.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{Config: cfg, Embedders: make(map[string]embedding.Embedder), logger: logger}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	store, err := storage.Open(storage.Options{
		Driver:       cfg.Storage.Driver,
		DatabasePath: cfg.Storage.DatabasePath,
		BadgerPath:   cfg.Storage.BadgerPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	spaces, err := space.Build(cfg.Spaces, embedderResolver(cfg, logger, c.Embedders))
	if err != nil {
		return nil, fmt.Errorf("failed to build spaces: %w", err)
	}

	// Kept in memory; Rebuild fills it from storage.
	kw, err := keyword.NewBleveIndex("")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = kw

	idxOpts := []indexer.IndexerOption{
		indexer.WithKeywordIndex(kw),
		indexer.WithConcurrency(cfg.Embedding.Concurrency),
	}
	if debug {
		idxOpts = append(idxOpts, indexer.WithLogger(logger))
	}
	idx, err := indexer.NewCompositeIndex(store, spaces, idxOpts...)
	if err != nil {
		return nil, err
	}
	if err := idx.Rebuild(ctx, cfg.Storage.SnapshotPath); err != nil {
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	c.Index = idx

	engineOpts := []search.EngineOption{}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	c.Engine = search.NewEngine(idx, &cfg.Search, engineOpts...)

	pipeOpts := []ingest.Option{ingest.WithLogger(logger)}
	fe, err := newFieldExtractor(cfg, logger)
	switch {
	case err == nil:
		pipeOpts = append(pipeOpts, ingest.WithFieldExtractor(fe))
	case errors.Is(err, errNoAPIKey):
		logger.Warn("no extraction API key configured; only cached documents can be ingested")
	default:
		return nil, err
	}
	pipe, err := ingest.NewPipeline(idx, ingest.Config{
		CacheDir:   cfg.Ingest.CacheDirectory,
		Extensions: cfg.Ingest.Extensions,
		IDScheme:   cfg.Ingest.IDScheme,
		Workers:    cfg.Ingest.Workers,
	}, pipeOpts...)
	if err != nil {
		return nil, err
	}
	c.Pipeline = pipe

	logger.Info("components initialized",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.Int("spaces", len(spaces)),
		zap.Int("proposals", idx.Len()))
	ok = true
	return c, nil
}

var errNoAPIKey = errors.New("no extraction API key")

func newFieldExtractor(cfg *config.Config, logger *zap.Logger) (extraction.FieldExtractor, error) {
	if cfg.Extraction.APIKey == "" {
		return nil, errNoAPIKey
	}
	return extraction.NewLLMExtractor(extraction.Config{
		Model:       cfg.Extraction.Model,
		APIKey:      cfg.Extraction.APIKey,
		BaseURL:     cfg.Extraction.BaseURL,
		Temperature: cfg.Extraction.Temperature,
		MaxAttempts: cfg.Extraction.MaxAttempts,
		MaxChars:    cfg.Extraction.MaxChars,
	}, extraction.WithLogger(logger))
}
