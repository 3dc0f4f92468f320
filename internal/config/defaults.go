package config

import (
	"os"

	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
)

// DefaultModel is the sentence embedding model the text spaces are configured with.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultSpaces returns the scope, price and risks spaces.
func DefaultSpaces() []space.Config {
	return []space.Config{
		{Name: models.SpaceScope, Field: models.FieldScopeSummary, Kind: space.KindText, Model: DefaultModel},
		{Name: models.SpacePrice, Field: models.FieldPrice, Kind: space.KindBoundedNumeric, MinValue: 0, MaxValue: 1_000_000, Mode: space.ModeMaximum},
		{Name: models.SpaceRisks, Field: models.FieldRisks, Kind: space.KindText, Model: DefaultModel},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSec == 0 {
		cfg.Server.RequestTimeoutSec = 60
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/proposals.db"
	}
	if cfg.Storage.BadgerPath == "" {
		cfg.Storage.BadgerPath = "./data/badger"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hashing"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultModel
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "./data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.TimeoutSec == 0 {
		cfg.Embedding.TimeoutSec = 30
	}
	if cfg.Embedding.MaxAttempts == 0 {
		cfg.Embedding.MaxAttempts = 3
	}
	if cfg.Embedding.BaseDelayMs == 0 {
		cfg.Embedding.BaseDelayMs = 200
	}
	if cfg.Embedding.MaxDelayMs == 0 {
		cfg.Embedding.MaxDelayMs = 2000
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	if len(cfg.Spaces) == 0 {
		cfg.Spaces = DefaultSpaces()
	}
	for i := range cfg.Spaces {
		if cfg.Spaces[i].Kind == space.KindText && cfg.Spaces[i].Model == "" {
			cfg.Spaces[i].Model = cfg.Embedding.Model
		}
		if cfg.Spaces[i].Kind == space.KindBoundedNumeric && cfg.Spaces[i].Mode == "" {
			cfg.Spaces[i].Mode = space.ModeMaximum
		}
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = "gpt-4o"
	}
	if cfg.Extraction.APIKey == "" {
		cfg.Extraction.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Extraction.MaxAttempts == 0 {
		cfg.Extraction.MaxAttempts = 3
	}
	if cfg.Extraction.MaxChars == 0 {
		cfg.Extraction.MaxChars = 4000
	}
	if cfg.Ingest.Directory == "" {
		cfg.Ingest.Directory = "./data/proposals"
	}
	if cfg.Ingest.CacheDirectory == "" {
		cfg.Ingest.CacheDirectory = "./outputs"
	}
	if cfg.Ingest.Extensions == nil {
		cfg.Ingest.Extensions = []string{".pdf"}
	}
	if cfg.Ingest.IDScheme == "" {
		cfg.Ingest.IDScheme = "sequence"
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
}
