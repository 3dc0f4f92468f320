// Package config provides configuration loading and structs for the procurement search service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sattyani/ai-procurement-agent/internal/space"
)

// Config holds all configuration for the application.
type Config struct {
	Debug bool `yaml:"debug"`
	// LogLevel overrides the level implied by Debug when set.
	LogLevel   string           `yaml:"log_level"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Spaces     []space.Config   `yaml:"spaces"`
	Search     SearchConfig     `yaml:"search"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
}

// StorageConfig selects the record store and where it keeps its data.
type StorageConfig struct {
	// Driver is one of "sqlite", "badger" or "memory".
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	BadgerPath   string `yaml:"badger_path"`
	// SnapshotPath is the directory for vector snapshots. Empty disables snapshots.
	SnapshotPath string `yaml:"snapshot_path"`
}

// EmbeddingConfig holds embedder settings shared by every text space.
type EmbeddingConfig struct {
	// Provider is one of "hashing", "onnx" or "openai".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	ModelPath string `yaml:"model_path"`
	// Dimensions must match the model output.
	Dimensions int `yaml:"dimensions"`
	MaxTokens  int `yaml:"max_tokens"`
	CacheSize  int `yaml:"cache_size"`

	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	TimeoutSec  int `yaml:"timeout_sec"`
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms"`
	// Concurrency bounds parallel embedding calls during an upsert.
	Concurrency int `yaml:"concurrency"`
}

// SearchConfig holds query limits.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// ExtractionConfig configures the language model that turns document text into fields.
type ExtractionConfig struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxAttempts int     `yaml:"max_attempts"`
	// MaxChars truncates document text before it is sent to the model.
	MaxChars int `yaml:"max_chars"`
}

// IngestConfig holds proposal directory settings.
type IngestConfig struct {
	Directory      string   `yaml:"directory"`
	CacheDirectory string   `yaml:"cache_directory"`
	Extensions     []string `yaml:"extensions"`
	// IDScheme is "sequence" (integers in file order) or "path" (UUID derived from the file path).
	IDScheme string `yaml:"id_scheme"`
	Workers  int    `yaml:"workers"`
	// Watch re-ingests the directory on change while the server runs.
	Watch bool `yaml:"watch"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses the config file at path, expands ${VAR} references and paths,
// and applies defaults. Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := envPattern.ReplaceAllStringFunc(string(data), func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BadgerPath = expandPath(cfg.Storage.BadgerPath, configDir)
	cfg.Storage.SnapshotPath = expandPath(cfg.Storage.SnapshotPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.Ingest.Directory = expandPath(cfg.Ingest.Directory, configDir)
	cfg.Ingest.CacheDirectory = expandPath(cfg.Ingest.CacheDirectory, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks option values that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q: want sqlite, badger or memory", c.Storage.Driver)
	}
	switch c.Embedding.Provider {
	case "hashing", "onnx", "openai":
	default:
		return fmt.Errorf("invalid embedding.provider %q: want hashing, onnx or openai", c.Embedding.Provider)
	}
	switch c.Ingest.IDScheme {
	case "sequence", "path":
	default:
		return fmt.Errorf("invalid ingest.id_scheme %q: want sequence or path", c.Ingest.IDScheme)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}
	for _, sc := range c.Spaces {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("invalid space config: %w", err)
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths and ":memory:" are kept.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
