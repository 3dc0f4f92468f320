package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sattyani/ai-procurement-agent/internal/space"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if len(cfg.Spaces) != 3 {
		t.Errorf("default spaces: got %d", len(cfg.Spaces))
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/proposals.db"
  snapshot_path: "./data/snapshots"
ingest:
  directory: "./data/proposals"
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "db", "proposals.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "snapshots"); cfg.Storage.SnapshotPath != want {
		t.Errorf("snapshot_path = %s, want %s", cfg.Storage.SnapshotPath, want)
	}
	if want := filepath.Join(dir, "data", "proposals"); cfg.Ingest.Directory != want {
		t.Errorf("ingest directory = %s, want %s", cfg.Ingest.Directory, want)
	}
}

func TestLoad_memoryDatabaseKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "storage:\n  database_path: \":memory:\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != ":memory:" {
		t.Errorf("database_path = %s", cfg.Storage.DatabasePath)
	}
}

func TestLoad_envExpansion(t *testing.T) {
	t.Setenv("PROCUREMENT_TEST_KEY", "sk-test")
	cfg, err := Load(writeConfig(t, "embedding:\n  provider: openai\n  api_key: \"${PROCUREMENT_TEST_KEY}\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("api_key = %q", cfg.Embedding.APIKey)
	}
}

func TestLoad_customSpaces(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
spaces:
  - name: scope
    field: scope_summary
    kind: text
  - name: cheap
    field: price
    kind: bounded_numeric
    min_value: 0
    max_value: 500000
    mode: minimum
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Spaces) != 2 {
		t.Fatalf("spaces: got %d", len(cfg.Spaces))
	}
	if cfg.Spaces[0].Model != DefaultModel {
		t.Errorf("text space model should default, got %q", cfg.Spaces[0].Model)
	}
	if cfg.Spaces[1].Mode != space.ModeMinimum || cfg.Spaces[1].MaxValue != 500000 {
		t.Errorf("numeric space: %+v", cfg.Spaces[1])
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad driver", "storage:\n  driver: postgres\n", "storage.driver"},
		{"bad provider", "embedding:\n  provider: magic\n", "embedding.provider"},
		{"bad id scheme", "ingest:\n  id_scheme: random\n", "id_scheme"},
		{"bad log level", "log_level: chatty\n", "log_level"},
		{"inverted bounds", `
spaces:
  - name: price
    field: price
    kind: bounded_numeric
    min_value: 10
    max_value: 5
`, "space"},
		{"bad yaml", "server: [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("default driver: got %s", cfg.Storage.Driver)
	}
	if cfg.Embedding.Provider != "hashing" || cfg.Embedding.Dimensions != 384 {
		t.Errorf("default embedding: %+v", cfg.Embedding)
	}
	if cfg.Embedding.MaxAttempts != 3 {
		t.Errorf("default max attempts: got %d", cfg.Embedding.MaxAttempts)
	}
	if cfg.Extraction.Model != "gpt-4o" {
		t.Errorf("default extraction model: got %s", cfg.Extraction.Model)
	}
	if len(cfg.Ingest.Extensions) != 1 || cfg.Ingest.Extensions[0] != ".pdf" {
		t.Errorf("default extensions: got %v", cfg.Ingest.Extensions)
	}
	price := cfg.Spaces[1]
	if price.MaxValue != 1_000_000 || price.Mode != space.ModeMaximum {
		t.Errorf("default price space: %+v", price)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{Driver: "memory", DatabasePath: "/tmp/db"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.Driver != "memory" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
}
