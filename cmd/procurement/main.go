// Package main is the procurement search CLI entry point.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sattyani/ai-procurement-agent/internal/config"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/procurement/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development). When neither exists the
// built-in defaults are used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// OPENAI_API_KEY may live in .env next to the binary's working directory.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "search":
		runSearch(args)
	case "get":
		runGet(args)
	case "delete":
		runDelete(args)
	case "list":
		runList(args)
	case "status":
		runStatus(args)
	case "demo":
		runDemo(args)
	case "version", "--version", "-v":
		fmt.Printf("procurement version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`procurement - weighted semantic search over vendor proposals

Usage:
  procurement server [flags]            Start the HTTP server
  procurement ingest [flags] [dir]      Extract and index proposal documents
  procurement search [flags] [scope]    Search proposals
  procurement get [flags] <id>          Show one proposal
  procurement delete [flags] <id>       Delete a proposal
  procurement list [flags]              List proposals in insertion order
  procurement status [flags]            Show index/storage status
  procurement demo [flags]              Index the sample proposals and run the demo searches
  procurement version                   Show version
  procurement help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/procurement/config.yaml,
                     falling back to ./config.yaml, then built-in defaults)

Server Flags:
  --debug            Enable debug logging
  --watch            Re-ingest the proposals directory on change (also ingest.watch in config)

Ingest Flags:
  --sample           Load the built-in sample proposals instead of reading documents
  --report           After ingesting, run check searches and list all proposals

Search Flags:
  --server string        Server URL. Empty (default) searches the local store directly.
  --scope string         Scope query text (default: the positional arguments)
  --risks string         Risks query text
  --scope-weight float   Scope weight (default 1 when scope text is given)
  --price-weight float   Price weight (default 0)
  --risks-weight float   Risks weight (default 1 when risks text is given)
  --limit int            Number of results (default from config)
  --output string        text, compact or json (default: text)

List Flags:
  --match string     Keyword lookup over vendor, project and timeline text
  --output string    text or json

Status Flags:
  --server string    Server URL. Empty (default) reads the local store.
  --output string    text or json

Examples:
  procurement ingest ./data/proposals
  procurement search mobile app development
  procurement search --scope "cloud migration" --price-weight 0.5 --limit 3
  procurement search --risks "integration issues" --output json
  procurement list --match datawise
  procurement server --watch`)
}
