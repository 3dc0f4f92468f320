package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/cli"
	"github.com/sattyani/ai-procurement-agent/internal/config"
	"github.com/sattyani/ai-procurement-agent/internal/ingest"
	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/server"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
	"github.com/sattyani/ai-procurement-agent/internal/watcher"
	"github.com/sattyani/ai-procurement-agent/pkg/utils"
)

// openComponents loads config and initializes everything, exiting on failure.
func openComponents(ctx context.Context, configPath string, debugFlag bool) (*Components, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	return openComponentsWith(ctx, cfg, resolved, cfg.Debug || debugFlag)
}

func openComponentsWith(ctx context.Context, cfg *config.Config, resolved string, debugMode bool) (*Components, *zap.Logger) {
	logger, err := utils.NewLogger(debugMode, cfg.LogLevel)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	components, err := initializeComponents(ctx, cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger
}

// watchHandler re-ingests documents the watcher reports.
type watchHandler struct {
	pipeline *ingest.Pipeline
	onChange func()
	logger   *zap.Logger
}

func (h *watchHandler) FileChanged(ctx context.Context, path string) {
	if _, err := h.pipeline.ProcessFile(ctx, path); err != nil {
		h.logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	h.onChange()
}

func (h *watchHandler) FileRemoved(ctx context.Context, path string) {
	if err := h.pipeline.RemoveFile(ctx, path); err != nil {
		h.logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	h.onChange()
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "re-ingest the proposals directory on change")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, logger := openComponents(ctx, *configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	cfg := components.Config

	if cfg.Ingest.Watch || *watch {
		watchOpts := []watcher.WatcherOption{}
		if cfg.Debug || *debug {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		handler := &watchHandler{pipeline: components.Pipeline, onChange: components.SaveSnapshot, logger: logger}
		watchSvc := watcher.NewWatcher(cfg.Ingest.Directory, cfg.Ingest.Extensions, handler, watchOpts...)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		report, err := components.Pipeline.ProcessDirectory(ctx, cfg.Ingest.Directory)
		if err != nil {
			logger.Warn("initial ingest failed", zap.Error(err))
		} else {
			logReport(logger, report)
			components.SaveSnapshot()
		}
	}

	srv := server.NewServer(components.Engine, components.Index, cfg,
		server.WithLogger(logger),
		server.WithKeywordIndex(components.KeywordIndex))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	components.SaveSnapshot()
}

func logReport(logger *zap.Logger, report *ingest.Report) {
	logger.Info("ingest finished",
		zap.Int("found", report.Found),
		zap.Int("processed", report.Processed),
		zap.Int("cached", report.Cached),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", len(report.Failed)))
	for _, f := range report.Failed {
		logger.Warn("document failed", zap.String("path", f.Path), zap.Error(f.Err))
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	sample := fs.Bool("sample", false, "load the built-in sample proposals")
	report := fs.Bool("report", false, "run check searches and list all proposals after ingesting")
	_ = fs.Parse(args)

	ctx := context.Background()
	components, logger := openComponents(ctx, *configPath, *debug)
	defer logger.Sync()

	if *sample {
		n, err := components.Pipeline.LoadSamples(ctx)
		if err != nil {
			components.Close()
			exitf("Loading samples failed: %v", err)
		}
		components.SaveSnapshot()
		components.Close()
		fmt.Printf("Indexed %d sample proposal(s)\n", n)
		return
	}

	dir := components.Config.Ingest.Directory
	if fs.NArg() > 0 {
		dir = fs.Arg(0)
	}
	result, err := components.Pipeline.ProcessDirectory(ctx, dir)
	if err != nil {
		components.Close()
		exitf("Ingest failed: %v", err)
	}
	components.SaveSnapshot()

	fmt.Printf("Found %d document(s) in %s: %d extracted, %d from cache, %d indexed\n",
		result.Found, dir, result.Processed, result.Cached, result.Indexed)
	for _, f := range result.Failed {
		fmt.Printf("  failed: %v\n", f)
	}
	if *report {
		if err := writeIngestReport(ctx, components, os.Stdout); err != nil {
			components.Close()
			exitf("Report failed: %v", err)
		}
	}
	components.Close()
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}

// writeIngestReport runs the document check searches and lists every indexed proposal.
func writeIngestReport(ctx context.Context, c *Components, w io.Writer) error {
	if err := runQueries(ctx, c, w, ingest.DocumentQueries(), cli.OutputText); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n=== All proposals ===\n")
	return cli.WriteProposals(w, c.Index.All(), cli.OutputText)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig returns search.default_limit from the config at path, or 5.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil || cfg.Search.DefaultLimit <= 0 {
		return 5
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// resolveWeight gives a text space weight 1 when it has query text and no explicit weight.
func resolveWeight(text string, weight float64, explicit bool) float64 {
	if explicit {
		return weight
	}
	if strings.TrimSpace(text) != "" {
		return 1
	}
	return 0
}

func runSearch(args []string) {
	searchArgs := searchArgsReorder(args)
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = search the local store directly)")
	scope := fs.String("scope", "", "scope query text (default: positional arguments)")
	risks := fs.String("risks", "", "risks query text")
	scopeWeight := fs.Float64("scope-weight", 0, "scope weight (1 when scope text is given)")
	priceWeight := fs.Float64("price-weight", 0, "price weight")
	risksWeight := fs.Float64("risks-weight", 0, "risks weight (1 when risks text is given)")
	limit := fs.Int("limit", searchLimitDefaultFromConfig(configPath), "number of results")
	outputFormat := fs.String("output", "text", "output format: text, compact or json")
	_ = fs.Parse(searchArgs)

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	scopeText := *scope
	if scopeText == "" {
		scopeText = buildSearchQuery(fs.Args())
	}
	spec := models.QuerySpec{
		ScopeQuery:  scopeText,
		RisksQuery:  *risks,
		ScopeWeight: resolveWeight(scopeText, *scopeWeight, explicit["scope-weight"]),
		PriceWeight: *priceWeight,
		RisksWeight: resolveWeight(*risks, *risksWeight, explicit["risks-weight"]),
		Limit:       *limit,
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		exitf("%v", err)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, spec)
	} else {
		components, logger := openComponents(context.Background(), *configPathFlag, false)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.ExecuteSpec(context.Background(), spec)
	}
	if err != nil {
		exitf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, spec models.QuerySpec) (*models.SearchResponse, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runGet(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		exitf("Usage: procurement get [flags] <id>")
	}

	components, logger := openComponents(context.Background(), *configPath, false)
	defer logger.Sync()
	rec, err := components.Index.Get(fs.Arg(0))
	components.Close()
	if err != nil {
		exitf("Get failed: %v", err)
	}
	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rec)
		return
	}
	fmt.Printf("id:        %s\n", rec.ID)
	fmt.Printf("vendor:    %s\n", rec.VendorName)
	fmt.Printf("project:   %s\n", rec.ProjectName)
	fmt.Printf("price:     %s\n", cli.FormatPrice(rec.Price))
	fmt.Printf("timeline:  %s\n", rec.DeliveryTimeline)
	fmt.Printf("timestamp: %s\n", rec.Timestamp)
	fmt.Printf("\nscope:\n%s\n\nrisks:\n%s\n", rec.ScopeSummary, rec.Risks)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		exitf("Usage: procurement delete [flags] <id>")
	}
	id := fs.Arg(0)

	components, logger := openComponents(context.Background(), *configPath, false)
	defer logger.Sync()
	err := components.Index.Remove(context.Background(), id)
	if err == nil {
		components.SaveSnapshot()
	}
	components.Close()
	if err != nil {
		exitf("Deletion failed: %v", err)
	}
	fmt.Printf("Proposal deleted: %s\n", id)
}

func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	match := fs.String("match", "", "keyword lookup over vendor, project and timeline")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		exitf("%v", err)
	}

	ctx := context.Background()
	components, logger := openComponents(ctx, *configPath, false)
	defer logger.Sync()
	defer components.Close()

	records := components.Index.All()
	if *match != "" {
		hits, err := components.KeywordIndex.Search(ctx, *match, components.Index.Len(), &keyword.SearchOptions{FuzzyEnabled: true})
		if err != nil {
			exitf("Lookup failed: %v", err)
		}
		records = records[:0]
		for _, hit := range hits {
			if rec, err := components.Index.Get(hit.ID); err == nil {
				records = append(records, rec)
			}
		}
	}
	if err := cli.WriteProposals(os.Stdout, records, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

type spaceStatus struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Field      string `json:"field"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Proposals         int           `json:"proposals"`
	Spaces            []spaceStatus `json:"spaces"`
	EmbeddingProvider string        `json:"embedding_provider"`
	StorageDriver     string        `json:"storage_driver"`
	KeywordDocuments  *uint64       `json:"keyword_documents,omitempty"`
	DiskUsageBytes    *int64        `json:"disk_usage_bytes,omitempty"`
}

func localStatus(c *Components) *statusResponse {
	cfg := c.Config
	status := &statusResponse{
		Proposals:         c.Index.Len(),
		EmbeddingProvider: cfg.Embedding.Provider,
		StorageDriver:     cfg.Storage.Driver,
	}
	for _, sp := range c.Index.Spaces() {
		status.Spaces = append(status.Spaces, spaceStatus{
			Name:       sp.Name(),
			Kind:       string(sp.Kind()),
			Field:      sp.Field(),
			Model:      sp.Model(),
			Dimensions: sp.Dimensions(),
		})
	}
	if n, err := c.KeywordIndex.DocCount(); err == nil {
		status.KeywordDocuments = &n
	}
	opts := storage.Options{Driver: cfg.Storage.Driver, DatabasePath: cfg.Storage.DatabasePath, BadgerPath: cfg.Storage.BadgerPath}
	if diskBytes, err := storage.DiskUsageBytes(opts.Path(), cfg.Storage.SnapshotPath); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read the local store)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	var status *statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			exitf("Status failed: %v", err)
		}
		status = res
	} else {
		components, logger := openComponents(context.Background(), *configPath, false)
		defer logger.Sync()
		defer components.Close()
		status = localStatus(components)
	}
	if err := writeStatus(os.Stdout, status, *outputFormat); err != nil {
		exitf("%v", err)
	}
}

func writeStatus(w io.Writer, status *statusResponse, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "text":
		fmt.Fprintf(w, "proposals:           %d\n", status.Proposals)
		fmt.Fprintf(w, "storage_driver:      %s\n", status.StorageDriver)
		fmt.Fprintf(w, "embedding_provider:  %s\n", status.EmbeddingProvider)
		if status.KeywordDocuments != nil {
			fmt.Fprintf(w, "keyword_documents:   %d\n", *status.KeywordDocuments)
		}
		if status.DiskUsageBytes != nil {
			fmt.Fprintf(w, "disk_usage_bytes:    %d   # storage + snapshots on disk\n", *status.DiskUsageBytes)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# spaces")
		for _, sp := range status.Spaces {
			fmt.Fprintf(w, "%-10s %-16s field=%-18s dims=%-5d %s\n", sp.Name, sp.Kind, sp.Field, sp.Dimensions, sp.Model)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q; use text or json", format)
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// demoConfig keeps the demo off disk regardless of the loaded config.
func demoConfig(cfg *config.Config) *config.Config {
	demo := *cfg
	demo.Storage.Driver = "memory"
	demo.Storage.SnapshotPath = ""
	demo.Ingest.CacheDirectory = ""
	return &demo
}

// runDemoQueries loads the sample proposals and writes each canned search to w.
func runDemoQueries(ctx context.Context, c *Components, w io.Writer, format cli.SearchOutputFormat) error {
	n, err := c.Pipeline.LoadSamples(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Indexed %d sample proposals\n", n)
	return runQueries(ctx, c, w, ingest.SampleQueries(), format)
}

func runQueries(ctx context.Context, c *Components, w io.Writer, queries []ingest.DemoQuery, format cli.SearchOutputFormat) error {
	for _, q := range queries {
		fmt.Fprintf(w, "\n=== %s ===\n", q.Title)
		response, err := c.Engine.ExecuteSpec(ctx, q.Spec)
		if err != nil {
			return fmt.Errorf("%s: %w", q.Title, err)
		}
		if err := cli.WriteSearchResults(w, response, format); err != nil {
			return err
		}
	}
	return nil
}

func runDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "compact", "output format: text, compact or json")
	_ = fs.Parse(args)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		exitf("%v", err)
	}

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	ctx := context.Background()
	components, logger := openComponentsWith(ctx, demoConfig(cfg), resolved, cfg.Debug)
	defer logger.Sync()
	defer components.Close()
	if err := runDemoQueries(ctx, components, os.Stdout, format); err != nil {
		exitf("Demo failed: %v", err)
	}
}
