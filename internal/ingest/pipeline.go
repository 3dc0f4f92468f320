// Package ingest turns a directory of proposal documents into indexed proposal records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/extract"
	"github.com/sattyani/ai-procurement-agent/internal/extraction"
	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// ID schemes.
const (
	IDSchemeSequence = "sequence"
	IDSchemePath     = "path"
)

// Index receives ingested records.
type Index interface {
	Upsert(ctx context.Context, records []*models.ProposalRecord) error
	Remove(ctx context.Context, id string) error
	All() []*models.ProposalRecord
}

// Config configures a Pipeline.
type Config struct {
	// CacheDir holds one <stem>_extracted.json per processed document. Empty disables caching.
	CacheDir   string
	Extensions []string
	// IDScheme is IDSchemeSequence or IDSchemePath.
	IDScheme string
	Workers  int
}

// FileError is the failure of one document.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return filepath.Base(e.Path) + ": " + e.Err.Error()
}

// Report summarises a directory run.
type Report struct {
	Found     int
	Processed int
	Cached    int
	Indexed   int
	Failed    []FileError
}

// Pipeline extracts proposal fields from documents on a worker pool and upserts them.
type Pipeline struct {
	index     Index
	extractor *extract.Extractor
	fields    extraction.FieldExtractor
	cfg       Config
	pool      *ants.Pool
	logger    *zap.Logger
	now       func() time.Time

	seqMu   sync.Mutex
	nextSeq int64
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) error {
		if l == nil {
			l = zap.NewNop()
		}
		p.logger = l
		return nil
	}
}

// WithFieldExtractor sets the extractor used for documents that are not cached.
// Without one, only cached documents can be ingested.
func WithFieldExtractor(fe extraction.FieldExtractor) Option {
	return func(p *Pipeline) error {
		p.fields = fe
		return nil
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		p.now = now
		return nil
	}
}

// NewPipeline creates a pipeline feeding index. Call Release when done.
func NewPipeline(index Index, cfg Config, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, errors.New("ingest: index is required")
	}
	switch cfg.IDScheme {
	case "":
		cfg.IDScheme = IDSchemeSequence
	case IDSchemeSequence, IDSchemePath:
	default:
		return nil, fmt.Errorf("ingest: unknown id scheme %q", cfg.IDScheme)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("ingest: create worker pool: %w", err)
	}
	p := &Pipeline{
		index:     index,
		extractor: extract.NewExtractor(),
		cfg:       cfg,
		pool:      pool,
		logger:    zap.NewNop(),
		now:       time.Now,
		nextSeq:   1,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release stops the worker pool.
func (p *Pipeline) Release() {
	p.pool.Release()
}

// Matches reports whether path has one of the configured extensions.
func (p *Pipeline) Matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range p.cfg.Extensions {
		if "."+strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// ListFiles returns the matching files directly inside dir, sorted by name.
func (p *Pipeline) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read proposals directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !p.Matches(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// IDForPath returns the stable proposal id of a document path.
func IDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

type fileJob struct {
	path   string
	id     string
	rec    *models.ProposalRecord
	cached bool
	err    error
}

// ProcessDirectory ingests every matching document in dir. Cached documents are not
// re-extracted. Per-document failures are collected in the report; the returned error
// is reserved for failures of the whole run.
func (p *Pipeline) ProcessDirectory(ctx context.Context, dir string) (*Report, error) {
	files, err := p.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	report := &Report{Found: len(files)}
	p.logger.Info("processing proposals", zap.String("dir", dir), zap.Int("files", len(files)))
	if len(files) == 0 {
		return report, nil
	}

	jobs := make([]*fileJob, len(files))
	var cached []*models.ProposalRecord
	for i, f := range files {
		j := &fileJob{path: f}
		j.rec, j.err = p.loadCached(f)
		if j.rec != nil {
			j.cached = true
			cached = append(cached, j.rec)
		}
		jobs[i] = j
	}
	p.seedSequence(cached)

	var wg sync.WaitGroup
	for _, j := range jobs {
		if j.rec != nil || j.err != nil {
			continue
		}
		j.id = p.assignID(j.path)
		wg.Add(1)
		if err := p.pool.Submit(func() {
			defer wg.Done()
			j.rec, j.err = p.extractFile(ctx, j.path, j.id)
		}); err != nil {
			wg.Done()
			j.err = fmt.Errorf("submit extraction: %w", err)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ready []*fileJob
	seen := make(map[string]string)
	for _, j := range jobs {
		if j.err == nil {
			if other, dup := seen[j.rec.ID]; dup {
				j.err = fmt.Errorf("proposal id %s already used by %s", j.rec.ID, filepath.Base(other))
			} else {
				seen[j.rec.ID] = j.path
			}
		}
		if j.err != nil {
			report.Failed = append(report.Failed, FileError{Path: j.path, Err: j.err})
			metrics.IngestedFilesTotal.WithLabelValues("failed").Inc()
			p.logger.Warn("proposal failed", zap.String("path", j.path), zap.Error(j.err))
			continue
		}
		ready = append(ready, j)
	}

	for _, j := range p.upsert(ctx, ready) {
		if j.err != nil {
			report.Failed = append(report.Failed, FileError{Path: j.path, Err: j.err})
			metrics.IngestedFilesTotal.WithLabelValues("failed").Inc()
			p.logger.Warn("proposal not indexed", zap.String("path", j.path), zap.Error(j.err))
			continue
		}
		report.Indexed++
		if j.cached {
			report.Cached++
			metrics.IngestedFilesTotal.WithLabelValues("cached").Inc()
		} else {
			report.Processed++
			metrics.IngestedFilesTotal.WithLabelValues("processed").Inc()
		}
	}
	p.logger.Info("processing summary",
		zap.Int("found", report.Found),
		zap.Int("processed", report.Processed),
		zap.Int("cached", report.Cached),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// upsert indexes all jobs in one batch. When the batch is rejected, each record is
// upserted alone so one bad document does not block the rest; job errors are set.
func (p *Pipeline) upsert(ctx context.Context, jobs []*fileJob) []*fileJob {
	if len(jobs) == 0 {
		return jobs
	}
	records := make([]*models.ProposalRecord, len(jobs))
	for i, j := range jobs {
		records[i] = j.rec
	}
	err := p.index.Upsert(ctx, records)
	if err == nil || ctx.Err() != nil {
		for _, j := range jobs {
			j.err = err
		}
		return jobs
	}
	p.logger.Debug("batch upsert rejected, retrying per document", zap.Error(err))
	for _, j := range jobs {
		j.err = p.index.Upsert(ctx, []*models.ProposalRecord{j.rec})
	}
	return jobs
}

// ProcessFile re-extracts one document and upserts it, keeping the id it was given
// before when a cache entry exists.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*models.ProposalRecord, error) {
	prev, err := p.loadCached(path)
	if err != nil {
		p.logger.Debug("ignoring unreadable cache entry", zap.String("path", path), zap.Error(err))
	}
	var id string
	if prev != nil {
		id = prev.ID
	} else {
		p.seedSequence(nil)
		id = p.assignID(path)
	}
	rec, err := p.extractFile(ctx, path, id)
	if err == nil {
		err = p.index.Upsert(ctx, []*models.ProposalRecord{rec})
	}
	if err != nil {
		metrics.IngestedFilesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.IngestedFilesTotal.WithLabelValues("processed").Inc()
	p.logger.Info("proposal ingested", zap.String("path", path), zap.String("id", rec.ID))
	return rec, nil
}

// RemoveFile removes the proposal that was ingested from path, if any.
func (p *Pipeline) RemoveFile(ctx context.Context, path string) error {
	rec, err := p.loadCached(path)
	if err != nil {
		return err
	}
	var id string
	switch {
	case rec != nil:
		id = rec.ID
	case p.cfg.IDScheme == IDSchemePath:
		id = IDForPath(path)
	default:
		return nil
	}
	if err := p.index.Remove(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("remove proposal %s: %w", id, err)
	}
	if p.cfg.CacheDir != "" {
		if err := removeCached(p.cfg.CacheDir, path); err != nil {
			return fmt.Errorf("remove extraction cache: %w", err)
		}
	}
	p.logger.Info("proposal removed", zap.String("path", path), zap.String("id", id))
	return nil
}

// LoadSamples upserts the built-in sample proposals.
func (p *Pipeline) LoadSamples(ctx context.Context) (int, error) {
	samples := SampleProposals()
	if err := p.index.Upsert(ctx, samples); err != nil {
		return 0, fmt.Errorf("load sample proposals: %w", err)
	}
	p.seedSequence(samples)
	return len(samples), nil
}

func (p *Pipeline) loadCached(path string) (*models.ProposalRecord, error) {
	if p.cfg.CacheDir == "" {
		return nil, nil
	}
	return loadCached(p.cfg.CacheDir, path)
}

// extractFile reads path, extracts its fields and caches the validated record.
func (p *Pipeline) extractFile(ctx context.Context, path, id string) (*models.ProposalRecord, error) {
	if p.fields == nil {
		return nil, &models.ExtractionError{Source: path, Err: errors.New("no field extractor configured")}
	}
	doc, err := p.extractor.Extract(path)
	if err != nil {
		return nil, &models.ExtractionError{Source: path, Err: err}
	}
	p.logger.Debug("document loaded", zap.String("path", path), zap.Int("chars", len(doc.Text)))

	fields, err := p.fields.Extract(ctx, path, doc.Text)
	if err != nil {
		return nil, err
	}
	rec := fields.Record(id, VendorFromFilename(path), p.now())
	if problems := rec.Validate(filepath.Base(path)); len(problems) > 0 {
		return nil, &models.ValidationError{Problems: problems}
	}
	if p.cfg.CacheDir != "" {
		if err := saveCached(p.cfg.CacheDir, path, doc.Size, rec, p.now()); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// seedSequence moves the next sequence id past every integer id in the index and in extra.
func (p *Pipeline) seedSequence(extra []*models.ProposalRecord) {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	bump := func(id string) {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil && n >= p.nextSeq {
			p.nextSeq = n + 1
		}
	}
	for _, r := range p.index.All() {
		bump(r.ID)
	}
	for _, r := range extra {
		bump(r.ID)
	}
}

func (p *Pipeline) assignID(path string) string {
	if p.cfg.IDScheme == IDSchemePath {
		return IDForPath(path)
	}
	p.seqMu.Lock()
	defer p.seqMu.Unlock()
	id := strconv.FormatInt(p.nextSeq, 10)
	p.nextSeq++
	return id
}
