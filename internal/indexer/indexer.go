// Package indexer maintains the composite index: every stored proposal together with
// exactly one vector per configured space.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
	"github.com/sattyani/ai-procurement-agent/internal/vector"
)

// CompositeIndex keeps the record store and the per-space vector stores in step.
// Readers never observe a record with a partial vector set.
type CompositeIndex struct {
	store   storage.Storage
	spaces  []space.Space
	byName  map[string]space.Space
	vectors map[string]*vector.MemoryIndex
	records map[string]*models.ProposalRecord
	order   []string

	keyword keyword.KeywordIndex
	workers int
	logger  *zap.Logger

	// writeMu orders writers so store and vectors agree; mu guards the in-memory state.
	writeMu sync.Mutex
	mu      sync.RWMutex
}

// IndexerOption configures a CompositeIndex.
type IndexerOption func(*CompositeIndex)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *CompositeIndex) { idx.logger = l }
}

// WithKeywordIndex keeps a keyword index in sync with upserts and removals.
func WithKeywordIndex(k keyword.KeywordIndex) IndexerOption {
	return func(idx *CompositeIndex) { idx.keyword = k }
}

// WithConcurrency bounds parallel embedding calls. Default 4.
func WithConcurrency(n int) IndexerOption {
	return func(idx *CompositeIndex) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// NewCompositeIndex creates an empty index over store. Call Rebuild to load existing records.
func NewCompositeIndex(store storage.Storage, spaces []space.Space, opts ...IndexerOption) (*CompositeIndex, error) {
	if len(spaces) == 0 {
		return nil, fmt.Errorf("at least one space is required")
	}
	idx := &CompositeIndex{
		store:   store,
		spaces:  spaces,
		byName:  make(map[string]space.Space, len(spaces)),
		vectors: make(map[string]*vector.MemoryIndex, len(spaces)),
		records: make(map[string]*models.ProposalRecord),
		workers: 4,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	for _, sp := range spaces {
		if _, dup := idx.byName[sp.Name()]; dup {
			return nil, fmt.Errorf("duplicate space name %q", sp.Name())
		}
		vi, err := vector.NewMemoryIndex(sp.Dimensions())
		if err != nil {
			return nil, fmt.Errorf("space %q: %w", sp.Name(), err)
		}
		idx.byName[sp.Name()] = sp
		idx.vectors[sp.Name()] = vi
	}
	return idx, nil
}

// Spaces returns the configured spaces in order.
func (idx *CompositeIndex) Spaces() []space.Space {
	return idx.spaces
}

// Space returns the space with the given name.
func (idx *CompositeIndex) Space(name string) (space.Space, bool) {
	sp, ok := idx.byName[name]
	return sp, ok
}

// Upsert validates the batch, computes every record's vectors, and then writes the
// records to the store and swaps their vector sets in. Nothing is written when
// validation, a source field check or an embedding call fails.
func (idx *CompositeIndex) Upsert(ctx context.Context, records []*models.ProposalRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := models.ValidateBatch(records); err != nil {
		return err
	}
	batch := models.DedupeBatch(records)
	if err := idx.checkSources(batch); err != nil {
		return err
	}
	vecs, err := idx.embed(ctx, batch)
	if err != nil {
		return err
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.store.PutProposals(ctx, batch); err != nil {
		return fmt.Errorf("failed to store proposals: %w", err)
	}
	idx.mu.Lock()
	idx.apply(batch, vecs)
	n := len(idx.records)
	idx.mu.Unlock()
	metrics.IndexedProposals.Set(float64(n))

	if idx.keyword != nil {
		if err := idx.keyword.Index(ctx, batch...); err != nil {
			idx.logger.Warn("keyword index update failed", zap.Error(err))
		}
	}
	idx.logger.Debug("proposals indexed", zap.Int("count", len(batch)))
	return nil
}

// checkSources reports every record missing a source field, joined into one error.
func (idx *CompositeIndex) checkSources(batch []*models.ProposalRecord) error {
	var errs []error
	for _, rec := range batch {
		for _, sp := range idx.spaces {
			if err := sp.CheckSource(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// embed computes vecs[record][space] with bounded concurrency. No lock is held.
func (idx *CompositeIndex) embed(ctx context.Context, batch []*models.ProposalRecord) ([][][]float32, error) {
	vecs := make([][][]float32, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, rec := range batch {
		vecs[i] = make([][]float32, len(idx.spaces))
		for j, sp := range idx.spaces {
			g.Go(func() error {
				v, err := embedOne(gctx, sp, rec)
				vecs[i][j] = v
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

// embedOne embeds rec in sp. Failures other than a missing field surface as
// *models.EmbeddingServiceError.
func embedOne(ctx context.Context, sp space.Space, rec *models.ProposalRecord) ([]float32, error) {
	v, err := sp.Embed(ctx, rec)
	if err != nil {
		var mf *models.MissingFieldError
		var svc *models.EmbeddingServiceError
		if errors.As(err, &mf) || errors.As(err, &svc) {
			return nil, err
		}
		return nil, &models.EmbeddingServiceError{Model: sp.Model(), Attempts: 1, Err: err}
	}
	if len(v) != sp.Dimensions() {
		return nil, &models.EmbeddingServiceError{
			Model:    sp.Model(),
			Attempts: 1,
			Err:      fmt.Errorf("malformed response: expected %d dimensions, got %d", sp.Dimensions(), len(v)),
		}
	}
	return v, nil
}

// apply swaps in records and vectors. Callers hold mu; dimensions were checked in embed.
func (idx *CompositeIndex) apply(batch []*models.ProposalRecord, vecs [][][]float32) {
	for i, rec := range batch {
		for j, sp := range idx.spaces {
			_ = idx.vectors[sp.Name()].Upsert(rec.ID, vecs[i][j])
		}
		if _, ok := idx.records[rec.ID]; !ok {
			idx.order = append(idx.order, rec.ID)
		}
		idx.records[rec.ID] = rec.Clone()
	}
}

// Remove deletes a proposal from the store and drops all of its vectors.
func (idx *CompositeIndex) Remove(ctx context.Context, id string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	if err := idx.store.DeleteProposal(ctx, id); err != nil {
		return err
	}

	idx.mu.Lock()
	for _, vi := range idx.vectors {
		vi.Remove(id)
	}
	delete(idx.records, id)
	for i, oid := range idx.order {
		if oid == id {
			idx.order = append(idx.order[:i], idx.order[i+1:]...)
			break
		}
	}
	n := len(idx.records)
	idx.mu.Unlock()
	metrics.IndexedProposals.Set(float64(n))

	if idx.keyword != nil {
		if err := idx.keyword.Delete(ctx, id); err != nil {
			idx.logger.Warn("keyword index delete failed", zap.String("id", id), zap.Error(err))
		}
	}
	idx.logger.Debug("proposal removed", zap.String("id", id))
	return nil
}

// Get returns a copy of the indexed record.
func (idx *CompositeIndex) Get(id string) (*models.ProposalRecord, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	r, ok := idx.records[id]
	if !ok {
		return nil, fmt.Errorf("proposal %s: %w", id, models.ErrNotFound)
	}
	return r.Clone(), nil
}

// All returns copies of every record in insertion order.
func (idx *CompositeIndex) All() []*models.ProposalRecord {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]*models.ProposalRecord, 0, len(idx.order))
	for _, id := range idx.order {
		out = append(out, idx.records[id].Clone())
	}
	return out
}

// Len returns the number of indexed records.
func (idx *CompositeIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// Vector returns the stored vector of a record in a space.
func (idx *CompositeIndex) Vector(spaceName, id string) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	vi, ok := idx.vectors[spaceName]
	if !ok {
		return nil, false
	}
	return vi.Get(id)
}

// ScoredRecord is one record with its raw similarity in each active space.
type ScoredRecord struct {
	Record *models.ProposalRecord
	Scores map[string]float64
}

// Scores computes, by exact linear scan, the raw similarity of every record in every
// active space. targets holds the embedded query for each active text space; numeric
// spaces need no target and score the record's stored preference directly.
func (idx *CompositeIndex) Scores(targets map[string][]float32, active []string) ([]ScoredRecord, error) {
	scorers := make([]func([]float32) float64, len(active))
	for i, name := range active {
		sp, ok := idx.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown space %q", name)
		}
		score, err := scorerFor(sp, targets[name])
		if err != nil {
			return nil, err
		}
		scorers[i] = score
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]ScoredRecord, 0, len(idx.order))
	for _, id := range idx.order {
		scores := make(map[string]float64, len(active))
		for i, name := range active {
			v, _ := idx.vectors[name].Get(id)
			scores[name] = scorers[i](v)
		}
		out = append(out, ScoredRecord{Record: idx.records[id].Clone(), Scores: scores})
	}
	return out, nil
}

// scorerFor returns the raw similarity function of sp against target.
func scorerFor(sp space.Space, target []float32) (func([]float32) float64, error) {
	switch sp := sp.(type) {
	case *space.TextSpace:
		if target == nil {
			return nil, fmt.Errorf("space %q has no query target", sp.Name())
		}
		return func(v []float32) float64 { return sp.Similarity(target, v) }, nil
	case *space.NumberSpace:
		return sp.Score, nil
	default:
		return nil, fmt.Errorf("space %q of kind %q cannot be scored", sp.Name(), sp.Kind())
	}
}
