package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sattyani/ai-procurement-agent/internal/metrics"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
	"github.com/sattyani/ai-procurement-agent/internal/vector"
)

const (
	manifestFile    = "manifest.json"
	manifestVersion = 1
)

// manifest records what produced each space's vector file, so a restart can reuse
// vectors whose source text and model are unchanged.
type manifest struct {
	Version int                      `json:"version"`
	Spaces  map[string]spaceManifest `json:"spaces"`
}

type spaceManifest struct {
	Model        string            `json:"model"`
	Dimensions   int               `json:"dimensions"`
	Fingerprints map[string]string `json:"fingerprints"`
}

// fingerprint identifies the input of a vector.
func fingerprint(sp space.Space, rec *models.ProposalRecord) string {
	sum := sha256.Sum256([]byte(sp.Model() + "\x00" + sp.Source(rec)))
	return hex.EncodeToString(sum[:])
}

func vectorFile(dir, spaceName string) string {
	return filepath.Join(dir, spaceName+".vec")
}

// SaveSnapshot writes one vector file per space and a manifest to dir.
func (idx *CompositeIndex) SaveSnapshot(dir string) error {
	if dir == "" {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	m := manifest{Version: manifestVersion, Spaces: make(map[string]spaceManifest, len(idx.spaces))}
	for _, sp := range idx.spaces {
		if err := idx.vectors[sp.Name()].Save(vectorFile(dir, sp.Name())); err != nil {
			return fmt.Errorf("failed to save space %q: %w", sp.Name(), err)
		}
		fps := make(map[string]string, len(idx.records))
		for id, rec := range idx.records {
			fps[id] = fingerprint(sp, rec)
		}
		m.Spaces[sp.Name()] = spaceManifest{Model: sp.Model(), Dimensions: sp.Dimensions(), Fingerprints: fps}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := filepath.Join(dir, manifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, manifestFile)); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	idx.logger.Debug("snapshot saved", zap.String("dir", dir), zap.Int("records", len(idx.records)))
	return nil
}

// loadSnapshot returns the reusable vectors per space. Spaces whose model or
// dimensions changed are left out. A missing snapshot yields an empty map.
func (idx *CompositeIndex) loadSnapshot(dir string) map[string]snapshotSpace {
	out := make(map[string]snapshotSpace)
	if dir == "" {
		return out
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			idx.logger.Warn("snapshot manifest unreadable", zap.Error(err))
		}
		return out
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil || m.Version != manifestVersion {
		idx.logger.Warn("snapshot manifest ignored", zap.Error(err), zap.Int("version", m.Version))
		return out
	}
	for _, sp := range idx.spaces {
		sm, ok := m.Spaces[sp.Name()]
		if !ok || sm.Model != sp.Model() || sm.Dimensions != sp.Dimensions() {
			continue
		}
		vi, err := vector.NewMemoryIndex(sp.Dimensions())
		if err != nil {
			continue
		}
		if err := vi.Load(vectorFile(dir, sp.Name())); err != nil {
			idx.logger.Warn("snapshot vectors ignored", zap.String("space", sp.Name()), zap.Error(err))
			continue
		}
		out[sp.Name()] = snapshotSpace{vectors: vi, fingerprints: sm.Fingerprints}
	}
	return out
}

type snapshotSpace struct {
	vectors      *vector.MemoryIndex
	fingerprints map[string]string
}

// Rebuild replaces the in-memory state with every record in the store. Vectors from
// the snapshot in dir are reused when their fingerprint matches; the rest are embedded.
func (idx *CompositeIndex) Rebuild(ctx context.Context, snapshotDir string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	records, err := idx.store.ListProposals(ctx)
	if err != nil {
		return fmt.Errorf("failed to list proposals: %w", err)
	}
	if err := idx.checkSources(records); err != nil {
		return fmt.Errorf("stored proposals cannot be indexed: %w", err)
	}
	snap := idx.loadSnapshot(snapshotDir)

	vecs := make([][][]float32, len(records))
	reused := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)
	for i, rec := range records {
		vecs[i] = make([][]float32, len(idx.spaces))
		for j, sp := range idx.spaces {
			if s, ok := snap[sp.Name()]; ok && s.fingerprints[rec.ID] == fingerprint(sp, rec) {
				if v, ok := s.vectors.Get(rec.ID); ok {
					vecs[i][j] = v
					reused++
					continue
				}
			}
			g.Go(func() error {
				v, err := embedOne(gctx, sp, rec)
				vecs[i][j] = v
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	for _, sp := range idx.spaces {
		idx.vectors[sp.Name()], _ = vector.NewMemoryIndex(sp.Dimensions())
	}
	idx.records = make(map[string]*models.ProposalRecord, len(records))
	idx.order = nil
	idx.apply(records, vecs)
	idx.mu.Unlock()
	metrics.IndexedProposals.Set(float64(len(records)))

	if idx.keyword != nil && len(records) > 0 {
		if err := idx.keyword.Index(ctx, records...); err != nil {
			idx.logger.Warn("keyword index rebuild failed", zap.Error(err))
		}
	}
	idx.logger.Info("index rebuilt",
		zap.Int("records", len(records)),
		zap.Int("vectors_reused", reused),
	)
	return nil
}
