package indexer

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/keyword"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
)

const testDims = 64

type countingEmbedder struct {
	embedding.Embedder
	calls atomic.Int64
	fail  error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	return e.Embedder.Embed(ctx, text)
}

func newTestSpaces(t *testing.T, emb embedding.Embedder) []space.Space {
	t.Helper()
	spaces, err := space.Build([]space.Config{
		{Name: models.SpaceScope, Field: models.FieldScopeSummary, Kind: space.KindText, Model: "test"},
		{Name: models.SpacePrice, Field: models.FieldPrice, Kind: space.KindBoundedNumeric, MaxValue: 100_000, Mode: space.ModeMaximum},
		{Name: models.SpaceRisks, Field: models.FieldRisks, Kind: space.KindText, Model: "test"},
	}, func(string) (embedding.Embedder, error) { return emb, nil })
	require.NoError(t, err)
	return spaces
}

func newTestIndex(t *testing.T, opts ...IndexerOption) (*CompositeIndex, *countingEmbedder, storage.Storage) {
	t.Helper()
	emb := &countingEmbedder{Embedder: embedding.NewHashingEmbedder("test", testDims)}
	store := storage.NewMemoryStorage()
	idx, err := NewCompositeIndex(store, newTestSpaces(t, emb), opts...)
	require.NoError(t, err)
	return idx, emb, store
}

func proposal(id, vendor string, price float64, scope, risks string) *models.ProposalRecord {
	return &models.ProposalRecord{
		ID:           id,
		VendorName:   vendor,
		ProjectName:  vendor + " project",
		Price:        price,
		ScopeSummary: scope,
		Risks:        risks,
	}
}

func TestCompositeIndex_UpsertGet(t *testing.T) {
	idx, _, store := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 75000, "mobile app", "timeline"),
		proposal("2", "DataWise", 50000, "analytics platform", "integration"),
	}))
	assert.Equal(t, 2, idx.Len())

	got, err := idx.Get("2")
	require.NoError(t, err)
	assert.Equal(t, "DataWise", got.VendorName)

	for _, sp := range idx.Spaces() {
		v, ok := idx.Vector(sp.Name(), "1")
		require.True(t, ok, "space %s", sp.Name())
		assert.Len(t, v, sp.Dimensions())
	}
	price, _ := idx.Vector(models.SpacePrice, "1")
	assert.InDelta(t, 0.75, price[0], 1e-6)

	n, err := store.CountProposals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = idx.Get("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCompositeIndex_UpsertOverwriteKeepsPosition(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 10000, "mobile app", "timeline"),
		proposal("2", "Beta", 20000, "website", "scope creep"),
	}))
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 90000, "mobile app", "timeline"),
	}))

	all := idx.All()
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, 90000.0, all[0].Price)
	price, _ := idx.Vector(models.SpacePrice, "1")
	assert.InDelta(t, 0.9, price[0], 1e-6)
}

func TestCompositeIndex_UpsertRejectsWholeBatch(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		idx, emb, _ := newTestIndex(t)
		err := idx.Upsert(context.Background(), []*models.ProposalRecord{
			proposal("1", "Acme", 1000, "app", "none"),
			proposal("2", "Beta", -5, "site", "none"),
		})
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, []string{"2"}, verr.RecordIDs())
		assert.Zero(t, idx.Len())
		assert.Zero(t, emb.calls.Load())
	})

	t.Run("missing field", func(t *testing.T) {
		idx, _, store := newTestIndex(t)
		err := idx.Upsert(context.Background(), []*models.ProposalRecord{
			proposal("1", "Acme", 1000, "app", "none"),
			proposal("2", "Beta", 2000, "site", "  "),
		})
		var mf *models.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, "2", mf.RecordID)
		assert.Equal(t, models.FieldRisks, mf.Field)
		assert.Zero(t, idx.Len())
		n, _ := store.CountProposals(context.Background())
		assert.Zero(t, n)
	})

	t.Run("embedding failure", func(t *testing.T) {
		ctx := context.Background()
		idx, emb, store := newTestIndex(t)
		require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
			proposal("1", "Acme", 10_000, "mobile app", "timeline"),
		}))
		before, ok := idx.Vector(models.SpaceScope, "1")
		require.True(t, ok)

		emb.fail = errors.New("service unavailable")
		err := idx.Upsert(ctx, []*models.ProposalRecord{
			proposal("1", "Acme", 90_000, "cloud migration", "vendor lock-in"),
			proposal("2", "Beta", 20_000, "website", "none"),
		})
		var svc *models.EmbeddingServiceError
		require.ErrorAs(t, err, &svc)

		assert.Equal(t, 1, idx.Len())
		rec, err := idx.Get("1")
		require.NoError(t, err)
		assert.Equal(t, 10_000.0, rec.Price)
		assert.Equal(t, "mobile app", rec.ScopeSummary)
		after, _ := idx.Vector(models.SpaceScope, "1")
		assert.Equal(t, before, after)
		_, ok = idx.Vector(models.SpaceScope, "2")
		assert.False(t, ok)

		scored, err := idx.Scores(nil, []string{models.SpacePrice})
		require.NoError(t, err)
		require.Len(t, scored, 1)
		assert.InDelta(t, 0.1, scored[0].Scores[models.SpacePrice], 1e-9)

		stored, err := store.GetProposal(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, 10_000.0, stored.Price)
		n, _ := store.CountProposals(ctx)
		assert.EqualValues(t, 1, n)
	})
}

func TestCompositeIndex_UpsertEmpty(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	assert.NoError(t, idx.Upsert(context.Background(), nil))
	assert.Zero(t, idx.Len())
}

func TestCompositeIndex_Remove(t *testing.T) {
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	defer kw.Close()

	idx, _, store := newTestIndex(t, WithKeywordIndex(kw))
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 1000, "mobile app", "timeline"),
		proposal("2", "Beta", 2000, "website", "budget"),
	}))
	count, _ := kw.DocCount()
	assert.EqualValues(t, 2, count)

	require.NoError(t, idx.Remove(ctx, "1"))
	assert.Equal(t, 1, idx.Len())
	for _, sp := range idx.Spaces() {
		_, ok := idx.Vector(sp.Name(), "1")
		assert.False(t, ok)
	}
	_, err = store.GetProposal(ctx, "1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	count, _ = kw.DocCount()
	assert.EqualValues(t, 1, count)

	assert.ErrorIs(t, idx.Remove(ctx, "1"), models.ErrNotFound)
}

func TestCompositeIndex_Scores(t *testing.T) {
	idx, _, _ := newTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 100_000, "mobile app", "timeline"),
		proposal("2", "Beta", 0, "website", "budget"),
	}))

	scored, err := idx.Scores(nil, []string{models.SpacePrice})
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.InDelta(t, 1.0, scored[0].Scores[models.SpacePrice], 1e-9)
	assert.InDelta(t, 0.0, scored[1].Scores[models.SpacePrice], 1e-9)

	sp, ok := idx.Space(models.SpaceScope)
	require.True(t, ok)
	q, err := sp.(*space.TextSpace).EmbedQuery(ctx, "mobile app")
	require.NoError(t, err)
	scored, err = idx.Scores(map[string][]float32{models.SpaceScope: q}, []string{models.SpaceScope})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, scored[0].Scores[models.SpaceScope], 1e-5)
	assert.Less(t, scored[1].Scores[models.SpaceScope], scored[0].Scores[models.SpaceScope])

	_, err = idx.Scores(nil, []string{models.SpaceScope})
	assert.Error(t, err, "text space without target")
	_, err = idx.Scores(nil, []string{"color"})
	assert.Error(t, err)
}

func TestCompositeIndex_ScoresRejectsUnknownSpaceKind(t *testing.T) {
	emb := embedding.NewHashingEmbedder("test", testDims)
	spaces := newTestSpaces(t, emb)
	idx, err := NewCompositeIndex(storage.NewMemoryStorage(), []space.Space{opaqueSpace{spaces[1]}})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), []*models.ProposalRecord{
		proposal("1", "Acme", 1000, "app", "none"),
	}))
	_, err = idx.Scores(nil, []string{models.SpacePrice})
	assert.ErrorContains(t, err, "cannot be scored")
}

// opaqueSpace hides the concrete space type from the index.
type opaqueSpace struct{ space.Space }

// Readers must always see a record together with the vectors derived from it.
func TestCompositeIndex_ConcurrentReadsSeeWholeRecords(t *testing.T) {
	ctx := context.Background()
	idx, _, _ := newTestIndex(t, WithConcurrency(4))
	versions := [2]func(id string) *models.ProposalRecord{
		func(id string) *models.ProposalRecord {
			return proposal(id, "Acme", 10_000, "mobile app", "timeline")
		},
		func(id string) *models.ProposalRecord {
			return proposal(id, "Acme", 90_000, "cloud migration", "vendor lock-in")
		},
	}
	ids := []string{"1", "2", "3", "4", "5"}
	batch := func(v int) []*models.ProposalRecord {
		out := make([]*models.ProposalRecord, len(ids))
		for i, id := range ids {
			out[i] = versions[v](id)
		}
		return out
	}
	require.NoError(t, idx.Upsert(ctx, batch(0)))

	sp, _ := idx.Space(models.SpaceScope)
	target, err := sp.(*space.TextSpace).EmbedQuery(ctx, "mobile app")
	require.NoError(t, err)
	targets := map[string][]float32{models.SpaceScope: target}
	active := []string{models.SpaceScope, models.SpacePrice}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				scored, err := idx.Scores(targets, active)
				if !assert.NoError(t, err) {
					return
				}
				for _, s := range scored {
					mobile := s.Record.ScopeSummary == "mobile app"
					assert.Equal(t, mobile, s.Record.Price == 10_000, "record %s fields mixed", s.Record.ID)
					assert.InDelta(t, s.Record.Price/100_000, s.Scores[models.SpacePrice], 1e-9, "record %s", s.Record.ID)
					assert.Equal(t, mobile, s.Scores[models.SpaceScope] > 0.99, "record %s scope vector stale", s.Record.ID)
				}
				for _, rec := range idx.All() {
					assert.Equal(t, rec.ScopeSummary == "mobile app", rec.Price == 10_000)
				}
			}
		}()
	}
	for i := 1; i <= 50; i++ {
		require.NoError(t, idx.Upsert(ctx, batch(i%2)))
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, len(ids), idx.Len())
}

func TestCompositeIndex_SnapshotRebuild(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, _, store := newTestIndex(t)
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 1000, "mobile app", "timeline"),
		proposal("2", "Beta", 2000, "website", "budget"),
	}))
	require.NoError(t, idx.SaveSnapshot(dir))

	// Change one record behind the index's back; only its scope vector must be recomputed.
	changed := proposal("2", "Beta", 2000, "ecommerce website", "budget")
	require.NoError(t, store.PutProposals(ctx, []*models.ProposalRecord{changed}))

	emb := &countingEmbedder{Embedder: embedding.NewHashingEmbedder("test", testDims)}
	restarted, err := NewCompositeIndex(store, newTestSpaces(t, emb))
	require.NoError(t, err)
	require.NoError(t, restarted.Rebuild(ctx, dir))

	assert.Equal(t, 2, restarted.Len())
	assert.EqualValues(t, 1, emb.calls.Load())
	assert.Equal(t, []string{"1", "2"}, []string{restarted.All()[0].ID, restarted.All()[1].ID})

	want, err := emb.Embedder.Embed(ctx, "ecommerce website")
	require.NoError(t, err)
	got, _ := restarted.Vector(models.SpaceScope, "2")
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestCompositeIndex_RebuildIgnoresCorruptVectors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	idx, _, store := newTestIndex(t)
	require.NoError(t, idx.Upsert(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 1000, "mobile app", "timeline"),
		proposal("2", "Beta", 2000, "website", "budget"),
	}))
	require.NoError(t, idx.SaveSnapshot(dir))
	require.NoError(t, os.WriteFile(vectorFile(dir, models.SpaceScope), []byte("not a snapshot file"), 0644))

	emb := &countingEmbedder{Embedder: embedding.NewHashingEmbedder("test", testDims)}
	restarted, err := NewCompositeIndex(store, newTestSpaces(t, emb))
	require.NoError(t, err)
	require.NoError(t, restarted.Rebuild(ctx, dir))

	// Both scope vectors are recomputed; risks vectors come from the snapshot.
	assert.EqualValues(t, 2, emb.calls.Load())
	_, ok := restarted.Vector(models.SpaceScope, "1")
	assert.True(t, ok)
}

func TestCompositeIndex_RebuildWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.PutProposals(ctx, []*models.ProposalRecord{
		proposal("1", "Acme", 1000, "mobile app", "timeline"),
	}))
	emb := &countingEmbedder{Embedder: embedding.NewHashingEmbedder("test", testDims)}
	idx, err := NewCompositeIndex(store, newTestSpaces(t, emb))
	require.NoError(t, err)
	require.NoError(t, idx.Rebuild(ctx, t.TempDir()))
	assert.Equal(t, 1, idx.Len())
	assert.EqualValues(t, 2, emb.calls.Load())
}

func TestNewCompositeIndex_Errors(t *testing.T) {
	_, err := NewCompositeIndex(storage.NewMemoryStorage(), nil)
	assert.Error(t, err)

	emb := embedding.NewHashingEmbedder("test", testDims)
	dup := []space.Space{
		space.NewTextSpace(space.Config{Name: "a", Field: models.FieldRisks, Kind: space.KindText}, emb),
		space.NewTextSpace(space.Config{Name: "a", Field: models.FieldScopeSummary, Kind: space.KindText}, emb),
	}
	_, err = NewCompositeIndex(storage.NewMemoryStorage(), dup)
	assert.Error(t, err)
}
