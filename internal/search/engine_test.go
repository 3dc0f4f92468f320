package search

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sattyani/ai-procurement-agent/internal/config"
	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/indexer"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/space"
	"github.com/sattyani/ai-procurement-agent/internal/storage"
)

type failingEmbedder struct {
	embedding.Embedder
	fail bool
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return f.Embedder.Embed(ctx, text)
}

func newTestEngine(t testing.TB, records ...*models.ProposalRecord) (*Engine, *indexer.CompositeIndex, *failingEmbedder) {
	t.Helper()
	emb := &failingEmbedder{Embedder: embedding.NewHashingEmbedder("test", 1024)}
	cfgs := config.DefaultSpaces()
	spaces, err := space.Build(cfgs, func(string) (embedding.Embedder, error) { return emb, nil })
	if err != nil {
		t.Fatal(err)
	}
	idx, err := indexer.NewCompositeIndex(storage.NewMemoryStorage(), spaces)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) > 0 {
		if err := idx.Upsert(context.Background(), records); err != nil {
			t.Fatal(err)
		}
	}
	return NewEngine(idx, &config.SearchConfig{DefaultLimit: 5, MaxLimit: 100}), idx, emb
}

func rec(id string, price float64, scope, risks string) *models.ProposalRecord {
	return &models.ProposalRecord{
		ID:           id,
		VendorName:   "Vendor " + id,
		ProjectName:  "Project " + id,
		Price:        price,
		ScopeSummary: scope,
		Risks:        risks,
	}
}

func resultIDs(resp *models.SearchResponse) []string {
	out := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		out[i] = r.Proposal.ID
	}
	return out
}

func TestEngine_ScopeQueryRanksRelatedFirst(t *testing.T) {
	engine, _, _ := newTestEngine(t,
		rec("1", 10000, "mobile app with offline sync", "sync conflicts"),
		rec("2", 10000, "cloud migration to AWS", "downtime"),
		rec("3", 10000, "mobile game development", "store approval"),
	)
	resp, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{
		ScopeQuery: "mobile app", ScopeWeight: 1, Limit: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Proposal.ID == "2" {
			t.Errorf("cloud migration should rank below both mobile records, got %v", resultIDs(resp))
		}
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if resp.Results[0].Rank != 1 || resp.Results[1].Rank != 2 {
		t.Errorf("ranks = %d, %d", resp.Results[0].Rank, resp.Results[1].Rank)
	}
}

func TestEngine_PriceOnlyQuery(t *testing.T) {
	engine, _, _ := newTestEngine(t,
		rec("1", 50000, "website", "none"),
		rec("2", 150000, "website", "none"),
	)
	resp, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{PriceWeight: 1, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultIDs(resp); len(got) != 2 || got[0] != "2" {
		t.Fatalf("order = %v, want 150000 record first", got)
	}
	if s := resp.Results[0].SpaceScores[models.SpacePrice]; s < 0.149 || s > 0.151 {
		t.Errorf("price score = %f, want 0.15", s)
	}

	// A negative weight inverts the preference.
	resp, err = engine.ExecuteSpec(context.Background(), models.QuerySpec{PriceWeight: -1, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Proposal.ID != "1" {
		t.Errorf("negative weight should rank the cheaper record first, got %v", resultIDs(resp))
	}
}

func TestEngine_InvalidQueries(t *testing.T) {
	engine, _, _ := newTestEngine(t, rec("1", 1000, "website", "none"))
	tests := []struct {
		name  string
		query models.Query
	}{
		{"zero limit", models.QuerySpec{ScopeQuery: "x", ScopeWeight: 1, Limit: 0}.Query()},
		{"negative limit", models.QuerySpec{PriceWeight: 1, Limit: -3}.Query()},
		{"all weights zero", models.QuerySpec{ScopeQuery: "website", Limit: 5}.Query()},
		{"no weights", models.Query{Limit: 5}},
		{"active text space without target", models.QuerySpec{RisksWeight: 1, Limit: 5}.Query()},
		{"blank target", models.QuerySpec{ScopeQuery: "   ", ScopeWeight: 1, Limit: 5}.Query()},
		{"unknown space", models.Query{Weights: map[string]float64{"color": 1}, Limit: 5}},
		{"infinite weight", models.Query{Weights: map[string]float64{models.SpacePrice: math.Inf(1)}, Limit: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := engine.Execute(context.Background(), tt.query)
			var invalid *models.InvalidQueryError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected *InvalidQueryError, got %v", err)
			}
			if resp != nil {
				t.Error("invalid query must not return partial results")
			}
		})
	}
}

func TestEngine_ZeroWeightNeutrality(t *testing.T) {
	engine, _, _ := newTestEngine(t,
		rec("1", 20000, "mobile app", "timeline slip"),
		rec("2", 90000, "data warehouse", "vendor lock-in"),
		rec("3", 50000, "mobile banking app", "security audit"),
	)
	ctx := context.Background()
	base, err := engine.Execute(ctx, models.Query{
		Targets: map[string]string{models.SpaceScope: "mobile app"},
		Weights: map[string]float64{models.SpaceScope: 1, models.SpacePrice: 0.5},
		Limit:   3,
	})
	if err != nil {
		t.Fatal(err)
	}
	withZero, err := engine.Execute(ctx, models.Query{
		Targets: map[string]string{models.SpaceScope: "mobile app", models.SpaceRisks: "security"},
		Weights: map[string]float64{models.SpaceScope: 1, models.SpacePrice: 0.5, models.SpaceRisks: 0, "unused": 0},
		Limit:   3,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := range base.Results {
		a, b := base.Results[i], withZero.Results[i]
		if a.Proposal.ID != b.Proposal.ID || a.Score != b.Score {
			t.Fatalf("zero-weight space changed ranking: %v vs %v", resultIDs(base), resultIDs(withZero))
		}
		if _, ok := b.SpaceScores[models.SpaceRisks]; ok {
			t.Error("inactive space should not be reported")
		}
	}
}

func TestEngine_DeterministicAndInRange(t *testing.T) {
	engine, _, _ := newTestEngine(t,
		rec("1", 20000, "mobile app", "timeline slip"),
		rec("2", 2_000_000, "data warehouse", "vendor lock-in"),
		rec("3", 50000, "mobile banking app", "security audit"),
	)
	spec := models.QuerySpec{ScopeQuery: "mobile", RisksQuery: "security", ScopeWeight: 1, PriceWeight: 1, RisksWeight: 1, Limit: 10}
	first, err := engine.ExecuteSpec(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.ExecuteSpec(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Results {
		if first.Results[i].Proposal.ID != second.Results[i].Proposal.ID || first.Results[i].Score != second.Results[i].Score {
			t.Fatal("repeated query produced a different ranking")
		}
		for name, s := range first.Results[i].SpaceScores {
			if s < 0 || s > 1 {
				t.Errorf("space %s score %f out of [0,1]", name, s)
			}
		}
	}
	for _, r := range first.Results {
		if r.Proposal.ID == "2" && r.SpaceScores[models.SpacePrice] != 1 {
			t.Errorf("price above max_value should clamp to 1, got %f", r.SpaceScores[models.SpacePrice])
		}
	}
}

func TestEngine_TiesBreakByID(t *testing.T) {
	engine, _, _ := newTestEngine(t,
		rec("10", 5000, "same scope", "same risk"),
		rec("2", 5000, "same scope", "same risk"),
		rec("7", 5000, "same scope", "same risk"),
	)
	resp, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{ScopeQuery: "same scope", ScopeWeight: 1, PriceWeight: 1, Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	got := resultIDs(resp)
	if got[0] != "2" || got[1] != "7" || got[2] != "10" {
		t.Errorf("order = %v, want [2 7 10]", got)
	}
}

func TestEngine_UpsertOverwriteReflected(t *testing.T) {
	engine, idx, _ := newTestEngine(t,
		rec("1", 10000, "website", "none"),
		rec("2", 20000, "website", "none"),
	)
	ctx := context.Background()
	spec := models.QuerySpec{PriceWeight: 1, Limit: 1}
	resp, err := engine.ExecuteSpec(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Proposal.ID != "2" {
		t.Fatalf("before overwrite: %v", resultIDs(resp))
	}
	if err := idx.Upsert(ctx, []*models.ProposalRecord{rec("1", 30000, "website", "none")}); err != nil {
		t.Fatal(err)
	}
	resp, err = engine.ExecuteSpec(ctx, spec)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[0].Proposal.ID != "1" || resp.Results[0].Proposal.Price != 30000 {
		t.Errorf("after overwrite: %+v", resp.Results[0].Proposal)
	}
	if resp.Total != 2 {
		t.Errorf("overwrite must not append, Total = %d", resp.Total)
	}
}

func TestEngine_LimitBounds(t *testing.T) {
	engine, _, _ := newTestEngine(t, rec("1", 1, "a", "b"), rec("2", 2, "c", "d"))
	engine.config.MaxLimit = 1
	resp, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{PriceWeight: 1, Limit: 50})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("expected limit clamped to 1, got %d", len(resp.Results))
	}

	empty, _, _ := newTestEngine(t)
	resp, err = empty.ExecuteSpec(context.Background(), models.QuerySpec{PriceWeight: 1, Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Errorf("empty index should return no results, got %+v", resp)
	}
}

func TestEngine_EmbeddingFailure(t *testing.T) {
	engine, _, emb := newTestEngine(t, rec("1", 1000, "website", "none"))
	emb.fail = true
	resp, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{ScopeQuery: "website", ScopeWeight: 1, Limit: 5})
	var svc *models.EmbeddingServiceError
	if !errors.As(err, &svc) {
		t.Fatalf("expected *EmbeddingServiceError, got %v", err)
	}
	if resp != nil {
		t.Error("failed query must not return partial results")
	}

	// Numeric-only queries need no embedding call.
	if _, err := engine.ExecuteSpec(context.Background(), models.QuerySpec{PriceWeight: 1, Limit: 5}); err != nil {
		t.Errorf("price-only query should not embed: %v", err)
	}
}
