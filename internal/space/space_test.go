package space

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/models"
)

func hashingResolver(dims int) EmbedderResolver {
	return func(model string) (embedding.Embedder, error) {
		return embedding.NewHashingEmbedder(model, dims), nil
	}
}

func priceConfig(mode Mode) Config {
	return Config{Name: "price", Field: models.FieldPrice, Kind: KindBoundedNumeric, MinValue: 0, MaxValue: 1_000_000, Mode: mode}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"text ok", Config{Name: "scope", Field: models.FieldScopeSummary, Kind: KindText}, false},
		{"numeric ok", priceConfig(ModeMinimum), false},
		{"no name", Config{Field: models.FieldRisks, Kind: KindText}, true},
		{"text on numeric field", Config{Name: "x", Field: models.FieldPrice, Kind: KindText}, true},
		{"numeric on text field", Config{Name: "x", Field: models.FieldRisks, Kind: KindBoundedNumeric, MaxValue: 1, Mode: ModeMaximum}, true},
		{"unknown field", Config{Name: "x", Field: "budget", Kind: KindText}, true},
		{"equal bounds", Config{Name: "x", Field: models.FieldPrice, Kind: KindBoundedNumeric, MinValue: 5, MaxValue: 5, Mode: ModeMaximum}, true},
		{"bad mode", Config{Name: "x", Field: models.FieldPrice, Kind: KindBoundedNumeric, MaxValue: 5, Mode: "middle"}, true},
		{"unknown kind", Config{Name: "x", Field: models.FieldRisks, Kind: "image"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() = %v", err)
		})
	}
}

func TestBuild(t *testing.T) {
	spaces, err := Build([]Config{
		{Name: "scope", Field: models.FieldScopeSummary, Kind: KindText, Model: "m"},
		priceConfig(ModeMaximum),
	}, hashingResolver(64))
	require.NoError(t, err)
	require.Len(t, spaces, 2)
	assert.Equal(t, "scope", spaces[0].Name())
	assert.Equal(t, 64, spaces[0].Dimensions())
	assert.Equal(t, KindBoundedNumeric, spaces[1].Kind())
	assert.Equal(t, 1, spaces[1].Dimensions())

	_, err = Build([]Config{priceConfig(ModeMaximum), priceConfig(ModeMinimum)}, hashingResolver(8))
	assert.Error(t, err, "duplicate names must be rejected")

	_, err = Build(nil, hashingResolver(8))
	assert.Error(t, err)

	_, err = Build([]Config{{Name: "scope", Field: models.FieldScopeSummary, Kind: KindText}},
		func(string) (embedding.Embedder, error) { return nil, errors.New("no model") })
	assert.Error(t, err)
}

func TestNumberSpace_RangeAndMonotonicity(t *testing.T) {
	preferMax := NewNumberSpace(priceConfig(ModeMaximum))
	preferMin := NewNumberSpace(priceConfig(ModeMinimum))

	values := []float64{-500, 0, 1, 50_000, 150_000, 999_999, 1_000_000, 5_000_000}
	prevMax, prevMin := -1.0, 2.0
	for _, v := range values {
		nMax, nMin := preferMax.Normalize(v), preferMin.Normalize(v)
		assert.GreaterOrEqual(t, nMax, 0.0)
		assert.LessOrEqual(t, nMax, 1.0)
		assert.GreaterOrEqual(t, nMax, prevMax, "prefer-maximum must be non-decreasing at %v", v)
		assert.LessOrEqual(t, nMin, prevMin, "prefer-minimum must be non-increasing at %v", v)
		assert.InDelta(t, 1.0, nMax+nMin, 1e-12)
		prevMax, prevMin = nMax, nMin
	}
	assert.Equal(t, 0.0, preferMax.Normalize(-1), "below min clamps to 0")
	assert.Equal(t, 1.0, preferMax.Normalize(2e6), "above max clamps to 1")
	assert.InDelta(t, 0.15, preferMax.Normalize(150_000), 1e-12)
}

func TestNumberSpace_Embed(t *testing.T) {
	s := NewNumberSpace(priceConfig(ModeMaximum))
	v, err := s.Embed(context.Background(), &models.ProposalRecord{ID: "1", Price: 250_000})
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.InDelta(t, 0.25, s.Score(v), 1e-6)

	_, err = s.Embed(context.Background(), &models.ProposalRecord{ID: "2", Price: math.NaN()})
	var mf *models.MissingFieldError
	assert.ErrorAs(t, err, &mf)
	assert.NotEqual(t, NewNumberSpace(priceConfig(ModeMinimum)).Model(), s.Model())
}

func TestTextSpace_Embed(t *testing.T) {
	ctx := context.Background()
	s := NewTextSpace(Config{Name: "scope", Field: models.FieldScopeSummary, Kind: KindText, Model: "m"},
		embedding.NewHashingEmbedder("m", 256))

	rec := &models.ProposalRecord{ID: "1", ScopeSummary: "mobile app with offline sync"}
	a, err := s.Embed(ctx, rec)
	require.NoError(t, err)
	b, err := s.Embed(ctx, rec.Clone())
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical text must embed identically")

	q, err := s.EmbedQuery(ctx, "mobile app")
	require.NoError(t, err)
	sim := s.Similarity(q, a)
	assert.GreaterOrEqual(t, sim, 0.0)
	assert.LessOrEqual(t, sim, 1.0)
	assert.InDelta(t, 1.0, s.Similarity(a, b), 1e-6)

	_, err = s.Embed(ctx, &models.ProposalRecord{ID: "9", ScopeSummary: "   "})
	var mf *models.MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Equal(t, "9", mf.RecordID)
	assert.Equal(t, "scope", mf.Space)
}

type shortEmbedder struct{ embedding.Embedder }

func (shortEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1}, nil }

func TestTextSpace_MalformedEmbedding(t *testing.T) {
	s := NewTextSpace(Config{Name: "risks", Field: models.FieldRisks, Kind: KindText},
		shortEmbedder{embedding.NewHashingEmbedder("m", 8)})
	_, err := s.EmbedQuery(context.Background(), "delay")
	var svc *models.EmbeddingServiceError
	assert.ErrorAs(t, err, &svc)
}
