package space

import (
	"context"
	"fmt"
	"strings"

	"github.com/sattyani/ai-procurement-agent/internal/embedding"
	"github.com/sattyani/ai-procurement-agent/internal/models"
	"github.com/sattyani/ai-procurement-agent/internal/vector"
	"github.com/sattyani/ai-procurement-agent/pkg/utils"
)

// TextSpace embeds a text field with a sentence embedding model.
type TextSpace struct {
	cfg      Config
	embedder embedding.Embedder
}

// NewTextSpace returns a text space backed by emb.
func NewTextSpace(cfg Config, emb embedding.Embedder) *TextSpace {
	return &TextSpace{cfg: cfg, embedder: emb}
}

func (s *TextSpace) Name() string    { return s.cfg.Name }
func (s *TextSpace) Kind() Kind      { return KindText }
func (s *TextSpace) Field() string   { return s.cfg.Field }
func (s *TextSpace) Model() string   { return s.cfg.Model }
func (s *TextSpace) Dimensions() int { return s.embedder.Dimensions() }

// Source returns the trimmed field text.
func (s *TextSpace) Source(rec *models.ProposalRecord) string {
	v, _ := rec.TextField(s.cfg.Field)
	return strings.TrimSpace(v)
}

// CheckSource returns *models.MissingFieldError when the record's field is blank.
func (s *TextSpace) CheckSource(rec *models.ProposalRecord) error {
	if s.Source(rec) == "" {
		return &models.MissingFieldError{RecordID: rec.ID, Space: s.cfg.Name, Field: s.cfg.Field}
	}
	return nil
}

// Embed embeds the record's field text.
func (s *TextSpace) Embed(ctx context.Context, rec *models.ProposalRecord) ([]float32, error) {
	if err := s.CheckSource(rec); err != nil {
		return nil, err
	}
	return s.EmbedQuery(ctx, s.Source(rec))
}

// EmbedQuery embeds a query target the same way record text is embedded.
func (s *TextSpace) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := s.embedder.Embed(ctx, strings.TrimSpace(text))
	if err != nil {
		return nil, err
	}
	if len(v) != s.embedder.Dimensions() {
		return nil, &models.EmbeddingServiceError{
			Model:    s.cfg.Model,
			Attempts: 1,
			Err:      fmt.Errorf("malformed response: expected %d dimensions, got %d", s.embedder.Dimensions(), len(v)),
		}
	}
	out := make([]float32, len(v))
	copy(out, v)
	utils.NormalizeL2(out)
	return out, nil
}

// Similarity returns the cosine similarity of two vectors mapped into [0,1].
func (s *TextSpace) Similarity(query, v []float32) float64 {
	return vector.UnitSimilarity(query, v)
}
