package space

import (
	"context"
	"math"
	"strconv"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// NumberSpace maps a numeric field onto a preference scalar in [0,1] where higher is
// always better. It needs no query target; the query weight alone sets its influence.
type NumberSpace struct {
	cfg Config
}

// NewNumberSpace returns a bounded numeric space.
func NewNumberSpace(cfg Config) *NumberSpace {
	return &NumberSpace{cfg: cfg}
}

func (s *NumberSpace) Name() string    { return s.cfg.Name }
func (s *NumberSpace) Kind() Kind      { return KindBoundedNumeric }
func (s *NumberSpace) Field() string   { return s.cfg.Field }
func (s *NumberSpace) Dimensions() int { return 1 }

// Model encodes the bounds and mode, since changing either changes every vector.
func (s *NumberSpace) Model() string {
	return "bounded:" + strconv.FormatFloat(s.cfg.MinValue, 'g', -1, 64) + ":" +
		strconv.FormatFloat(s.cfg.MaxValue, 'g', -1, 64) + ":" + string(s.cfg.Mode)
}

// Source returns the field value formatted as text.
func (s *NumberSpace) Source(rec *models.ProposalRecord) string {
	v, _ := rec.NumericField(s.cfg.Field)
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Normalize clamps v into [min,max], scales it to [0,1] and flips it when the
// smaller value is preferred.
func (s *NumberSpace) Normalize(v float64) float64 {
	n := (v - s.cfg.MinValue) / (s.cfg.MaxValue - s.cfg.MinValue)
	n = math.Max(0, math.Min(1, n))
	if s.cfg.Mode == ModeMinimum {
		return 1 - n
	}
	return n
}

// CheckSource rejects non-finite values.
func (s *NumberSpace) CheckSource(rec *models.ProposalRecord) error {
	v, _ := rec.NumericField(s.cfg.Field)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &models.MissingFieldError{RecordID: rec.ID, Space: s.cfg.Name, Field: s.cfg.Field}
	}
	return nil
}

// Embed returns the one-dimensional vector holding the normalised scalar.
func (s *NumberSpace) Embed(_ context.Context, rec *models.ProposalRecord) ([]float32, error) {
	if err := s.CheckSource(rec); err != nil {
		return nil, err
	}
	v, _ := rec.NumericField(s.cfg.Field)
	return []float32{float32(s.Normalize(v))}, nil
}

// Score returns the stored scalar.
func (s *NumberSpace) Score(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return float64(v[0])
}
