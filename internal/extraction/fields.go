// Package extraction turns the text of a proposal document into structured fields.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// Fields are the proposal attributes read from a document. Price is NaN when the
// document states none.
type Fields struct {
	VendorName       string  `json:"vendor_name"`
	ProjectName      string  `json:"project_name"`
	Price            float64 `json:"price"`
	DeliveryTimeline string  `json:"delivery_timeline"`
	ScopeSummary     string  `json:"scope_summary"`
	Risks            string  `json:"risks"`
}

// FieldExtractor reads Fields from document text. Failures are *models.ExtractionError.
type FieldExtractor interface {
	Extract(ctx context.Context, source, text string) (*Fields, error)
}

// UnmarshalJSON accepts price as a number, a currency string such as "$75,000" or
// "1.2M", or null.
func (f *Fields) UnmarshalJSON(data []byte) error {
	type alias Fields
	aux := struct {
		*alias
		Price json.RawMessage `json:"price"`
	}{alias: (*alias)(f)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.Price = math.NaN()
	raw := strings.TrimSpace(string(aux.Price))
	if raw == "" || raw == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(aux.Price, &n); err == nil {
		f.Price = n
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.Price, &s); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	f.Price = ParsePrice(s)
	return nil
}

// ParsePrice reads a currency amount like "$75,000", "USD 45000.50" or "1.2M".
// It returns NaN when s holds no number.
func ParsePrice(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	mult := 1.0
	var b strings.Builder
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			seenDigit = true
		case r == '.' && seenDigit:
			b.WriteRune(r)
		case r == ',':
		case seenDigit && (r == 'k' || r == 'm'):
			if r == 'k' {
				mult = 1e3
			} else {
				mult = 1e6
			}
			return parseAmount(b.String(), mult)
		case seenDigit && r != ' ':
			return parseAmount(b.String(), mult)
		}
	}
	return parseAmount(b.String(), mult)
}

func parseAmount(s string, mult float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "."), 64)
	if err != nil {
		return math.NaN()
	}
	return v * mult
}

// Record builds a proposal record from f. An empty vendor name falls back to vendor.
func (f *Fields) Record(id, vendor string, now time.Time) *models.ProposalRecord {
	name := strings.TrimSpace(f.VendorName)
	if name == "" {
		name = vendor
	}
	return &models.ProposalRecord{
		ID:               id,
		VendorName:       name,
		ProjectName:      strings.TrimSpace(f.ProjectName),
		Timestamp:        now.UTC().Format(time.RFC3339),
		Price:            f.Price,
		DeliveryTimeline: strings.TrimSpace(f.DeliveryTimeline),
		ScopeSummary:     strings.TrimSpace(f.ScopeSummary),
		Risks:            strings.TrimSpace(f.Risks),
	}
}
