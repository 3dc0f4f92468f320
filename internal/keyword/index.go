// Package keyword provides full-text lookup of proposals by their descriptive fields.
package keyword

import (
	"context"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits, for vendor names typed from memory.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance (1 or 2). Default is 1.
	Fuzziness int
}

// KeywordIndex defines keyword lookup operations.
type KeywordIndex interface {
	Index(ctx context.Context, records ...*models.ProposalRecord) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}
