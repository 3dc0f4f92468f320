package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a proposal id is not present.
var ErrNotFound = errors.New("not found")

// FieldProblem is one failed check on one record.
type FieldProblem struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

func (p FieldProblem) String() string {
	return fmt.Sprintf("%s: %s %s", p.RecordID, p.Field, p.Reason)
}

// ValidationError reports records missing required fields or carrying malformed values.
// A batch that fails validation is rejected as a whole.
type ValidationError struct {
	Problems []FieldProblem `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("validation failed for record(s) %s: %s",
		strings.Join(e.RecordIDs(), ", "), strings.Join(parts, "; "))
}

// RecordIDs returns the distinct offending record ids in order of first appearance.
func (e *ValidationError) RecordIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range e.Problems {
		if !seen[p.RecordID] {
			seen[p.RecordID] = true
			ids = append(ids, p.RecordID)
		}
	}
	return ids
}

// MissingFieldError reports a record whose source field for a text space is absent or blank.
type MissingFieldError struct {
	RecordID string
	Space    string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %s: field %q required by space %q is empty", e.RecordID, e.Field, e.Space)
}

// InvalidQueryError reports a query that cannot be executed.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid query: " + e.Reason
}

// EmbeddingServiceError reports an embedding model that failed, timed out,
// or returned malformed output after all retries.
type EmbeddingServiceError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *EmbeddingServiceError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("embedding service %s failed after %d attempts: %v", e.Model, e.Attempts, e.Err)
	}
	return fmt.Sprintf("embedding service %s failed: %v", e.Model, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// ExtractionError reports a source document whose fields could not be extracted.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }
