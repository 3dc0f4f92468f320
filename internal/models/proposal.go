// Package models defines core data structures for proposals, queries, and search results.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ProposalRecord is one vendor proposal as extracted from a source document.
type ProposalRecord struct {
	ID               string  `json:"id"`
	VendorName       string  `json:"vendor_name"`
	ProjectName      string  `json:"project_name"`
	Timestamp        string  `json:"timestamp,omitempty"`
	Price            float64 `json:"price"`
	DeliveryTimeline string  `json:"delivery_timeline"`
	ScopeSummary     string  `json:"scope_summary"`
	Risks            string  `json:"risks"`
}

// UnmarshalJSON accepts numeric ids and the legacy "time_stamp" key.
// A missing price decodes as NaN so that validation reports it.
func (r *ProposalRecord) UnmarshalJSON(data []byte) error {
	type plain ProposalRecord
	var aux struct {
		plain
		ID        json.RawMessage `json:"id"`
		Price     *float64        `json:"price"`
		TimeStamp string          `json:"time_stamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ProposalRecord(aux.plain)

	id, err := decodeID(aux.ID)
	if err != nil {
		return err
	}
	r.ID = id

	if aux.Price != nil {
		r.Price = *aux.Price
	} else {
		r.Price = math.NaN()
	}
	if r.Timestamp == "" {
		r.Timestamp = aux.TimeStamp
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid id: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s: must be a string or integer", raw)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return "", fmt.Errorf("invalid id %s: must be a string or integer", raw)
	}
	return n.String(), nil
}

// Clone returns a copy of r.
func (r *ProposalRecord) Clone() *ProposalRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// TextField returns the value of a named text field.
func (r *ProposalRecord) TextField(name string) (string, bool) {
	switch name {
	case FieldVendorName:
		return r.VendorName, true
	case FieldProjectName:
		return r.ProjectName, true
	case FieldDeliveryTimeline:
		return r.DeliveryTimeline, true
	case FieldScopeSummary:
		return r.ScopeSummary, true
	case FieldRisks:
		return r.Risks, true
	}
	return "", false
}

// NumericField returns the value of a named numeric field.
func (r *ProposalRecord) NumericField(name string) (float64, bool) {
	if name == FieldPrice {
		return r.Price, true
	}
	return 0, false
}

// Field names usable as embedding space sources.
const (
	FieldVendorName       = "vendor_name"
	FieldProjectName      = "project_name"
	FieldPrice            = "price"
	FieldDeliveryTimeline = "delivery_timeline"
	FieldScopeSummary     = "scope_summary"
	FieldRisks            = "risks"
)

// Validate checks the required fields of r and returns every problem found.
// label identifies the record when it has no id.
func (r *ProposalRecord) Validate(label string) []FieldProblem {
	if r == nil {
		return []FieldProblem{{RecordID: label, Field: "record", Reason: "is null"}}
	}
	ref := r.ID
	if strings.TrimSpace(ref) == "" {
		ref = label
	}
	var problems []FieldProblem
	add := func(field, reason string) {
		problems = append(problems, FieldProblem{RecordID: ref, Field: field, Reason: reason})
	}

	if strings.TrimSpace(r.ID) == "" {
		add("id", "is required")
	}
	if strings.TrimSpace(r.VendorName) == "" {
		add(FieldVendorName, "is required")
	}
	if strings.TrimSpace(r.ProjectName) == "" {
		add(FieldProjectName, "is required")
	}
	switch {
	case math.IsNaN(r.Price):
		add(FieldPrice, "is required")
	case math.IsInf(r.Price, 0):
		add(FieldPrice, "must be finite")
	case r.Price < 0:
		add(FieldPrice, "must be >= 0")
	}
	if r.Timestamp != "" {
		if _, err := time.Parse(time.RFC3339, r.Timestamp); err != nil {
			add("timestamp", "must be RFC 3339")
		}
	}
	return problems
}

// ValidateBatch validates every record in the batch and returns a *ValidationError
// naming all offending records, or nil.
func ValidateBatch(records []*ProposalRecord) error {
	var problems []FieldProblem
	for i, r := range records {
		problems = append(problems, r.Validate(fmt.Sprintf("#%d", i))...)
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}

// DedupeBatch collapses repeated ids: the last value wins, the first position is kept.
func DedupeBatch(records []*ProposalRecord) []*ProposalRecord {
	pos := make(map[string]int, len(records))
	out := make([]*ProposalRecord, 0, len(records))
	for _, r := range records {
		if i, ok := pos[r.ID]; ok {
			out[i] = r
			continue
		}
		pos[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
