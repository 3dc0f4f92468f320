package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// searchable lists the indexed proposal fields and their boosts.
var searchable = map[string]float64{
	models.FieldVendorName:       3,
	models.FieldProjectName:      2,
	models.FieldScopeSummary:     1,
	models.FieldRisks:            1,
	models.FieldDeliveryTimeline: 1,
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

type proposalDoc struct {
	VendorName       string `json:"vendor_name"`
	ProjectName      string `json:"project_name"`
	DeliveryTimeline string `json:"delivery_timeline"`
	ScopeSummary     string `json:"scope_summary"`
	Risks            string `json:"risks"`
}

func newMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so vendor names match as typed.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	for field := range searchable {
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}
	im.AddDocumentMapping("proposal", docMapping)
	im.DefaultType = "proposal"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the
// index in memory; it is then rebuilt from storage on every start.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(newMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes records by id in one batch.
func (b *BleveIndex) Index(ctx context.Context, records ...*models.ProposalRecord) error {
	batch := b.index.NewBatch()
	for _, r := range records {
		doc := proposalDoc{
			VendorName:       r.VendorName,
			ProjectName:      r.ProjectName,
			DeliveryTimeline: r.DeliveryTimeline,
			ScopeSummary:     r.ScopeSummary,
			Risks:            r.Risks,
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("failed to index proposal %s: %w", r.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Delete removes a proposal by id.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Search returns up to limit proposal ids whose fields match query, best first.
// Each field's match is boosted by its weight in searchable.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	fuzziness := 0
	if opts != nil && opts.FuzzyEnabled {
		fuzziness = opts.Fuzziness
		if fuzziness <= 0 {
			fuzziness = 1
		}
	}

	fieldQueries := make([]blevequery.Query, 0, len(searchable))
	for field, boost := range searchable {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		mq.SetBoost(boost)
		if fuzziness > 0 {
			mq.SetFuzziness(fuzziness)
		}
		fieldQueries = append(fieldQueries, mq)
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(fieldQueries...))
	req.Size = limit
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// DocCount returns the total number of indexed proposals.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
