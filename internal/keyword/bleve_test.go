package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

func sampleRecords() []*models.ProposalRecord {
	return []*models.ProposalRecord{
		{ID: "1", VendorName: "Acme Corp", ProjectName: "Enterprise Software Development", ScopeSummary: "Custom CRM system", Risks: "Integration complexity"},
		{ID: "2", VendorName: "TechSolutions Inc", ProjectName: "Cloud Migration Services", ScopeSummary: "Migrate applications to AWS", Risks: "Downtime during migration"},
		{ID: "3", VendorName: "DataWise Analytics", ProjectName: "Business Intelligence Platform", ScopeSummary: "Dashboards and predictive analytics", Risks: "Data quality issues"},
	}
}

func TestBleveIndex_IndexSearchDelete(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	if err := idx.Index(ctx, sampleRecords()...); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil || n != 3 {
		t.Fatalf("DocCount = %d, %v", n, err)
	}

	results, err := idx.Search(ctx, "migration", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "2" {
		t.Errorf("search migration: %+v", results)
	}

	results, _ = idx.Search(ctx, "datawise", 10, nil)
	if len(results) != 1 || results[0].ID != "3" {
		t.Errorf("vendor lookup: %+v", results)
	}

	if err := idx.Delete(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	results, _ = idx.Search(ctx, "migration", 10, nil)
	if len(results) != 0 {
		t.Errorf("deleted proposal still found: %+v", results)
	}
}

func TestBleveIndex_Fuzzy(t *testing.T) {
	idx, _ := NewBleveIndex("")
	defer idx.Close()
	ctx := context.Background()
	_ = idx.Index(ctx, sampleRecords()...)

	exact, _ := idx.Search(ctx, "acmee", 10, nil)
	if len(exact) != 0 {
		t.Errorf("exact search should miss a typo: %+v", exact)
	}
	fuzzy, err := idx.Search(ctx, "acmee", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "1" {
		t.Errorf("fuzzy search: %+v", fuzzy)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx, _ := NewBleveIndex("")
	defer idx.Close()
	results, err := idx.Search(context.Background(), "  ", 10, nil)
	if err != nil || results != nil {
		t.Errorf("empty query: %v, %v", results, err)
	}
}

func TestBleveIndex_PersistentReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyword")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = idx.Index(context.Background(), sampleRecords()[0])
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, _ := reopened.DocCount(); n != 1 {
		t.Errorf("DocCount after reopen = %d", n)
	}
}
