package storage

import (
	"context"
	"sync"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// MemoryStorage keeps records in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*models.ProposalRecord
	order   []string
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*models.ProposalRecord)}
}

// PutProposals upserts the batch.
func (s *MemoryStorage) PutProposals(ctx context.Context, records []*models.ProposalRecord) error {
	batch, err := prepareBatch(records)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range batch {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r.Clone()
	}
	return nil
}

// GetProposal returns a copy of the record.
func (s *MemoryStorage) GetProposal(_ context.Context, id string) (*models.ProposalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return r.Clone(), nil
}

// ListProposals returns copies in insertion order.
func (s *MemoryStorage) ListProposals(_ context.Context) ([]*models.ProposalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ProposalRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}

// DeleteProposal removes the record.
func (s *MemoryStorage) DeleteProposal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return notFound(id)
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// CountProposals returns the number of records.
func (s *MemoryStorage) CountProposals(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Close is a no-op for MemoryStorage.
func (s *MemoryStorage) Close() error {
	return nil
}
