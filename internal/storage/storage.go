// Package storage persists proposal records. Every driver upserts batches atomically and
// lists records in first-insertion order.
package storage

import (
	"context"
	"fmt"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// Storage defines proposal persistence operations.
type Storage interface {
	// PutProposals validates and upserts the batch: all records are written or none.
	// A re-put id keeps its original position.
	PutProposals(ctx context.Context, records []*models.ProposalRecord) error
	// GetProposal returns models.ErrNotFound (wrapped) when id is absent.
	GetProposal(ctx context.Context, id string) (*models.ProposalRecord, error)
	// ListProposals returns all records in insertion order.
	ListProposals(ctx context.Context) ([]*models.ProposalRecord, error)
	// DeleteProposal returns models.ErrNotFound (wrapped) when id is absent.
	DeleteProposal(ctx context.Context, id string) error
	CountProposals(ctx context.Context) (int64, error)
	Close() error
}

// Options selects and locates a driver.
type Options struct {
	// Driver is "sqlite", "badger" or "memory".
	Driver       string
	DatabasePath string
	BadgerPath   string
}

// Open returns the storage named by opts.Driver.
func Open(opts Options) (Storage, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLiteStorage(opts.DatabasePath)
	case "badger":
		return NewBadgerStorage(opts.BadgerPath)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// Path returns the on-disk location used by the driver, or "" for memory.
func (o Options) Path() string {
	switch o.Driver {
	case "", "sqlite":
		return o.DatabasePath
	case "badger":
		return o.BadgerPath
	}
	return ""
}

func notFound(id string) error {
	return fmt.Errorf("proposal %s: %w", id, models.ErrNotFound)
}

// prepareBatch validates records and collapses duplicate ids.
func prepareBatch(records []*models.ProposalRecord) ([]*models.ProposalRecord, error) {
	if err := models.ValidateBatch(records); err != nil {
		return nil, err
	}
	return models.DedupeBatch(records), nil
}
