package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

const (
	proposalPrefix = "proposal:"
	orderPrefix    = "order:"
	seqKey         = "meta:seq"
)

// BadgerStorage implements Storage on an embedded Badger key-value store.
// proposal:<id> holds the record and its sequence number; order:<seq> holds the id.
type BadgerStorage struct {
	db *badger.DB
}

type badgerEntry struct {
	Seq    uint64                 `json:"seq"`
	Record *models.ProposalRecord `json:"record"`
}

type zapBadgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapBadgerLogger) Errorf(msg string, args ...any)   { l.sugar.Errorf(msg, args...) }
func (l zapBadgerLogger) Warningf(msg string, args ...any) { l.sugar.Warnf(msg, args...) }
func (l zapBadgerLogger) Infof(msg string, args ...any)    { l.sugar.Debugf(msg, args...) }
func (l zapBadgerLogger) Debugf(msg string, args ...any)   { l.sugar.Debugf(msg, args...) }

// NewBadgerStorage opens a Badger store in dir, or an in-memory store when dir is empty.
func NewBadgerStorage(dir string, logger ...*zap.Logger) (*BadgerStorage, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	opts.Logger = zapBadgerLogger{sugar: l.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStorage{db: db}, nil
}

func orderKey(seq uint64) []byte {
	k := make([]byte, len(orderPrefix)+8)
	copy(k, orderPrefix)
	binary.BigEndian.PutUint64(k[len(orderPrefix):], seq)
	return k
}

func getEntry(txn *badger.Txn, id string) (*badgerEntry, error) {
	item, err := txn.Get([]byte(proposalPrefix + id))
	if err != nil {
		return nil, err
	}
	var e badgerEntry
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &e)
	})
	return &e, err
}

// PutProposals upserts the batch in one read-write transaction.
func (s *BadgerStorage) PutProposals(ctx context.Context, records []*models.ProposalRecord) error {
	batch, err := prepareBatch(records)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		var next uint64
		item, err := txn.Get([]byte(seqKey))
		switch {
		case err == nil:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			next = binary.BigEndian.Uint64(val)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		for _, r := range batch {
			entry, err := getEntry(txn, r.ID)
			switch {
			case err == nil:
				entry.Record = r
			case errors.Is(err, badger.ErrKeyNotFound):
				next++
				entry = &badgerEntry{Seq: next, Record: r}
				if err := txn.Set(orderKey(next), []byte(r.ID)); err != nil {
					return err
				}
			default:
				return err
			}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("failed to marshal proposal %s: %w", r.ID, err)
			}
			if err := txn.Set([]byte(proposalPrefix+r.ID), data); err != nil {
				return err
			}
		}

		seq := make([]byte, 8)
		binary.BigEndian.PutUint64(seq, next)
		return txn.Set([]byte(seqKey), seq)
	})
}

// GetProposal returns a proposal by ID.
func (s *BadgerStorage) GetProposal(_ context.Context, id string) (*models.ProposalRecord, error) {
	var out *models.ProposalRecord
	err := s.db.View(func(txn *badger.Txn) error {
		e, err := getEntry(txn, id)
		if err != nil {
			return err
		}
		out = e.Record
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(id)
	}
	return out, err
}

// ListProposals walks the order keys and returns records in insertion order.
func (s *BadgerStorage) ListProposals(ctx context.Context) ([]*models.ProposalRecord, error) {
	var out []*models.ProposalRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(orderPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			e, err := getEntry(txn, string(id))
			if err != nil {
				return fmt.Errorf("order index points at %s: %w", id, err)
			}
			out = append(out, e.Record)
		}
		return nil
	})
	return out, err
}

// DeleteProposal removes a proposal and its order key.
func (s *BadgerStorage) DeleteProposal(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e, err := getEntry(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(orderKey(e.Seq)); err != nil {
			return err
		}
		return txn.Delete([]byte(proposalPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(id)
	}
	return err
}

// CountProposals counts proposal keys without reading values.
func (s *BadgerStorage) CountProposals(_ context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(proposalPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close closes the database.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}
