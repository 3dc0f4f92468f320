package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS proposals (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		vendor_name TEXT NOT NULL,
		project_name TEXT NOT NULL,
		time_stamp TEXT,
		price REAL NOT NULL,
		delivery_timeline TEXT,
		scope_summary TEXT,
		risks TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_proposals_vendor ON proposals(vendor_name);
	`
	_, err := db.Exec(schema)
	return err
}

const proposalColumns = `id, vendor_name, project_name, time_stamp, price, delivery_timeline, scope_summary, risks`

// PutProposals upserts the batch in one transaction. The seq column, and with it
// the listing position, is kept for ids that already exist.
func (s *SQLiteStorage) PutProposals(ctx context.Context, records []*models.ProposalRecord) error {
	batch, err := prepareBatch(records)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO proposals (`+proposalColumns+`, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			vendor_name = excluded.vendor_name,
			project_name = excluded.project_name,
			time_stamp = excluded.time_stamp,
			price = excluded.price,
			delivery_timeline = excluded.delivery_timeline,
			scope_summary = excluded.scope_summary,
			risks = excluded.risks,
			updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.VendorName, r.ProjectName, r.Timestamp, r.Price,
			r.DeliveryTimeline, r.ScopeSummary, r.Risks, now, now,
		); err != nil {
			return fmt.Errorf("failed to upsert proposal %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*models.ProposalRecord, error) {
	var r models.ProposalRecord
	var ts, timeline, scope, risks sql.NullString
	if err := row.Scan(&r.ID, &r.VendorName, &r.ProjectName, &ts, &r.Price, &timeline, &scope, &risks); err != nil {
		return nil, err
	}
	r.Timestamp = ts.String
	r.DeliveryTimeline = timeline.String
	r.ScopeSummary = scope.String
	r.Risks = risks.String
	return &r, nil
}

// GetProposal returns a proposal by ID.
func (s *SQLiteStorage) GetProposal(ctx context.Context, id string) (*models.ProposalRecord, error) {
	r, err := scanProposal(s.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListProposals returns all proposals in insertion order.
func (s *SQLiteStorage) ListProposals(ctx context.Context) ([]*models.ProposalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+proposalColumns+` FROM proposals ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ProposalRecord
	for rows.Next() {
		r, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteProposal removes a proposal by ID.
func (s *SQLiteStorage) DeleteProposal(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(id)
	}
	return nil
}

// CountProposals returns the total number of proposals.
func (s *SQLiteStorage) CountProposals(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proposals`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
