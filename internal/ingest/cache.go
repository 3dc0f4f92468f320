package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sattyani/ai-procurement-agent/internal/models"
)

// cacheEntry is the on-disk result of extracting one document.
type cacheEntry struct {
	Metadata      cacheMetadata          `json:"metadata"`
	ExtractedData *models.ProposalRecord `json:"extracted_data"`
}

type cacheMetadata struct {
	SourcePDF   string `json:"source_pdf"`
	ExtractedAt string `json:"extracted_at"`
	FileSize    int64  `json:"file_size"`
}

// CachePath returns where the extraction result of path is kept.
func CachePath(cacheDir, path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(cacheDir, stem+"_extracted.json")
}

// loadCached returns the cached record for path, or nil when there is none.
func loadCached(cacheDir, path string) (*models.ProposalRecord, error) {
	data, err := os.ReadFile(CachePath(cacheDir, path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read extraction cache: %w", err)
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse extraction cache: %w", err)
	}
	if entry.ExtractedData == nil {
		return nil, fmt.Errorf("extraction cache %s has no extracted_data", CachePath(cacheDir, path))
	}
	return entry.ExtractedData, nil
}

// saveCached writes rec as the extraction result of path.
func saveCached(cacheDir, path string, size int64, rec *models.ProposalRecord, now time.Time) error {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(cacheEntry{
		Metadata: cacheMetadata{
			SourcePDF:   path,
			ExtractedAt: now.UTC().Format(time.RFC3339),
			FileSize:    size,
		},
		ExtractedData: rec,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode extraction cache: %w", err)
	}
	if err := os.WriteFile(CachePath(cacheDir, path), data, 0644); err != nil {
		return fmt.Errorf("write extraction cache: %w", err)
	}
	return nil
}

func removeCached(cacheDir, path string) error {
	err := os.Remove(CachePath(cacheDir, path))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
