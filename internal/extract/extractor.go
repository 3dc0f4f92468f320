// Package extract reads the text of proposal documents.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrNoText is returned when a document yields no text, e.g. a scanned PDF.
	ErrNoText = errors.New("document contains no extractable text")
)

// Document is the extracted text of one proposal file.
type Document struct {
	Path string
	// Text is whitespace-normalised.
	Text string
	Size int64
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether ext (with leading dot) has an extractor.
func (e *Extractor) Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md":
		return true
	}
	return false
}

// Extract reads the file at path and returns its normalised text.
func (e *Extractor) Extract(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text, err := e.ExtractBytes(content, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	text = Normalize(text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}
	return &Document{Path: path, Text: text, Size: int64(len(content))}, nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md":
		return extractPlain(content)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}
