package parser

import (
	"fmt"
	"time"
)

// Metadata contains context about a statement file found on disk.
// Extracted from directory structure: {root}/{account}/file.ext
//
// Create instances using NewMetadata(filePath, detectedAt). When Account()
// returns an empty string the file sat directly in the scanned root and the
// importer falls back to its default account label.
type Metadata struct {
	filePath   string
	account    string // Inferred from the parent directory (e.g., "nubank")
	detectedAt time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
// Returns an error if filePath is empty or detectedAt is zero.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the absolute file path
func (m *Metadata) FilePath() string {
	return m.filePath
}

// Account returns the account label inferred from directory structure
func (m *Metadata) Account() string {
	return m.account
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// SetAccount sets the account label
func (m *Metadata) SetAccount(account string) {
	m.account = account
}
