package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// HeaderSize is how many leading bytes CanParse receives for format detection
const HeaderSize = 512

// Parser is the strategy interface for all statement format parsers
type Parser interface {
	// Name returns parser identifier (e.g., "ofx", "sgml", "csv")
	Name() string

	// CanParse checks if parser can handle this content.
	// name is the original file name and may be empty for uploads.
	CanParse(name string, header []byte) bool

	// Parse extracts statement records. Malformed records are reported in
	// Statement.Skips; an error means the content as a whole was unusable.
	Parse(ctx context.Context, in Input) (*Statement, error)
}

// Input is the statement content handed to a parser.
// Raw holds the original bytes and Text the same content after charset decoding.
type Input struct {
	Name string
	Raw  []byte
	Text string
}

// Header returns the first HeaderSize bytes of the content, preferring the
// decoded text so that accented header names compare correctly
func (in Input) Header() []byte {
	b := in.Raw
	if in.Text != "" {
		b = []byte(in.Text)
	}
	if len(b) > HeaderSize {
		return b[:HeaderSize]
	}
	return b
}

// Statement represents parsed data before it is stored
type Statement struct {
	AccountID string // from the file when present
	Records   []Record
	Skips     []Skip
}

// Record is one statement entry.
// Sign convention follows the file: negative = money out.
type Record struct {
	ExternalID  string // FITID or equivalent; empty when the file has none
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Skip records why an entry was left out of the statement
type Skip struct {
	Index  int    `json:"index"` // zero-based position of the entry in the file
	Reason string `json:"reason"`
}

func (s Skip) String() string {
	return fmt.Sprintf("entry %d: %s", s.Index, s.Reason)
}

// NewRecord creates a validated record. The date is truncated to a calendar
// day and the amount rounded to cents.
func NewRecord(externalID string, date time.Time, description string, amount decimal.Decimal) (*Record, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("record date cannot be zero")
	}
	return &Record{
		ExternalID:  externalID,
		Date:        time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Description: description,
		Amount:      amount.Round(2),
	}, nil
}
