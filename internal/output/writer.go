// Package output writes command results as indented JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteOptions configures where a result is written
type WriteOptions struct {
	FilePath string // empty = stdout
}

// Write serializes v to JSON with 2-space indentation
func Write(v any, w io.Writer) error {
	if v == nil {
		return fmt.Errorf("value cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode result as JSON: %w", err)
	}
	return nil
}

// WriteToFile writes v to a file or stdout based on options
func WriteToFile(v any, opts WriteOptions) (err error) {
	if opts.FilePath == "" {
		return Write(v, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = Write(v, f); err != nil {
		return fmt.Errorf("failed to write result to %s: %w", opts.FilePath, err)
	}
	return nil
}

// ErrorBody is the JSON shape of a failed command
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}
