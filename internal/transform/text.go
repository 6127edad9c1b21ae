// Package transform normalizes free text for matching and naming.
package transform

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
var spaces = regexp.MustCompile(`\s+`)

// stripMarks decomposes, drops combining marks and recomposes.
// A new chain is built per call because transformers carry state.
func stripMarks(s string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	return out, err
}

// Fold lower-cases s, removes accents and collapses runs of whitespace.
// Examples: "  Açaí  DA Praça" → "acai da praca"
func Fold(s string) string {
	out, err := stripMarks(s)
	if err != nil {
		out = s
	}
	return spaces.ReplaceAllString(strings.TrimSpace(strings.ToLower(out)), " ")
}

// Slugify converts a name to a file-name-safe slug.
// Examples: "Cartão Nubank" → "cartao-nubank", "Itaú Visa" → "itau-visa"
func Slugify(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("name cannot be empty")
	}

	normalized, err := stripMarks(name)
	if err != nil {
		return "", fmt.Errorf("failed to normalize name %q: %w", name, err)
	}

	slug := strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(normalized), "-"), "-")
	if slug == "" {
		return "", fmt.Errorf("name %q contains no alphanumeric characters", name)
	}
	return slug, nil
}
