package registry

import (
	"fmt"
	"strings"

	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parsers/csv"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parsers/ofx"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parsers/sgml"
)

// Registry holds all registered parsers in probe order
type Registry struct {
	parsers []parser.Parser
}

// New creates a registry with all built-in parsers.
// The structured OFX parser is probed before the tag scanner.
func New() (*Registry, error) {
	r := &Registry{parsers: make([]parser.Parser, 0, 3)}
	for _, p := range []parser.Parser{ofx.NewParser(), sgml.NewParser(), csv.NewParser()} {
		if err := r.Register(p); err != nil {
			return nil, fmt.Errorf("failed to register built-in parser: %w", err)
		}
	}
	return r, nil
}

// MustNew is New for callers that cannot recover from a broken built-in set
func MustNew() *Registry {
	r, err := New()
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a parser after the existing ones
func (r *Registry) Register(p parser.Parser) error {
	if p == nil {
		return fmt.Errorf("cannot register nil parser")
	}
	for _, existing := range r.parsers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("parser %q already registered", p.Name())
		}
	}
	r.parsers = append(r.parsers, p)
	return nil
}

// Detect returns the first parser whose CanParse accepts the input.
// Only the first parser.HeaderSize bytes are inspected.
func (r *Registry) Detect(in parser.Input) (parser.Parser, error) {
	header := in.Header()
	for _, p := range r.parsers {
		if p.CanParse(in.Name, header) {
			return p, nil
		}
	}
	if in.Name != "" {
		return nil, fmt.Errorf("no parser found for file: %s", in.Name)
	}
	return nil, fmt.Errorf("no parser found for content")
}

// Get returns the parser registered under name (case-insensitive)
func (r *Registry) Get(name string) (parser.Parser, error) {
	for _, p := range r.parsers {
		if strings.EqualFold(p.Name(), name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown parser %q (available: %s)", name, strings.Join(r.ListParsers(), ", "))
}

// ListParsers returns all registered parser names in probe order
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
