// Package importer loads bank statement files into the ledger store as
// import batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/cardledger/internal/decode"
	"github.com/rumor-ml/commons.systems/cardledger/internal/dedup"
	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
	"github.com/rumor-ml/commons.systems/cardledger/internal/registry"
	"github.com/rumor-ml/commons.systems/cardledger/internal/scanner"
)

const (
	autoParser     = "auto"
	fallbackParser = "sgml"
	defaultAccount = "Conta"
)

// Config selects the parser and the account label used when none is given
type Config struct {
	Parser         string // auto, ofx, sgml or csv
	DefaultAccount string
}

// Outcome describes one import. Duplicates counts records whose external id
// was already stored or repeated earlier in the same file.
type Outcome struct {
	BatchID    string        `json:"batchId"`
	ImportedAt time.Time     `json:"importedAt"`
	Account    string        `json:"account"`
	Parser     string        `json:"parser"`
	Encoding   string        `json:"encoding"`
	Parsed     int           `json:"parsed"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Skipped    []parser.Skip `json:"skipped"`
}

// FileResult is the outcome of one file of a directory import
type FileResult struct {
	Path    string   `json:"path"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Importer parses statement files and stores their lines as import batches.
// Lines whose external id is already stored are counted as duplicates.
type Importer struct {
	store          domain.Store
	registry       *registry.Registry
	parser         string
	defaultAccount string
	log            zerolog.Logger

	now    func() time.Time
	suffix func() string
}

// New creates an importer writing to store. An empty cfg.Parser means auto detection.
func New(store domain.Store, reg *registry.Registry, cfg Config, log zerolog.Logger) *Importer {
	name := strings.ToLower(strings.TrimSpace(cfg.Parser))
	if name == "" {
		name = autoParser
	}
	account := strings.TrimSpace(cfg.DefaultAccount)
	if account == "" {
		account = defaultAccount
	}
	return &Importer{
		store:          store,
		registry:       reg,
		parser:         name,
		defaultAccount: account,
		log:            log,
		now:            time.Now,
		suffix:         randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Import stores the records of an uploaded statement as one new batch
func (i *Importer) Import(ctx context.Context, data []byte, account string) (*Outcome, error) {
	return i.run(ctx, "", data, account)
}

// ImportFile reads path and imports it. The file name takes part in parser detection.
func (i *Importer) ImportFile(ctx context.Context, path, account string) (*Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}
	return i.run(ctx, filepath.Base(path), data, account)
}

// ImportDir imports every statement file below dir, each as its own batch.
// The first directory under dir names the account. A failing file is
// reported in its FileResult and does not stop the others.
func (i *Importer) ImportDir(ctx context.Context, dir string) ([]FileResult, error) {
	found, err := scanner.New(dir).Scan()
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, 0, len(found))
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res := FileResult{Path: f.Path}
		outcome, err := i.ImportFile(ctx, f.Path, f.Metadata.Account())
		if err != nil {
			i.log.Warn().Err(err).Str("path", f.Path).Msg("statement import failed")
			res.Error = err.Error()
		} else {
			res.Outcome = outcome
		}
		results = append(results, res)
	}
	return results, nil
}

func (i *Importer) run(ctx context.Context, name string, data []byte, account string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, encoding := decode.Text(data)
	in := parser.Input{Name: name, Raw: data, Text: text}

	p, err := i.selectParser(in)
	if err != nil {
		return nil, err
	}

	stmt, p, err := i.parse(ctx, p, in)
	if err != nil {
		return nil, err
	}

	account = accountLabel(account, stmt.AccountID, i.defaultAccount)

	now := i.now().UTC()
	outcome := &Outcome{
		BatchID:    now.Format("20060102150405") + "-" + i.suffix(),
		ImportedAt: now.Truncate(time.Second),
		Account:    account,
		Parser:     p.Name(),
		Encoding:   encoding,
		Parsed:     len(stmt.Records),
		Skipped:    stmt.Skips,
	}
	if outcome.Skipped == nil {
		outcome.Skipped = []parser.Skip{}
	}

	for _, s := range stmt.Skips {
		i.log.Debug().Str("parser", p.Name()).Int("index", s.Index).Str("reason", s.Reason).Msg("statement record skipped")
	}

	err = i.store.WithinTx(ctx, func(repo domain.Repository) error {
		seen := dedup.NewTracker()
		for _, rec := range stmt.Records {
			line := toStatementLine(rec, account, outcome)
			if !seen.Observe(line.ExternalID) {
				outcome.Duplicates++
				continue
			}
			_, inserted, err := repo.InsertStatementLine(ctx, line)
			if err != nil {
				return err
			}
			if inserted {
				outcome.Inserted++
			} else {
				outcome.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import statement: %w", err)
	}

	i.log.Info().
		Str("batch", outcome.BatchID).
		Str("account", account).
		Str("parser", outcome.Parser).
		Str("encoding", encoding).
		Int("parsed", outcome.Parsed).
		Int("inserted", outcome.Inserted).
		Int("duplicates", outcome.Duplicates).
		Int("skipped", len(outcome.Skipped)).
		Msg("statement imported")

	return outcome, nil
}

func (i *Importer) selectParser(in parser.Input) (parser.Parser, error) {
	if i.parser != autoParser {
		p, err := i.registry.Get(i.parser)
		if err != nil {
			return nil, domain.NewValidationError("parser", err.Error())
		}
		return p, nil
	}
	p, err := i.registry.Detect(in)
	if err != nil {
		return nil, domain.NewValidationError("statement", "unrecognized statement format")
	}
	return p, nil
}

// parse runs p and, when the structured OFX parser rejects the content,
// retries with the tag scanner. It returns the parser that produced the statement.
func (i *Importer) parse(ctx context.Context, p parser.Parser, in parser.Input) (*parser.Statement, parser.Parser, error) {
	stmt, err := p.Parse(i.log.WithContext(ctx), in)
	if err == nil {
		return stmt, p, nil
	}
	if ctx.Err() != nil || p.Name() == fallbackParser || i.parser != autoParser {
		return nil, nil, parseError(err)
	}

	fallback, ferr := i.registry.Get(fallbackParser)
	if ferr != nil || !fallback.CanParse("", in.Header()) {
		return nil, nil, parseError(err)
	}

	i.log.Warn().Err(err).Str("parser", p.Name()).Msg("structured parse failed, scanning for transaction blocks")
	stmt, ferr = fallback.Parse(ctx, in)
	if ferr != nil {
		return nil, nil, parseError(errors.Join(err, ferr))
	}
	return stmt, fallback, nil
}

// accountLabel picks the caller's label, then the account id found in the
// statement, then the configured default
func accountLabel(given, fromFile, fallback string) string {
	if label := strings.TrimSpace(given); label != "" {
		return label
	}
	if label := strings.TrimSpace(fromFile); label != "" {
		return label
	}
	return fallback
}

func parseError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.NewValidationError("statement", "unreadable statement"), err)
}

func toStatementLine(rec parser.Record, account string, o *Outcome) *domain.StatementLine {
	id := strings.TrimSpace(rec.ExternalID)
	if id == "" {
		id = dedup.SyntheticID(rec.Date, rec.Amount, rec.Description)
	}
	return &domain.StatementLine{
		AccountName: account,
		Date:        domain.DateOf(rec.Date),
		Description: rec.Description,
		Amount:      rec.Amount.Round(2),
		ExternalID:  id,
		ImportedAt:  o.ImportedAt,
		BatchID:     o.BatchID,
	}
}
