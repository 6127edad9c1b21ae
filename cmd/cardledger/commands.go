package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/domain"
	"github.com/rumor-ml/commons.systems/cardledger/internal/importer"
	"github.com/rumor-ml/commons.systems/cardledger/internal/installment"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ledger"
	"github.com/rumor-ml/commons.systems/cardledger/internal/output"
	"github.com/rumor-ml/commons.systems/cardledger/internal/reconcile"
	"github.com/rumor-ml/commons.systems/cardledger/internal/server"
	"github.com/rumor-ml/commons.systems/cardledger/internal/transform"
	"github.com/rumor-ml/commons.systems/cardledger/internal/ui"
	"github.com/rumor-ml/commons.systems/cardledger/internal/validate"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"card add":     {"Register a credit card", cmdCardAdd},
		"card list":    {"List cards", cmdCardList},
		"card preview": {"Show limit usage for the current cycle", cmdCardPreview},
		"purchase add": {"Register a purchase, split into installments", cmdPurchaseAdd},
		"transactions": {"List transactions dated in a month", cmdTransactions},
		"invoice":      {"Show the invoice of a card for a reference date", cmdInvoice},
		"import":       {"Import bank statement files or directories", cmdImport},
		"statements":   {"List statement lines of a month", cmdStatements},
		"automatch":    {"Pair statement lines with pending transactions", cmdAutoMatch},
		"match":        {"Pair a statement line with a transaction", cmdMatch},
		"unmatch":      {"Remove the pairing of a statement line", cmdUnmatch},
		"materialize":  {"Create a transaction from a statement line", cmdMaterialize},
		"batch":        {"Show the latest import batch", cmdBatch},
		"undo":         {"Undo the latest import batch", cmdUndo},
		"month":        {"Daily statement versus ledger summary", cmdMonth},
		"check":        {"Check ledger consistency", cmdCheck},
		"serve":        {"Run the HTTP API", cmdServe},
	}
}

// exitCode ends the command with a status and no further message
type exitCode int

func (e exitCode) Error() string { return "exit status " + strconv.Itoa(int(e)) }

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

// requireID reads the single positional id argument of a command
func requireID(fs *flag.FlagSet, what string) (int64, error) {
	if fs.NArg() != 1 {
		fmt.Fprintf(fs.Output(), "Error: expected one %s id\n", what)
		return 0, errUsage
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(what, "invalid id "+strconv.Quote(fs.Arg(0)))
	}
	return id, nil
}

func parseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DateOf(time.Now()), nil
	}
	if t, err := time.Parse("2006-01", value); err == nil {
		return t, nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError("month", "expected YYYY-MM, got "+strconv.Quote(value))
	}
	return t, nil
}

func parseDate(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.DateOf(time.Now()), nil
	}
	t, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.NewValidationError(field, "expected YYYY-MM-DD, got "+strconv.Quote(value))
	}
	return t, nil
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, domain.NewValidationError(field, "invalid amount "+strconv.Quote(value))
	}
	return d, nil
}

func cmdCardAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "card add")
	name := fs.String("name", "", "Card name")
	limit := fs.String("limit", "0", "Credit limit")
	closing := fs.Int("closing", 0, "Closing day (1-28)")
	due := fs.Int("due", 0, "Due day (1-28)")
	if err := parse(fs, args); err != nil {
		return err
	}

	lim, err := parseAmount("limit", *limit)
	if err != nil {
		return err
	}
	card, err := a.ledger.AddCard(ctx, *name, lim, *closing, *due)
	if err != nil {
		return err
	}
	return a.emit(card, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("Card %q registered with id %d", card.Name, card.ID))
	})
}

func cmdCardList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "card list")
	if err := parse(fs, args); err != nil {
		return err
	}
	cards, err := a.ledger.ListCards(ctx)
	if err != nil {
		return err
	}
	return a.emit(cards, func(p *ui.Printer) {
		if len(cards) == 0 {
			p.Info("No cards registered")
			return
		}
		p.Cards(cards)
	})
}

func cmdCardPreview(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "card preview")
	cardID := fs.Int64("card", 0, "Card id (default: all cards)")
	date := fs.String("date", "", "Reference date YYYY-MM-DD (default: today)")
	if err := parse(fs, args); err != nil {
		return err
	}

	ref, err := parseDate("date", *date)
	if err != nil {
		return err
	}
	var previews []ledger.Preview
	if *cardID != 0 {
		pv, err := a.ledger.Preview(ctx, *cardID, ref)
		if err != nil {
			return err
		}
		previews = []ledger.Preview{*pv}
	} else {
		previews, err = a.ledger.Previews(ctx, ref)
		if err != nil {
			return err
		}
	}
	return a.emit(previews, func(p *ui.Printer) { p.Preview(previews) })
}

func cmdPurchaseAdd(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "purchase add")
	cardID := fs.Int64("card", 0, "Card id")
	date := fs.String("date", "", "Purchase date YYYY-MM-DD (default: today)")
	desc := fs.String("desc", "", "Description")
	category := fs.String("category", "", "Category (default: Outros)")
	amount := fs.String("amount", "", "Total amount")
	n := fs.Int("n", 1, "Number of installments")
	tags := fs.String("tags", "", "Comma separated tags")
	confirmed := fs.Bool("confirmed", false, "Mark the installments as confirmed")
	if err := parse(fs, args); err != nil {
		return err
	}

	when, err := parseDate("date", *date)
	if err != nil {
		return err
	}
	total, err := parseAmount("amount", *amount)
	if err != nil {
		return err
	}
	txs, err := a.ledger.AddPurchase(ctx, installment.Purchase{
		CardID:       *cardID,
		Date:         when,
		Description:  *desc,
		Category:     *category,
		Amount:       total,
		Installments: *n,
		Tags:         *tags,
		Confirmed:    *confirmed,
	})
	if err != nil {
		return err
	}
	return a.emit(txs, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("Purchase registered in %d installment(s)", len(txs)))
		p.Transactions(txs)
	})
}

func cmdTransactions(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "transactions")
	month := fs.String("month", "", "Month YYYY-MM (default: current)")
	if err := parse(fs, args); err != nil {
		return err
	}
	m, err := parseMonth(*month)
	if err != nil {
		return err
	}
	txs, err := a.ledger.Transactions(ctx, m)
	if err != nil {
		return err
	}
	return a.emit(txs, func(p *ui.Printer) {
		if len(txs) == 0 {
			p.Info("No transactions in " + m.Format("2006-01"))
			return
		}
		p.Transactions(txs)
	})
}

func cmdInvoice(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "invoice")
	cardID := fs.Int64("card", 0, "Card id")
	date := fs.String("date", "", "Reference date YYYY-MM-DD (default: today)")
	export := fs.String("export", "", "Write the invoice as JSON into this directory")
	if err := parse(fs, args); err != nil {
		return err
	}
	ref, err := parseDate("date", *date)
	if err != nil {
		return err
	}
	inv, err := a.ledger.Invoice(ctx, *cardID, ref)
	if err != nil {
		return err
	}

	if *export != "" {
		path, err := exportInvoice(inv, *export)
		if err != nil {
			return err
		}
		return a.emit(map[string]string{"file": path}, func(p *ui.Printer) {
			p.Success("Invoice written to " + path)
		})
	}
	return a.emit(inv, func(p *ui.Printer) { p.Invoice(inv) })
}

// exportInvoice writes inv as JSON to dir/<card-slug>-<due month>.json
func exportInvoice(inv *ledger.Invoice, dir string) (string, error) {
	slug, err := transform.Slugify(inv.Card.Name)
	if err != nil {
		slug = "card-" + strconv.FormatInt(inv.Card.ID, 10)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, slug+"-"+inv.DueDate.Format("2006-01")+".json")
	if err := output.WriteToFile(inv, output.WriteOptions{FilePath: path}); err != nil {
		return "", err
	}
	return path, nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "import")
	account := fs.String("account", "", "Account name for imported files (directories name the account from their first folder)")
	parserName := fs.String("parser", "", "Parser: auto, ofx, sgml or csv (default: from config)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(a.stderr, "Error: at least one file or directory is required")
		return errUsage
	}

	imp := a.importer
	if *parserName != "" {
		override := *a.cfg
		override.Importer.Parser = *parserName
		if err := override.Validate(); err != nil {
			return domain.NewValidationError("parser", err.Error())
		}
		imp = importer.New(a.store, a.registry, importer.Config{
			Parser:         override.ParserName(),
			DefaultAccount: a.cfg.Importer.DefaultAccount,
		}, a.log)
	}

	var results []importer.FileResult
	failed := 0
	for i, path := range fs.Args() {
		if !a.jsonOut {
			a.printer.Step(i+1, fs.NArg(), "Importing "+path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if info.IsDir() {
			dirResults, err := imp.ImportDir(ctx, path)
			if err != nil {
				return err
			}
			results = append(results, dirResults...)
			continue
		}
		res := importer.FileResult{Path: path}
		outcome, err := imp.ImportFile(ctx, path, *account)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Outcome = outcome
		}
		results = append(results, res)
	}

	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	err := a.emit(results, func(p *ui.Printer) {
		for _, res := range results {
			if res.Error != "" {
				p.Error(res.Path + ": " + res.Error)
				continue
			}
			p.Info(res.Path)
			p.ImportOutcome(res.Outcome)
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return exitCode(1)
	}
	return nil
}

func cmdStatements(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "statements")
	month := fs.String("month", "", "Month YYYY-MM (default: current)")
	unmatched := fs.Bool("unmatched", false, "Only lines without a matching transaction")
	if err := parse(fs, args); err != nil {
		return err
	}
	m, err := parseMonth(*month)
	if err != nil {
		return err
	}
	lines, err := a.engine.StatementLines(ctx, m)
	if err != nil {
		return err
	}
	if *unmatched {
		kept := lines[:0]
		for _, l := range lines {
			if !l.Matched() {
				kept = append(kept, l)
			}
		}
		lines = kept
	}
	return a.emit(lines, func(p *ui.Printer) {
		if len(lines) == 0 {
			p.Info("No statement lines in " + m.Format("2006-01"))
			return
		}
		p.StatementLines(lines)
	})
}

type autoMatchResult struct {
	Month     string              `json:"month"`
	Tolerance reconcile.Tolerance `json:"tolerance"`
	Matched   int                 `json:"matched"`
}

func cmdAutoMatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "automatch")
	month := fs.String("month", "", "Month YYYY-MM (default: current)")
	days := fs.Int("days", a.cfg.Reconcile.ToleranceDays, "Date tolerance in days")
	value := fs.String("value", a.cfg.ToleranceValue().String(), "Amount tolerance")
	if err := parse(fs, args); err != nil {
		return err
	}
	m, err := parseMonth(*month)
	if err != nil {
		return err
	}
	v, err := parseAmount("toleranceValue", *value)
	if err != nil {
		return err
	}
	tol := reconcile.Tolerance{Days: *days, Value: v}
	n, err := a.engine.AutoMatch(ctx, m, tol)
	if err != nil {
		return err
	}
	res := autoMatchResult{Month: m.Format("2006-01"), Tolerance: tol, Matched: n}
	return a.emit(res, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("%d statement line(s) matched in %s", n, res.Month))
	})
}

func cmdMatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "match")
	txID := fs.Int64("tx", 0, "Transaction id")
	if err := parse(fs, args); err != nil {
		return err
	}
	stmtID, err := requireID(fs, "statement")
	if err != nil {
		return err
	}
	if err := a.engine.Match(ctx, stmtID, *txID); err != nil {
		return err
	}
	return a.emit(map[string]int64{"statementId": stmtID, "transactionId": *txID}, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("Statement line %d matched to transaction %d", stmtID, *txID))
	})
}

func cmdUnmatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "unmatch")
	if err := parse(fs, args); err != nil {
		return err
	}
	stmtID, err := requireID(fs, "statement")
	if err != nil {
		return err
	}
	if err := a.engine.Unmatch(ctx, stmtID); err != nil {
		return err
	}
	return a.emit(map[string]int64{"statementId": stmtID}, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("Statement line %d unmatched", stmtID))
	})
}

func cmdMaterialize(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "materialize")
	cardID := fs.Int64("card", 0, "Card that owns the new transaction")
	if err := parse(fs, args); err != nil {
		return err
	}
	stmtID, err := requireID(fs, "statement")
	if err != nil {
		return err
	}
	txID, err := a.engine.Materialize(ctx, stmtID, *cardID)
	if err != nil {
		return err
	}
	return a.emit(map[string]int64{"statementId": stmtID, "transactionId": txID}, func(p *ui.Printer) {
		p.Success(fmt.Sprintf("Transaction %d created from statement line %d", txID, stmtID))
	})
}

func cmdBatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "batch")
	if err := parse(fs, args); err != nil {
		return err
	}
	b, err := a.engine.LastBatch(ctx)
	if err != nil {
		return err
	}
	if b == nil {
		return a.emit(map[string]any{"batch": nil}, func(p *ui.Printer) { p.Info("No imported batch") })
	}
	return a.emit(b, func(p *ui.Printer) { p.Batch(b) })
}

type undoResult struct {
	Force   bool `json:"force"`
	Removed int  `json:"removed"`
}

func cmdUndo(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "undo")
	force := fs.Bool("force", false, "Also remove matched lines, returning their transactions to pending")
	if err := parse(fs, args); err != nil {
		return err
	}
	n, err := a.engine.UndoLastBatch(ctx, *force)
	if err != nil {
		return err
	}
	return a.emit(undoResult{Force: *force, Removed: n}, func(p *ui.Printer) {
		if n == 0 {
			p.Warning("No statement lines removed")
			return
		}
		p.Success(fmt.Sprintf("%d statement line(s) removed", n))
	})
}

func cmdMonth(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "month")
	month := fs.String("month", "", "Month YYYY-MM (default: current)")
	if err := parse(fs, args); err != nil {
		return err
	}
	m, err := parseMonth(*month)
	if err != nil {
		return err
	}
	summary, err := a.engine.MonthSummary(ctx, m)
	if err != nil {
		return err
	}
	return a.emit(summary, func(p *ui.Printer) { p.MonthSummary(summary) })
}

func cmdCheck(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "check")
	if err := parse(fs, args); err != nil {
		return err
	}
	result, err := validate.Ledger(ctx, a.store)
	if err != nil {
		return err
	}
	if err := a.emit(result, func(p *ui.Printer) { p.Validation(result) }); err != nil {
		return err
	}
	if !result.OK() {
		return exitCode(1)
	}
	return nil
}

func cmdServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet(a, "serve")
	addr := fs.String("addr", a.cfg.Server.Addr, "Listen address")
	if err := parse(fs, args); err != nil {
		return err
	}
	srv := server.New(server.Deps{
		Ledger:   a.ledger,
		Importer: a.importer,
		Engine:   a.engine,
		Tolerance: reconcile.Tolerance{
			Days:  a.cfg.Reconcile.ToleranceDays,
			Value: a.cfg.ToleranceValue(),
		},
	}, a.log)
	return srv.ListenAndServe(ctx, *addr)
}
