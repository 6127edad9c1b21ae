// Package csv provides delimited statement export parsing
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
	"github.com/rumor-ml/commons.systems/cardledger/internal/transform"
)

// Parser implements CSV statement parsing. It holds no state and is safe for concurrent use.
//
// The first row must be a header naming at least a date, a description and an
// amount column. Comma and semicolon delimiters are both accepted.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared CSV parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "csv"
}

// column aliases, matched after lower-casing and accent folding of the header
var (
	dateHeaders   = []string{"date", "data", "dt", "data lancamento", "data movimento"}
	descHeaders   = []string{"description", "descricao", "historico", "lancamento", "estabelecimento", "memo"}
	amountHeaders = []string{"amount", "valor", "value", "valor (r$)"}
	idHeaders     = []string{"id", "fitid", "documento", "identificador", "reference"}
)

// dateLayouts are tried in order for each row
var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", "02-01-2006", "20060102"}

type columns struct {
	date, desc, amount, id int
}

// CanParse checks the extension (when a name is given) and that the first
// line is a header with the required columns
func (p *Parser) CanParse(name string, header []byte) bool {
	if name != "" && strings.ToLower(filepath.Ext(name)) != ".csv" {
		return false
	}

	line := header
	if i := bytes.IndexAny(header, "\r\n"); i >= 0 {
		line = header[:i]
	}
	if len(bytes.TrimSpace(line)) == 0 {
		return false
	}

	r := newReader(string(line), detectDelimiter(string(line)))
	record, err := r.Read()
	if err != nil {
		return false
	}
	_, err = mapColumns(record)
	return err == nil
}

// Parse extracts records from the CSV text. Rows with an unreadable date or
// amount are reported as skips.
func (p *Parser) Parse(ctx context.Context, in parser.Input) (*parser.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimPrefix(in.Text, "\ufeff")
	firstLine := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		firstLine = text[:i]
	}

	records, err := newReader(text, detectDelimiter(firstLine)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("CSV content is empty")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse header row: %w", err)
	}

	stmt := &parser.Statement{}
	for i, record := range records[1:] {
		// Skip empty rows
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		rec, err := p.parseRow(record, cols)
		if err != nil {
			stmt.Skips = append(stmt.Skips, parser.Skip{Index: i, Reason: fmt.Sprintf("row %d: %v", i+2, err)})
			continue
		}
		stmt.Records = append(stmt.Records, *rec)
	}

	return stmt, nil
}

func (p *Parser) parseRow(record []string, cols columns) (*parser.Record, error) {
	get := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(get(cols.date))
	if err != nil {
		return nil, err
	}

	amount, err := parser.ParseAmountStrict(get(cols.amount))
	if err != nil {
		return nil, err
	}

	return parser.NewRecord(get(cols.id), date, get(cols.desc), amount)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date cannot be empty")
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func mapColumns(header []string) (columns, error) {
	cols := columns{date: -1, desc: -1, amount: -1, id: -1}
	for i, h := range header {
		key := foldHeader(h)
		switch {
		case cols.date < 0 && contains(dateHeaders, key):
			cols.date = i
		case cols.desc < 0 && contains(descHeaders, key):
			cols.desc = i
		case cols.amount < 0 && contains(amountHeaders, key):
			cols.amount = i
		case cols.id < 0 && contains(idHeaders, key):
			cols.id = i
		}
	}

	var missing []string
	if cols.date < 0 {
		missing = append(missing, "date")
	}
	if cols.desc < 0 {
		missing = append(missing, "description")
	}
	if cols.amount < 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// foldHeader lower-cases a header and strips its accents
func foldHeader(h string) string {
	return transform.Fold(strings.TrimPrefix(h, "\ufeff"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// detectDelimiter picks ';' when the line has more semicolons than commas
func detectDelimiter(line string) rune {
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

func newReader(text string, delim rune) *csv.Reader {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return r
}
