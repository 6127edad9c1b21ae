// Package sgml is a forgiving OFX reader that scans <STMTTRN> blocks with
// regular expressions. It handles files the structured parser rejects, such
// as SGML with unclosed tags, missing FITIDs or comma-decimal amounts.
package sgml

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rumor-ml/commons.systems/cardledger/internal/dedup"
	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
)

// leafTags are the single-value tags read from the document
var leafTags = []string{"DTPOSTED", "TRNAMT", "NAME", "MEMO", "FITID", "ACCTID"}

var (
	blockPattern = regexp.MustCompile(`(?is)<STMTTRN>(.+?)</STMTTRN>`)

	// unclosed matches "<TAG>value" up to the next tag or line end
	unclosed = map[string]*regexp.Regexp{}
	field    = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range leafTags {
		unclosed[tag] = regexp.MustCompile(`(?i)<` + tag + `>([^<\n\r]+)`)
		field[tag] = regexp.MustCompile(`(?is)<` + tag + `>(.*?)</` + tag + `>`)
	}
}

// Parser implements the tag-scanning fallback. It holds no state.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared tag-scanning parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "sgml"
}

// CanParse accepts OFX-looking content or anything with a transaction block opener
func (p *Parser) CanParse(name string, header []byte) bool {
	upper := bytes.ToUpper(header)
	return bytes.Contains(upper, []byte("<STMTTRN>")) ||
		bytes.Contains(upper, []byte("OFXHEADER")) ||
		bytes.Contains(upper, []byte("<OFX>"))
}

// Parse scans in.Text for transaction blocks.
// Blocks without a parseable date are skipped; unparseable amounts become zero.
func (p *Parser) Parse(ctx context.Context, in parser.Input) (*parser.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := Normalize(in.Text)
	stmt := &parser.Statement{AccountID: strings.TrimSpace(firstGroup(field["ACCTID"], text))}

	for i, m := range blockPattern.FindAllStringSubmatch(text, -1) {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec, err := parseBlock(m[1])
		if err != nil {
			stmt.Skips = append(stmt.Skips, parser.Skip{Index: i, Reason: err.Error()})
			continue
		}
		stmt.Records = append(stmt.Records, *rec)
	}

	return stmt, nil
}

// Normalize closes the leaf tags SGML-style OFX leaves open, so that
// "<TRNAMT>-10,00" becomes "<TRNAMT>-10,00</TRNAMT>".
func Normalize(text string) string {
	for _, tag := range leafTags {
		text = unclosed[tag].ReplaceAllString(text, "<"+tag+">${1}</"+tag+">")
	}
	return text
}

func parseBlock(block string) (*parser.Record, error) {
	get := func(tag string) string {
		return strings.TrimSpace(firstGroup(field[tag], block))
	}

	date, err := parser.ParseCompactDate(get("DTPOSTED"))
	if err != nil {
		return nil, fmt.Errorf("invalid DTPOSTED: %w", err)
	}

	amount := parser.ParseAmount(get("TRNAMT"))
	description := strings.TrimSpace(get("NAME") + " " + get("MEMO"))

	id := get("FITID")
	if id == "" {
		id = dedup.SyntheticID(date, amount, description)
	}

	return parser.NewRecord(id, date, description, amount)
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1]
}
