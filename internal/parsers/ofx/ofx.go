// Package ofx provides structured OFX/QFX statement parsing backed by ofxgo
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
)

// Parser implements OFX/QFX parsing. It holds no state and is safe for concurrent use.
type Parser struct{}

var parserInstance = &Parser{}

// NewParser returns the shared OFX parser instance.
func NewParser() *Parser {
	return parserInstance
}

// Name returns the parser identifier
func (p *Parser) Name() string {
	return "ofx"
}

// CanParse checks the header for OFX markers (both v1 SGML and v2 XML formats).
// A non-empty name must carry an .ofx or .qfx extension.
func (p *Parser) CanParse(name string, header []byte) bool {
	if name != "" {
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".ofx" && ext != ".qfx" {
			return false
		}
	}
	return HasMarker(header)
}

// HasMarker reports whether header contains an OFX header or root element
func HasMarker(header []byte) bool {
	upper := bytes.ToUpper(header)
	return bytes.Contains(upper, []byte("OFXHEADER")) ||
		bytes.Contains(upper, []byte("<?OFX")) ||
		bytes.Contains(upper, []byte("<OFX>"))
}

// Parse extracts statement records from OFX content.
// The raw bytes are tried first and the decoded text second, since some
// banks declare a charset that does not match the bytes they send.
func (p *Parser) Parse(ctx context.Context, in parser.Input) (*parser.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(in.Raw))
	if err != nil {
		if in.Text == "" {
			return nil, fmt.Errorf("failed to parse OFX content (%d bytes): %w", len(in.Raw), err)
		}
		var textErr error
		response, textErr = ofxgo.ParseResponse(strings.NewReader(in.Text))
		if textErr != nil {
			return nil, fmt.Errorf("failed to parse OFX content (%d bytes): %w", len(in.Raw), err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt := &parser.Statement{}
	found := false

	for i, msg := range response.CreditCard {
		ccStmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert credit card statement %d: expected *ofxgo.CCStatementResponse, got %T", i, msg)
		}
		found = true
		if stmt.AccountID == "" {
			stmt.AccountID = ccStmt.CCAcctFrom.AcctID.String()
		}
		p.collect(ctx, stmt, ccStmt.BankTranList)
	}

	for i, msg := range response.Bank {
		bankStmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("failed to type assert bank statement %d: expected *ofxgo.StatementResponse, got %T", i, msg)
		}
		found = true
		if stmt.AccountID == "" {
			stmt.AccountID = bankStmt.BankAcctFrom.AcctID.String()
		}
		p.collect(ctx, stmt, bankStmt.BankTranList)
	}

	if !found {
		return nil, fmt.Errorf("no supported statement type found in OFX content. Expected credit card (CREDITCARDMSGSRSV1) or bank (BANKMSGSRSV1) statement (creditcard: %d, bank: %d, investment: %d)",
			len(response.CreditCard), len(response.Bank), len(response.InvStmt))
	}

	return stmt, nil
}

// collect appends the transactions of one statement, recording skips for unusable entries
func (p *Parser) collect(ctx context.Context, stmt *parser.Statement, tranList *ofxgo.TransactionList) {
	if tranList == nil {
		return
	}

	base := len(stmt.Records) + len(stmt.Skips)
	for i, txn := range tranList.Transactions {
		rec, err := extractTransaction(ctx, txn)
		if err != nil {
			stmt.Skips = append(stmt.Skips, parser.Skip{Index: base + i, Reason: err.Error()})
			continue
		}
		stmt.Records = append(stmt.Records, *rec)
	}
}

// extractTransaction converts one OFX transaction into a record.
// The FITID is kept as is; records without one get a synthetic id downstream.
func extractTransaction(ctx context.Context, txn ofxgo.Transaction) (*parser.Record, error) {
	id := strings.TrimSpace(txn.FiTID.String())

	date := txn.DtPosted.Time
	if date.IsZero() {
		return nil, fmt.Errorf("transaction %q missing posted date", id)
	}

	description := strings.TrimSpace(txn.Name.String() + " " + txn.Memo.String())

	// Float64 reports whether the value was exactly representable; cent
	// amounts always round back correctly, so inexact values only get logged.
	f, exact := txn.TrnAmt.Float64()
	if !exact {
		zerolog.Ctx(ctx).Debug().Str("fitid", id).Str("amount", txn.TrnAmt.String()).Msg("OFX amount not exactly representable")
	}

	rec, err := parser.NewRecord(id, date, description, decimal.NewFromFloat(f))
	if err != nil {
		return nil, fmt.Errorf("failed to create record %q: %w", id, err)
	}
	return rec, nil
}
