package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
)

const sgmlHeader = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240101120000
<LANGUAGE>ENG
<FI>
<ORG>TESTBANK
<FID>12345
</FI>
</SONRS>
</SIGNONMSGSRSV1>
`

// bankOFX wraps STMTTRN blocks in a checking-account statement
func bankOFX(transactions string) string {
	return sgmlHeader + `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>BRL
<BANKACCTFROM>
<BANKID>341
<ACCTID>12345-6
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000
<DTEND>20240331235959
` + transactions + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>2000.00
<DTASOF>20240331235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`
}

// creditCardOFX wraps STMTTRN blocks in a credit card statement
func creditCardOFX(transactions string) string {
	return sgmlHeader + `<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>BRL
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240301000000
<DTEND>20240331235959
` + transactions + `</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240331235959
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`
}

func input(content string) parser.Input {
	return parser.Input{Name: "statement.ofx", Raw: []byte(content), Text: content}
}

func TestName(t *testing.T) {
	p := NewParser()
	if got := p.Name(); got != "ofx" {
		t.Errorf("Name() = %q, want %q", got, "ofx")
	}
}

func TestCanParse(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		header   string
		expected bool
	}{
		{"OFX file with OFXHEADER marker", "test.ofx", "OFXHEADER:100\nDATA:OFXSGML\n", true},
		{"OFX file with XML header", "test.ofx", "<?xml version=\"1.0\"?><?OFX OFXHEADER=\"200\"?>\n", true},
		{"OFX file with OFX tag", "test.ofx", "<OFX><SIGNONMSGSRSV1>", true},
		{"QFX extension uppercase", "test.QFX", "<?OFX OFXHEADER=\"200\"?>\n", true},
		{"lowercase marker", "test.ofx", "ofxheader:100", true},
		{"upload without name", "", "OFXHEADER:100", true},
		{"OFX extension without valid header", "test.ofx", "This is not OFX content", false},
		{"CSV file with OFX marker", "test.csv", "OFXHEADER:100", false},
		{"empty header", "test.ofx", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			got := p.CanParse(tt.path, []byte(tt.header))
			if got != tt.expected {
				t.Errorf("CanParse() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParse_SyntheticBankStatement(t *testing.T) {
	content := bankOFX(`<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305120000[-3:BRT]
<TRNAMT>-50.00
<FITID>TXN001
<NAME>PADARIA SAO JOSE
<MEMO>Compra cartao
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240315
<TRNAMT>1000.00
<FITID>TXN002
<NAME>SALARIO
</STMTTRN>
`)

	stmt, err := NewParser().Parse(context.Background(), input(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if stmt.AccountID != "12345-6" {
		t.Errorf("AccountID = %q, want %q", stmt.AccountID, "12345-6")
	}
	if len(stmt.Skips) != 0 {
		t.Errorf("Expected no skips, got %v", stmt.Skips)
	}
	if len(stmt.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(stmt.Records))
	}

	rec := stmt.Records[0]
	if rec.ExternalID != "TXN001" {
		t.Errorf("Records[0].ExternalID = %q, want %q", rec.ExternalID, "TXN001")
	}
	if rec.Description != "PADARIA SAO JOSE Compra cartao" {
		t.Errorf("Records[0].Description = %q, want name and memo joined", rec.Description)
	}
	if rec.Amount.StringFixed(2) != "-50.00" {
		t.Errorf("Records[0].Amount = %s, want -50.00", rec.Amount.StringFixed(2))
	}
	if !rec.Date.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Records[0].Date = %v, want 2024-03-05", rec.Date)
	}

	rec = stmt.Records[1]
	if rec.Description != "SALARIO" {
		t.Errorf("Records[1].Description = %q, want %q", rec.Description, "SALARIO")
	}
	if rec.Amount.StringFixed(2) != "1000.00" {
		t.Errorf("Records[1].Amount = %s, want 1000.00", rec.Amount.StringFixed(2))
	}
}

func TestParse_SyntheticCreditCard(t *testing.T) {
	content := creditCardOFX(`<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240310
<TRNAMT>-109.99
<FITID>CC001
<NAME>SUPERMERCADO
</STMTTRN>
<STMTTRN>
<TRNTYPE>PAYMENT
<DTPOSTED>20240320
<TRNAMT>500.00
<FITID>CC002
<MEMO>PAGAMENTO FATURA
</STMTTRN>
`)

	stmt, err := NewParser().Parse(context.Background(), input(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if stmt.AccountID != "4111111111111111" {
		t.Errorf("AccountID = %q, want card number", stmt.AccountID)
	}
	if len(stmt.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(stmt.Records))
	}
	if stmt.Records[0].Amount.StringFixed(2) != "-109.99" {
		t.Errorf("Records[0].Amount = %s, want -109.99", stmt.Records[0].Amount.StringFixed(2))
	}
	if stmt.Records[1].Description != "PAGAMENTO FATURA" {
		t.Errorf("Records[1].Description = %q, want memo only", stmt.Records[1].Description)
	}
}

func TestParse_FallsBackToDecodedText(t *testing.T) {
	content := bankOFX(`<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305
<TRNAMT>-12.00
<FITID>T1
<NAME>CAFE
</STMTTRN>
`)
	in := parser.Input{Raw: []byte("garbage that is not ofx"), Text: content}

	stmt, err := NewParser().Parse(context.Background(), in)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(stmt.Records) != 1 {
		t.Errorf("got %d records, want 1", len(stmt.Records))
	}
}

func TestParse_InvalidOFX(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Empty content", ""},
		{"Invalid XML", "<OFX><INVALID>"},
		{"Missing required fields", "OFXHEADER:100\n<OFX></OFX>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(context.Background(), input(tt.content))
			if err == nil {
				t.Error("Parse() expected error, got nil")
			}
		})
	}
}

func TestParse_TransactionMissingID(t *testing.T) {
	// ofxgo validates FITID and rejects the document; the importer then
	// retries with the tag-scanning parser.
	content := bankOFX(`<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240305
<TRNAMT>-50.00
<NAME>No ID Transaction
</STMTTRN>
`)

	_, err := NewParser().Parse(context.Background(), input(content))
	if err == nil {
		t.Fatal("Expected error for transaction without FITID, got nil")
	}
}

func TestParse_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser().Parse(ctx, input(bankOFX("")))
	if err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParse_EmptyTransactionList(t *testing.T) {
	stmt, err := NewParser().Parse(context.Background(), input(bankOFX("")))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(stmt.Records) != 0 {
		t.Errorf("got %d records, want 0", len(stmt.Records))
	}
}

func TestHasMarker(t *testing.T) {
	if !HasMarker([]byte("  <ofx>")) {
		t.Error("Expected lowercase root element to be detected")
	}
	if HasMarker([]byte("<STMTTRN>")) {
		t.Error("Expected bare transaction block not to count as OFX marker")
	}
	if !strings.Contains(sgmlHeader, "OFXHEADER") || !HasMarker([]byte(sgmlHeader)) {
		t.Error("Expected fixture header to be detected")
	}
}
