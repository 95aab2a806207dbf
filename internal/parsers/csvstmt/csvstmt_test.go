package csvstmt

import (
	"context"
	"strings"
	"testing"

	"github.com/arthaledger/bankfeed/internal/parser"
)

const iciciSample = `DETAILED STATEMENT,,,,,,,
Account Number,000401XXXXXX,,,,,,
,,,,,,,
S No.,Value Date,Transaction Date,Cheque Number,Transaction Remarks,Withdrawal Amount (INR ),Deposit Amount (INR ),Balance (INR )
1,01/04/2025,01/04/2025,,NEFT-AXISCN0123456789-RENT APRIL,"25,000.00",0.00,"1,75,000.00"
2,03/04/2025,03/04/2025,,UPI/505812345678/PAYMENT/merchant@okhdfc,"1,250.50",0.00,"1,73,749.50"
3,05/04/2025,05/04/2025,,INF/INFT/012345678901/SALARY APR,0.00,"85,000.00","2,58,749.50"
`

func iciciAdapter() *Adapter {
	p, ok := parser.ProfileByName("ICICI")
	if !ok {
		panic("ICICI profile missing")
	}
	return New(p)
}

func TestCanParse(t *testing.T) {
	icici := iciciAdapter()
	hdfcProfile, _ := parser.ProfileByName("HDFC")
	hdfc := New(hdfcProfile)

	if !icici.CanParse("statement.csv", []byte(iciciSample)) {
		t.Error("ICICI adapter should accept ICICI statement")
	}
	if hdfc.CanParse("statement.csv", []byte(iciciSample)) {
		t.Error("HDFC adapter should reject ICICI statement")
	}
	if icici.CanParse("statement.pdf", []byte(iciciSample)) {
		t.Error("non-csv extension should be rejected")
	}
	if icici.CanParse("statement.csv", []byte("random,cells\n1,2\n")) {
		t.Error("csv without ICICI header should be rejected")
	}
}

func TestParseICICI(t *testing.T) {
	stmt, err := iciciAdapter().Parse(context.Background(),
		strings.NewReader(iciciSample), parser.Metadata{Filename: "statement.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(stmt.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(stmt.Rows))
	}

	r0 := stmt.Rows[0]
	if r0.TransactionDate != "2025-04-01" {
		t.Errorf("row 0 date = %q", r0.TransactionDate)
	}
	if r0.Withdrawal != 2500000 || r0.Deposit != 0 {
		t.Errorf("row 0 amounts = dep %d wd %d", r0.Deposit, r0.Withdrawal)
	}
	if r0.Balance != 17500000 {
		t.Errorf("row 0 balance = %d", r0.Balance)
	}
	if !strings.HasPrefix(r0.Description, "NEFT-AXISCN") {
		t.Errorf("row 0 description = %q", r0.Description)
	}

	if stmt.Rows[2].Deposit != 8500000 {
		t.Errorf("row 2 deposit = %d", stmt.Rows[2].Deposit)
	}

	if stmt.Mapping.Source[parser.FieldDesc] != "Transaction Remarks" {
		t.Errorf("mapping source for description = %q", stmt.Mapping.Source[parser.FieldDesc])
	}
}

func TestParseGenericFallback(t *testing.T) {
	sample := "Date,Details,Debit,Credit,Balance\n" +
		"01/04/2025,POS PURCHASE,500.00,,9500.00\n" +
		"02/04/2025,CASH DEPOSIT,,2000.00,11500.00\n"

	a := NewGeneric()
	if !a.CanParse("export.csv", []byte(sample)) {
		t.Fatal("generic adapter should accept recognizable header")
	}

	stmt, err := a.Parse(context.Background(), strings.NewReader(sample), parser.Metadata{Filename: "export.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(stmt.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(stmt.Rows))
	}
	if stmt.Rows[0].Withdrawal != 50000 {
		t.Errorf("row 0 withdrawal = %d", stmt.Rows[0].Withdrawal)
	}
	if stmt.Rows[1].Deposit != 200000 {
		t.Errorf("row 1 deposit = %d", stmt.Rows[1].Deposit)
	}
}

func TestParseUTF8BOM(t *testing.T) {
	sample := "\xEF\xBB\xBFDate,Details,Debit,Credit\n01/04/2025,CHARGE,99.00,\n"
	stmt, err := NewGeneric().Parse(context.Background(), strings.NewReader(sample), parser.Metadata{Filename: "bom.csv"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(stmt.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(stmt.Rows))
	}
}

func TestParseNoHeader(t *testing.T) {
	_, err := iciciAdapter().Parse(context.Background(),
		strings.NewReader("a,b,c\n1,2,3\n"), parser.Metadata{Filename: "bad.csv"})
	if err == nil {
		t.Fatal("expected error for file without ICICI header")
	}
}
