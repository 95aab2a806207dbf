package pdfstmt

import (
	"strings"
	"testing"

	"github.com/arthaledger/bankfeed/internal/money"
)

func TestCanParse(t *testing.T) {
	a := New()
	if !a.CanParse("statement.pdf", []byte("%PDF-1.7 rest")) {
		t.Error("pdf magic should be accepted")
	}
	if a.CanParse("statement.pdf", []byte("not a pdf")) {
		t.Error("missing magic should be rejected")
	}
	if a.CanParse("statement.csv", []byte("%PDF-1.7")) {
		t.Error("wrong extension should be rejected")
	}
}

func TestNormalizeLinesThreeAmountColumns(t *testing.T) {
	lines := []string{
		"Account Statement April 2025",
		"Date Particulars Withdrawal Deposit Balance",
		"01/04/2025 NEFT RENT APRIL 25,000.00 0.00 1,75,000.00",
		"05/04/2025 SALARY CREDIT 0.00 85,000.00 2,60,000.00",
		"Closing Balance 2,60,000.00",
	}
	stmt := normalizeLines(lines)
	if len(stmt.Rows) != 2 {
		t.Fatalf("got %d rows, want 2: %v", len(stmt.Rows), stmt.Warnings)
	}

	r0 := stmt.Rows[0]
	if r0.TransactionDate != "2025-04-01" {
		t.Errorf("row 0 date = %q", r0.TransactionDate)
	}
	if r0.Withdrawal != 2500000 || r0.Deposit != 0 {
		t.Errorf("row 0 amounts = dep %d wd %d", r0.Deposit, r0.Withdrawal)
	}
	if r0.Description != "NEFT RENT APRIL" {
		t.Errorf("row 0 description = %q", r0.Description)
	}
	if stmt.Rows[1].Deposit != 8500000 {
		t.Errorf("row 1 deposit = %d", stmt.Rows[1].Deposit)
	}
}

// Two amount columns: the side comes from the running balance direction.
func TestNormalizeLinesTwoAmountColumns(t *testing.T) {
	lines := []string{
		"01/04/2025 OPENING CREDIT 10,000.00 10,000.00",
		"02/04/2025 POS PURCHASE 1,500.00 8,500.00",
		"03/04/2025 INTEREST 100.00 8,600.00",
	}
	stmt := normalizeLines(lines)
	if len(stmt.Rows) != 3 {
		t.Fatalf("got %d rows, want 3: %v", len(stmt.Rows), stmt.Warnings)
	}
	if stmt.Rows[1].Withdrawal != 150000 {
		t.Errorf("falling balance should mean withdrawal, got dep %d wd %d",
			stmt.Rows[1].Deposit, stmt.Rows[1].Withdrawal)
	}
	if stmt.Rows[2].Deposit != 10000 {
		t.Errorf("rising balance should mean deposit, got dep %d wd %d",
			stmt.Rows[2].Deposit, stmt.Rows[2].Withdrawal)
	}
}

func TestNormalizeLinesThreeTokenDate(t *testing.T) {
	lines := []string{
		"01 Apr 2025 CASH DEPOSIT COUNTER 0.00 5,000.00 15,000.00",
	}
	stmt := normalizeLines(lines)
	if len(stmt.Rows) != 1 {
		t.Fatalf("got %d rows, want 1: %v", len(stmt.Rows), stmt.Warnings)
	}
	if stmt.Rows[0].TransactionDate != "2025-04-01" {
		t.Errorf("date = %q", stmt.Rows[0].TransactionDate)
	}
	if stmt.Rows[0].Description != "CASH DEPOSIT COUNTER" {
		t.Errorf("description = %q", stmt.Rows[0].Description)
	}
}

func TestNormalizeLinesAmbiguousBothSides(t *testing.T) {
	lines := []string{
		"01/04/2025 WEIRD ROW 100.00 200.00 5,000.00",
	}
	stmt := normalizeLines(lines)
	if len(stmt.Rows) != 0 {
		t.Fatalf("ambiguous row should be skipped, got %d rows", len(stmt.Rows))
	}
	if len(stmt.Warnings) != 1 || !strings.Contains(stmt.Warnings[0].Message, "ambiguous") {
		t.Errorf("warnings = %v", stmt.Warnings)
	}
}

func TestTrailingAmounts(t *testing.T) {
	amounts, rest := trailingAmounts([]string{"NEFT", "RENT", "25,000.00", "0.00", "1,75,000.00"})
	if len(amounts) != 3 {
		t.Fatalf("got %d amounts, want 3", len(amounts))
	}
	if amounts[0] != money.Paise(2500000) {
		t.Errorf("amounts[0] = %d", amounts[0])
	}
	if len(rest) != 2 || rest[0] != "NEFT" {
		t.Errorf("rest = %v", rest)
	}
}

func TestLooksNumeric(t *testing.T) {
	tests := []struct {
		tok  string
		want bool
	}{
		{"25,000.00", true},
		{"0.00", true},
		{"-1.50", true},
		{"2025", false},    // no decimal point: year or reference
		{"UTR1234", false}, // letters
		{"...", false},     // no digit
	}
	for _, tt := range tests {
		if got := looksNumeric(tt.tok); got != tt.want {
			t.Errorf("looksNumeric(%q) = %v, want %v", tt.tok, got, tt.want)
		}
	}
}
