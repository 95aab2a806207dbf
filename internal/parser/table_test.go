package parser

import (
	"strings"
	"testing"
)

func TestFindHeaderSkipsPreamble(t *testing.T) {
	table := [][]string{
		{"DETAILED STATEMENT"},
		{"Account Holder", "Mr. Sharma"},
		{""},
		{"Txn Date", "Value Date", "Description", "Ref No./Cheque No.", "Debit", "Credit", "Balance"},
		{"1 Apr 2025", "1 Apr 2025", "NEFT CR", "UTR123", "", "5000.00", "15000.00"},
	}
	idx, profile, mapping, err := FindHeader(table)
	if err != nil {
		t.Fatalf("FindHeader() error = %v", err)
	}
	if idx != 3 {
		t.Errorf("header index = %d, want 3", idx)
	}
	if profile.Name != "SBI" {
		t.Errorf("profile = %s, want SBI", profile.Name)
	}
	if !mapping.Usable() {
		t.Error("mapping not usable")
	}
}

func TestFindHeaderNoHeader(t *testing.T) {
	_, _, _, err := FindHeader([][]string{{"just"}, {"noise"}})
	if err == nil {
		t.Fatal("expected error for table without header")
	}
	if !strings.Contains(err.Error(), "no recognizable statement header") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNormalizeTable(t *testing.T) {
	header := []string{"Date", "Details", "Ref No", "Debit", "Credit", "Balance"}
	table := [][]string{
		header,
		{"01/04/2025", "UPI/merchant/payment", "REF1", "1,200.00", "", "8,800.00"},
		{"02/04/2025", "SALARY CREDIT", "REF2", "", "50,000.00", "58,800.00"},
		{"", "", "", "", "", ""},
		{"03/04/2025", "ANNUAL CHARGES", "REF3", "", "", "58,800.00"},
		{"Total", "", "", "1,200.00", "50,000.00", ""},
	}
	_, profile, mapping, err := FindHeader(table)
	if err != nil {
		t.Fatal(err)
	}

	stmt := NormalizeTable(table, 1, 0, profile, mapping)
	if len(stmt.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(stmt.Rows))
	}

	r0 := stmt.Rows[0]
	if r0.TransactionDate != "2025-04-01" {
		t.Errorf("row 0 date = %q", r0.TransactionDate)
	}
	if r0.Withdrawal != 120000 || r0.Deposit != 0 {
		t.Errorf("row 0 amounts = %d/%d", r0.Deposit, r0.Withdrawal)
	}
	if r0.Balance != 880000 {
		t.Errorf("row 0 balance = %d", r0.Balance)
	}
	if r0.ReferenceNumber != "REF1" {
		t.Errorf("row 0 reference = %q", r0.ReferenceNumber)
	}

	if stmt.Rows[1].Deposit != 5000000 {
		t.Errorf("row 1 deposit = %d", stmt.Rows[1].Deposit)
	}

	// The zero-amount row is skipped with a warning; the footer silently.
	if len(stmt.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %v", len(stmt.Warnings), stmt.Warnings)
	}
	if !strings.Contains(stmt.Warnings[0].Message, "zero amount") {
		t.Errorf("warning = %q", stmt.Warnings[0].Message)
	}
}

func TestNormalizeTableIndicatorColumn(t *testing.T) {
	table := [][]string{
		{"Date", "Description", "Chq / Ref No", "Amount", "Dr / Cr", "Balance"},
		{"01-04-2025", "IMPS PAYMENT", "", "2,500.00", "DR", "7,500.00"},
		{"02-04-2025", "INTEREST", "", "125.50", "CR", "7,625.50"},
	}
	_, profile, mapping, err := FindHeader(table)
	if err != nil {
		t.Fatal(err)
	}
	if profile.Name != "KOTAK" {
		t.Fatalf("profile = %s, want KOTAK", profile.Name)
	}

	stmt := NormalizeTable(table, 1, 0, profile, mapping)
	if len(stmt.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(stmt.Rows))
	}
	if stmt.Rows[0].Withdrawal != 250000 {
		t.Errorf("DR row withdrawal = %d", stmt.Rows[0].Withdrawal)
	}
	if stmt.Rows[1].Deposit != 12550 {
		t.Errorf("CR row deposit = %d", stmt.Rows[1].Deposit)
	}
}

func TestNormalizeTableNegativeAmountColumn(t *testing.T) {
	table := [][]string{
		{"Date", "Description", "Amount", "Balance"},
		{"2025-04-01", "CARD PAYMENT", "-999.00", "1.00"},
		{"2025-04-02", "REFUND", "499.00", "500.00"},
	}
	_, profile, mapping, err := FindHeader(table)
	if err != nil {
		t.Fatal(err)
	}
	stmt := NormalizeTable(table, 1, 0, profile, mapping)
	if len(stmt.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(stmt.Rows))
	}
	if stmt.Rows[0].Withdrawal != 99900 {
		t.Errorf("negative amount should land in withdrawal, got %d", stmt.Rows[0].Withdrawal)
	}
	if stmt.Rows[1].Deposit != 49900 {
		t.Errorf("positive amount should land in deposit, got %d", stmt.Rows[1].Deposit)
	}
}

func TestNormalizeTableBadDateWarns(t *testing.T) {
	table := [][]string{
		{"Date", "Description", "Debit", "Credit"},
		{"??", "MYSTERY", "10.00", ""},
		{"2025-04-01", "OK ROW", "10.00", ""},
	}
	_, profile, mapping, err := FindHeader(table)
	if err != nil {
		t.Fatal(err)
	}
	stmt := NormalizeTable(table, 1, 0, profile, mapping)
	if len(stmt.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(stmt.Rows))
	}
	if len(stmt.Warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(stmt.Warnings))
	}
}
