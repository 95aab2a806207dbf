package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/arthaledger/bankfeed/internal/categorize"
	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/logger"
	"github.com/arthaledger/bankfeed/internal/registry"
	"github.com/arthaledger/bankfeed/internal/rules"
	"github.com/arthaledger/bankfeed/internal/store"
)

const sampleCSV = `Date,Details,Ref No,Debit,Credit,Balance
01/04/2025,NEFT RENT APRIL,UTR1,"25,000.00",,"75,000.00"
05/04/2025,SALARY CREDIT APR,UTR2,,"85,000.00","1,60,000.00"
07/04/2025,ATM WDL MUMBAI,,"5,000.00",,"1,55,000.00"
`

func newService(t *testing.T) (*Service, *store.Store, *domain.BankAccount) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	a := &domain.BankAccount{Name: "Current Account", OpeningBalance: 10000000, CurrentBalance: 10000000, IsActive: true}
	if err := st.CreateAccount(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	svc := New(st, registry.New(), nil, logger.NewWithWriter(io.Discard))
	return svc, st, a
}

func TestCheckUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int64
		ok       bool
	}{
		{"csv", "statement.csv", 1024, true},
		{"xlsx", "statement.XLSX", 1024, true},
		{"pdf", "statement.pdf", 1024, true},
		{"exe rejected", "statement.exe", 1024, false},
		{"no extension", "statement", 1024, false},
		{"too large", "statement.csv", MaxUploadBytes + 1, false},
		{"at limit", "statement.csv", MaxUploadBytes, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUpload(tt.filename, tt.size)
			if tt.ok && err != nil {
				t.Errorf("CheckUpload() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("CheckUpload() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestImportStatement(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()

	res, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatalf("ImportStatement() error = %v", err)
	}
	if res.Imported != 3 || res.Skipped != 0 || res.Total != 3 {
		t.Errorf("imported/skipped/total = %d/%d/%d, want 3/0/3", res.Imported, res.Skipped, res.Total)
	}
	if res.BatchID == "" {
		t.Error("batch id not assigned")
	}
	if res.DetectedFormat != "GENERIC" {
		t.Errorf("DetectedFormat = %q", res.DetectedFormat)
	}

	// opening 100000.00 - 25000 + 85000 - 5000 = 155000.00
	if res.Balance != 15500000 {
		t.Errorf("balance = %d, want 15500000", res.Balance)
	}
	acct, _ := st.GetAccount(ctx, a.ID)
	if acct.CurrentBalance != 15500000 {
		t.Errorf("stored balance = %d", acct.CurrentBalance)
	}

	txns, err := st.ListTransactionsByBatch(ctx, res.BatchID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 3 {
		t.Fatalf("batch rows = %d", len(txns))
	}
	if txns[0].CategorizationStatus != domain.StatusUncategorized {
		t.Errorf("status = %q", txns[0].CategorizationStatus)
	}
}

func TestImportStatementSkipsDuplicates(t *testing.T) {
	svc, _, a := newService(t)
	ctx := context.Background()

	if _, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", ""); err != nil {
		t.Fatal(err)
	}

	// Re-importing the same file suppresses every row.
	res, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatalf("second import error = %v", err)
	}
	if res.Imported != 0 || res.Skipped != 3 || res.Total != 3 {
		t.Errorf("imported/skipped/total = %d/%d/%d, want 0/3/3", res.Imported, res.Skipped, res.Total)
	}
	// Balance unchanged by a fully duplicate import.
	if res.Balance != 15500000 {
		t.Errorf("balance = %d", res.Balance)
	}
}

func TestImportStatementUnknownAccount(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.ImportStatement(context.Background(), 404, []byte(sampleCSV), "statement.csv", "")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestImportStatementParseFailure(t *testing.T) {
	svc, _, a := newService(t)
	_, err := svc.ImportStatement(context.Background(), a.ID, []byte("no header here"), "statement.csv", "")
	if !errors.Is(err, domain.ErrParseFailure) {
		t.Fatalf("error = %v, want ErrParseFailure", err)
	}
}

func TestPreview(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	fileWithDup := sampleCSV + `01/04/2025,NEFT RENT APRIL,UTR1,"25,000.00",,"75,000.00"` + "\n"
	p, err := svc.Preview(ctx, []byte(fileWithDup), "statement.csv", "")
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if len(p.Rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(p.Rows))
	}
	if p.Rows[0].DuplicateInFile {
		t.Error("first occurrence flagged as duplicate")
	}
	if !p.Rows[3].DuplicateInFile {
		t.Error("repeated row not flagged")
	}
	if p.Mapping.Source == nil {
		t.Error("mapping source missing")
	}

	// Preview must not write anything.
	dep, wd, err := st.SumTransactionAmounts(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if dep != 0 || wd != 0 {
		t.Error("preview persisted transactions")
	}
}

func TestPreviewAnnotatesCategories(t *testing.T) {
	engine, err := rules.NewEngine([]rules.Rule{
		{Pattern: "salary", Category: domain.CategoryOtherIncome},
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	svc := New(st, registry.New(), engine, logger.NewWithWriter(io.Discard))

	p, err := svc.Preview(context.Background(), []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.Rows[1].Category != domain.CategoryOtherIncome {
		t.Errorf("salary row category = %q", p.Rows[1].Category)
	}
	if p.Rows[0].Category != "" {
		t.Errorf("unmatched row category = %q", p.Rows[0].Category)
	}
}

func TestAddManual(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()

	txn := &domain.BankTransaction{
		BankAccountID:   a.ID,
		TransactionDate: "2025-04-10",
		Description:     "CASH DEPOSIT",
		DepositAmount:   500000,
	}
	if err := svc.AddManual(ctx, txn); err != nil {
		t.Fatalf("AddManual() error = %v", err)
	}
	if txn.ValueDate != "2025-04-10" {
		t.Errorf("value date not defaulted: %q", txn.ValueDate)
	}
	acct, _ := st.GetAccount(ctx, a.ID)
	if acct.CurrentBalance != 10500000 {
		t.Errorf("balance = %d", acct.CurrentBalance)
	}
}

func TestAddManualValidation(t *testing.T) {
	svc, _, a := newService(t)
	ctx := context.Background()

	bad := []*domain.BankTransaction{
		{BankAccountID: a.ID, TransactionDate: "2025-04-10", Description: "both sides", DepositAmount: 100, WithdrawalAmount: 100},
		{BankAccountID: a.ID, TransactionDate: "2025-04-10", Description: "neither side"},
		{BankAccountID: a.ID, Description: "no date", DepositAmount: 100},
	}
	for _, txn := range bad {
		if err := svc.AddManual(ctx, txn); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("AddManual(%q) = %v, want ErrValidation", txn.Description, err)
		}
	}
}

func TestDeleteBatch(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()

	res, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatal(err)
	}

	// Reconcile one row; the undo must keep it.
	txns, _ := st.ListTransactionsByBatch(ctx, res.BatchID)
	if err := st.SetTransactionReconciled(ctx, txns[1].ID, true); err != nil {
		t.Fatal(err)
	}

	del, err := svc.DeleteBatch(ctx, a.ID, res.BatchID)
	if err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if del.Deleted != 2 || del.Kept != 1 {
		t.Errorf("deleted/kept = %d/%d, want 2/1", del.Deleted, del.Kept)
	}

	// opening 100000 + the kept 85000 deposit
	if del.Balance != 18500000 {
		t.Errorf("balance = %d, want 18500000", del.Balance)
	}

	remaining, _ := st.ListTransactionsByBatch(ctx, res.BatchID)
	if len(remaining) != 1 || !remaining[0].IsReconciled {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestDeleteBatchReversesCategorized(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()
	cat := categorize.New(st, logger.NewWithWriter(io.Discard))

	res, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatal(err)
	}
	txns, _ := st.ListTransactionsByBatch(ctx, res.BatchID)

	// The salary deposit becomes a customer payment with an unallocated
	// payment record hanging off it.
	err = cat.Categorize(ctx, txns[1].ID, categorize.Request{Category: domain.CategoryCustomerPayment, CustomerID: 7})
	if err != nil {
		t.Fatal(err)
	}

	del, err := svc.DeleteBatch(ctx, a.ID, res.BatchID)
	if err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if del.Deleted != 3 {
		t.Errorf("deleted = %d, want 3", del.Deleted)
	}
	if _, err := st.GetPaymentByTransaction(ctx, txns[1].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("payment not unwound: %v", err)
	}
}

func TestDeleteCategorizedTransaction(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()
	cat := categorize.New(st, logger.NewWithWriter(io.Discard))

	txn := &domain.BankTransaction{
		BankAccountID:   a.ID,
		TransactionDate: "2025-04-10",
		Description:     "ADVANCE RECEIVED",
		DepositAmount:   300000,
	}
	if err := svc.AddManual(ctx, txn); err != nil {
		t.Fatal(err)
	}
	err := cat.Categorize(ctx, txn.ID, categorize.Request{Category: domain.CategoryCustomerPayment, CustomerID: 7})
	if err != nil {
		t.Fatal(err)
	}

	// An unreconciled categorized transaction is deletable; its payment
	// goes with it and the balance is recomputed.
	if err := svc.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	if _, err := st.GetTransaction(ctx, txn.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("transaction not deleted")
	}
	if _, err := st.GetPaymentByTransaction(ctx, txn.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("payment not unwound: %v", err)
	}
	acct, _ := st.GetAccount(ctx, a.ID)
	if acct.CurrentBalance != 10000000 {
		t.Errorf("balance = %d, want opening restored", acct.CurrentBalance)
	}
}

func TestDeleteBatchUnknown(t *testing.T) {
	svc, _, a := newService(t)
	_, err := svc.DeleteBatch(context.Background(), a.ID, "no-such-batch")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteTransactionGuards(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()

	res, err := svc.ImportStatement(ctx, a.ID, []byte(sampleCSV), "statement.csv", "")
	if err != nil {
		t.Fatal(err)
	}
	txns, _ := st.ListTransactionsByBatch(ctx, res.BatchID)

	if err := st.SetTransactionReconciled(ctx, txns[0].ID, true); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteTransaction(ctx, txns[0].ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("reconciled delete = %v, want ErrConflict", err)
	}

	if err := svc.DeleteTransaction(ctx, txns[2].ID); err != nil {
		t.Errorf("plain delete error = %v", err)
	}
	if _, err := st.GetTransaction(ctx, txns[2].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("transaction not deleted")
	}
}

func TestRecomputeBalance(t *testing.T) {
	svc, st, a := newService(t)
	ctx := context.Background()

	// Drift the stored balance, then recompute from scratch.
	if err := st.UpdateAccountBalance(ctx, a.ID, 1); err != nil {
		t.Fatal(err)
	}
	bal, err := svc.RecomputeBalance(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if bal != 10000000 {
		t.Errorf("balance = %d, want opening 10000000", bal)
	}
}

func TestImportPerRowDedupWithinFile(t *testing.T) {
	svc, _, a := newService(t)
	ctx := context.Background()

	// The same row twice in one file: the second insert sees the first one
	// inside the same transaction and is skipped.
	doubled := "Date,Details,Ref No,Debit,Credit\n" +
		strings.Repeat(`01/04/2025,NEFT RENT,UTR1,"25,000.00",`+"\n", 2)
	res, err := svc.ImportStatement(ctx, a.ID, []byte(doubled), "statement.csv", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Skipped != 1 {
		t.Errorf("imported/skipped = %d/%d, want 1/1", res.Imported, res.Skipped)
	}
}
