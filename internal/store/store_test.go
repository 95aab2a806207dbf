package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/money"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestAccount(t *testing.T, s *Store, opening money.Paise) *domain.BankAccount {
	t.Helper()
	a := &domain.BankAccount{Name: "Current Account", OpeningBalance: opening, CurrentBalance: opening, IsActive: true}
	if err := s.CreateAccount(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, s, 100000)
	got, err := s.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Name != "Current Account" || got.OpeningBalance != 100000 || !got.IsActive {
		t.Errorf("got %+v", got)
	}

	if err := s.UpdateAccountBalance(ctx, a.ID, 250000); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetAccount(ctx, a.ID)
	if got.CurrentBalance != 250000 {
		t.Errorf("CurrentBalance = %d, want 250000", got.CurrentBalance)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAccount(context.Background(), 99)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)

	txn := &domain.BankTransaction{
		BankAccountID:   a.ID,
		TransactionDate: "2025-04-01",
		ValueDate:       "2025-04-01",
		Description:     "NEFT RENT",
		ReferenceNumber: "UTR1",
		DepositAmount:   50000,
		ImportBatchID:   "batch-1",
	}
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}
	if txn.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := s.GetTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "NEFT RENT" || got.DepositAmount != 50000 {
		t.Errorf("got %+v", got)
	}
	if got.CategorizationStatus != domain.StatusUncategorized {
		t.Errorf("status = %q", got.CategorizationStatus)
	}

	got.Category = domain.CategoryExpense
	got.CategoryType = domain.DirectionWithdrawal
	got.CategorizationStatus = domain.StatusCategorized
	got.SubAccountID = 7
	if err := s.UpdateTransactionCategorization(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetTransaction(ctx, txn.ID)
	if got.Category != domain.CategoryExpense || got.SubAccountID != 7 {
		t.Errorf("categorization not persisted: %+v", got)
	}

	if err := s.SetTransactionReconciled(ctx, txn.ID, true); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetTransaction(ctx, txn.ID)
	if !got.IsReconciled {
		t.Error("IsReconciled not persisted")
	}

	if err := s.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTransaction(ctx, txn.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}

func TestSetReconciledNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetTransactionReconciled(context.Background(), 42, true)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSumTransactionAmounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)
	other := newTestAccount(t, s, 0)

	deposits := []money.Paise{50000, 25000}
	for i, d := range deposits {
		if err := s.InsertTransaction(ctx, &domain.BankTransaction{
			BankAccountID: a.ID, TransactionDate: "2025-04-01", ValueDate: "2025-04-01",
			Description: fmt.Sprintf("dep %d", i), DepositAmount: d,
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.InsertTransaction(ctx, &domain.BankTransaction{
		BankAccountID: a.ID, TransactionDate: "2025-04-02", ValueDate: "2025-04-02",
		Description: "wd", WithdrawalAmount: 10000,
	}); err != nil {
		t.Fatal(err)
	}
	// Another account's rows must not leak into the sums.
	if err := s.InsertTransaction(ctx, &domain.BankTransaction{
		BankAccountID: other.ID, TransactionDate: "2025-04-02", ValueDate: "2025-04-02",
		Description: "other", DepositAmount: 999999,
	}); err != nil {
		t.Fatal(err)
	}

	dep, wd, err := s.SumTransactionAmounts(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dep != 75000 || wd != 10000 {
		t.Errorf("sums = %d/%d, want 75000/10000", dep, wd)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)

	failErr := errors.New("boom")
	err := s.WithTx(ctx, func(q *Queries) error {
		if err := q.InsertTransaction(ctx, &domain.BankTransaction{
			BankAccountID: a.ID, TransactionDate: "2025-04-01", ValueDate: "2025-04-01",
			Description: "will roll back", DepositAmount: 100,
		}); err != nil {
			return err
		}
		return failErr
	})
	if !errors.Is(err, failErr) {
		t.Fatalf("WithTx error = %v", err)
	}

	dep, _, err := s.SumTransactionAmounts(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dep != 0 {
		t.Errorf("rolled back insert still visible, sum = %d", dep)
	}
}

func TestDuplicateProbes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)

	longDesc := "UPI/512345678901/PAYMENT FROM CUSTOMER WITH A VERY LONG NARRATION THAT KEEPS GOING WELL PAST EIGHTY CHARACTERS TRACE 001"
	if err := s.InsertTransaction(ctx, &domain.BankTransaction{
		BankAccountID: a.ID, TransactionDate: "2025-04-01", ValueDate: "2025-04-01",
		Description: longDesc, ReferenceNumber: "UTR9", WithdrawalAmount: 5000,
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountByReference(ctx, a.ID, "2025-04-01", 0, 5000, "UTR9")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountByReference = %d, want 1", n)
	}
	if n, _ = s.CountByReference(ctx, a.ID, "2025-04-01", 0, 5000, "OTHER"); n != 0 {
		t.Errorf("different reference matched: %d", n)
	}
	if n, _ = s.CountByReference(ctx, a.ID, "2025-04-02", 0, 5000, "UTR9"); n != 0 {
		t.Errorf("different date matched: %d", n)
	}

	n, err = s.CountByDescriptionPrefix(ctx, a.ID, "2025-04-01", 0, 5000, longDesc[:80])
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountByDescriptionPrefix = %d, want 1", n)
	}
	if n, _ = s.CountByDescriptionPrefix(ctx, a.ID, "2025-04-01", 0, 5000, "SOMETHING ELSE"); n != 0 {
		t.Errorf("different prefix matched: %d", n)
	}
}

func TestInvoiceAndBillRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := &domain.Invoice{CustomerID: 1, Number: "INV-001", TotalAmount: 100000, BalanceDue: 100000, Status: domain.InvoiceStatusFinal}
	if err := s.CreateInvoice(ctx, inv); err != nil {
		t.Fatal(err)
	}
	paid := &domain.Invoice{CustomerID: 1, Number: "INV-000", TotalAmount: 50000, AmountPaid: 50000, Status: domain.InvoiceStatusPaid}
	if err := s.CreateInvoice(ctx, paid); err != nil {
		t.Fatal(err)
	}

	open, err := s.ListOutstandingInvoices(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != inv.ID {
		t.Errorf("outstanding = %+v", open)
	}

	inv.AmountPaid, inv.BalanceDue, inv.Status = 100000, 0, domain.InvoiceStatusPaid
	if err := s.UpdateInvoiceAllocation(ctx, inv); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.InvoiceStatusPaid || got.BalanceDue != 0 {
		t.Errorf("got %+v", got)
	}

	b := &domain.Bill{VendorID: 2, Number: "BILL-9", TotalAmount: 30000, BalanceDue: 30000, Status: domain.BillStatusPending}
	if err := s.CreateBill(ctx, b); err != nil {
		t.Fatal(err)
	}
	bills, err := s.ListOutstandingBills(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(bills) != 1 {
		t.Errorf("outstanding bills = %+v", bills)
	}
}

func TestPaymentCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)

	txn := &domain.BankTransaction{
		BankAccountID: a.ID, TransactionDate: "2025-04-01", ValueDate: "2025-04-01",
		Description: "NEFT IN", DepositAmount: 100000,
	}
	if err := s.InsertTransaction(ctx, txn); err != nil {
		t.Fatal(err)
	}

	p := &domain.Payment{
		Kind: domain.PaymentReceived, Number: "PR-1", BankTransactionID: txn.ID,
		CustomerID: 1, Amount: 100000, OriginalAmount: 100000,
		PaymentMode: domain.PaymentModeBankTransfer, Date: "2025-04-01", Status: "completed",
	}
	if err := s.CreatePayment(ctx, p); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateAllocation(ctx, &domain.Allocation{PaymentID: p.ID, TargetID: 5, Amount: 100000}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPaymentByTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != p.ID || got.Amount != 100000 {
		t.Errorf("got %+v", got)
	}

	if err := s.DeletePayment(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPaymentByTransaction(ctx, txn.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
	allocs, err := s.ListAllocations(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(allocs) != 0 {
		t.Errorf("allocations should cascade on payment delete, got %d", len(allocs))
	}
}

func TestListTransactionsByBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := newTestAccount(t, s, 0)

	for i := 0; i < 3; i++ {
		batch := "batch-a"
		if i == 2 {
			batch = "batch-b"
		}
		if err := s.InsertTransaction(ctx, &domain.BankTransaction{
			BankAccountID: a.ID, TransactionDate: "2025-04-01", ValueDate: "2025-04-01",
			Description: fmt.Sprintf("txn %d", i), DepositAmount: 100, ImportBatchID: batch,
		}); err != nil {
			t.Fatal(err)
		}
	}

	txns, err := s.ListTransactionsByBatch(ctx, "batch-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 2 {
		t.Errorf("got %d transactions, want 2", len(txns))
	}
}
