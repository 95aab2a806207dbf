package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/money"
)

// Queries hosts all entity reads and writes. A Queries bound to the store
// runs against the database directly; WithTx hands out one bound to a
// transaction.
type Queries struct {
	db DBTX
}

// ---- bank accounts ----

func (q *Queries) CreateAccount(ctx context.Context, a *domain.BankAccount) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bank_accounts (name, opening_balance, current_balance, is_active, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.Name, int64(a.OpeningBalance), int64(a.CurrentBalance), a.IsActive, now())
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (*domain.BankAccount, error) {
	var a domain.BankAccount
	var opening, current int64
	var updated string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, name, opening_balance, current_balance, is_active, updated_at
		 FROM bank_accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &opening, &current, &a.IsActive, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank account %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	a.OpeningBalance = money.Paise(opening)
	a.CurrentBalance = money.Paise(current)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &a, nil
}

func (q *Queries) ListAccounts(ctx context.Context) ([]*domain.BankAccount, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, opening_balance, current_balance, is_active, updated_at
		 FROM bank_accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.BankAccount
	for rows.Next() {
		var a domain.BankAccount
		var opening, current int64
		var updated string
		if err := rows.Scan(&a.ID, &a.Name, &opening, &current, &a.IsActive, &updated); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.OpeningBalance = money.Paise(opening)
		a.CurrentBalance = money.Paise(current)
		a.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateAccountBalance(ctx context.Context, id int64, balance money.Paise) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bank_accounts SET current_balance = ?, updated_at = ? WHERE id = ?`,
		int64(balance), now(), id)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	return nil
}

// SumTransactionAmounts totals deposits and withdrawals across every
// transaction of the account, the inputs to balance recomputation.
func (q *Queries) SumTransactionAmounts(ctx context.Context, accountID int64) (deposits, withdrawals money.Paise, err error) {
	var dep, wd int64
	err = q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(deposit_amount), 0), COALESCE(SUM(withdrawal_amount), 0)
		 FROM bank_transactions WHERE bank_account_id = ?`, accountID).
		Scan(&dep, &wd)
	if err != nil {
		return 0, 0, fmt.Errorf("sum transactions for account %d: %w", accountID, err)
	}
	return money.Paise(dep), money.Paise(wd), nil
}

// ---- bank transactions ----

const txnColumns = `id, bank_account_id, transaction_date, value_date, description,
	reference_number, deposit_amount, withdrawal_amount, balance, import_batch_id,
	category, category_type, categorization_status, sub_account_id, customer_id,
	vendor_id, transfer_account_id, is_reconciled, linked_invoice_ids, linked_bill_ids`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.BankTransaction, error) {
	var t domain.BankTransaction
	var dep, wd, bal int64
	err := row.Scan(&t.ID, &t.BankAccountID, &t.TransactionDate, &t.ValueDate,
		&t.Description, &t.ReferenceNumber, &dep, &wd, &bal, &t.ImportBatchID,
		&t.Category, &t.CategoryType, &t.CategorizationStatus, &t.SubAccountID,
		&t.CustomerID, &t.VendorID, &t.TransferAccountID, &t.IsReconciled,
		&t.LinkedInvoiceIDs, &t.LinkedBillIDs)
	if err != nil {
		return nil, err
	}
	t.DepositAmount = money.Paise(dep)
	t.WithdrawalAmount = money.Paise(wd)
	t.Balance = money.Paise(bal)
	return &t, nil
}

func (q *Queries) InsertTransaction(ctx context.Context, t *domain.BankTransaction) error {
	if t.CategorizationStatus == "" {
		t.CategorizationStatus = domain.StatusUncategorized
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bank_transactions (bank_account_id, transaction_date, value_date,
			description, reference_number, deposit_amount, withdrawal_amount, balance,
			import_batch_id, category, category_type, categorization_status,
			sub_account_id, customer_id, vendor_id, transfer_account_id,
			is_reconciled, linked_invoice_ids, linked_bill_ids)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.BankAccountID, t.TransactionDate, t.ValueDate, t.Description,
		t.ReferenceNumber, int64(t.DepositAmount), int64(t.WithdrawalAmount),
		int64(t.Balance), t.ImportBatchID, t.Category, t.CategoryType,
		t.CategorizationStatus, t.SubAccountID, t.CustomerID, t.VendorID,
		t.TransferAccountID, t.IsReconciled, t.LinkedInvoiceIDs, t.LinkedBillIDs)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	t.ID, _ = res.LastInsertId()
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (*domain.BankTransaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bank transaction %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateTransactionCategorization writes back every categorization field of
// the transaction. Both categorize and uncategorize funnel through it.
func (q *Queries) UpdateTransactionCategorization(ctx context.Context, t *domain.BankTransaction) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bank_transactions SET category = ?, category_type = ?,
			categorization_status = ?, sub_account_id = ?, customer_id = ?,
			vendor_id = ?, transfer_account_id = ?, linked_invoice_ids = ?,
			linked_bill_ids = ?
		 WHERE id = ?`,
		t.Category, t.CategoryType, t.CategorizationStatus, t.SubAccountID,
		t.CustomerID, t.VendorID, t.TransferAccountID, t.LinkedInvoiceIDs,
		t.LinkedBillIDs, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction %d categorization: %w", t.ID, err)
	}
	return nil
}

func (q *Queries) SetTransactionReconciled(ctx context.Context, id int64, reconciled bool) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE bank_transactions SET is_reconciled = ? WHERE id = ?`, reconciled, id)
	if err != nil {
		return fmt.Errorf("set transaction %d reconciled: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bank transaction %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM bank_transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return nil
}

func (q *Queries) ListTransactionsByBatch(ctx context.Context, batchID string) ([]*domain.BankTransaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions WHERE import_batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var out []*domain.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]*domain.BankTransaction, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM bank_transactions
		 WHERE bank_account_id = ? ORDER BY transaction_date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account %d transactions: %w", accountID, err)
	}
	defer rows.Close()

	var out []*domain.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByReference is the exact-reference duplicate probe: same account,
// date, both amounts and a non-empty reference number.
func (q *Queries) CountByReference(ctx context.Context, accountID int64, date string, deposit, withdrawal money.Paise, reference string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions
		 WHERE bank_account_id = ? AND transaction_date = ?
		   AND deposit_amount = ? AND withdrawal_amount = ?
		   AND reference_number = ?`,
		accountID, date, int64(deposit), int64(withdrawal), reference).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count duplicates by reference: %w", err)
	}
	return n, nil
}

// CountByDescriptionPrefix is the fallback duplicate probe comparing the
// first 80 characters of the description.
func (q *Queries) CountByDescriptionPrefix(ctx context.Context, accountID int64, date string, deposit, withdrawal money.Paise, descPrefix string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bank_transactions
		 WHERE bank_account_id = ? AND transaction_date = ?
		   AND deposit_amount = ? AND withdrawal_amount = ?
		   AND substr(description, 1, 80) = ?`,
		accountID, date, int64(deposit), int64(withdrawal), descPrefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count duplicates by description: %w", err)
	}
	return n, nil
}

// ---- invoices ----

func (q *Queries) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO invoices (customer_id, number, total_amount, amount_paid, balance_due, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.CustomerID, inv.Number, int64(inv.TotalAmount), int64(inv.AmountPaid),
		int64(inv.BalanceDue), inv.Status, now())
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	inv.ID, _ = res.LastInsertId()
	return nil
}

func (q *Queries) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	var inv domain.Invoice
	var total, paid, due int64
	var updated string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, customer_id, number, total_amount, amount_paid, balance_due, status, updated_at
		 FROM invoices WHERE id = ?`, id).
		Scan(&inv.ID, &inv.CustomerID, &inv.Number, &total, &paid, &due, &inv.Status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", id, err)
	}
	inv.TotalAmount = money.Paise(total)
	inv.AmountPaid = money.Paise(paid)
	inv.BalanceDue = money.Paise(due)
	inv.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &inv, nil
}

func (q *Queries) UpdateInvoiceAllocation(ctx context.Context, inv *domain.Invoice) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE invoices SET amount_paid = ?, balance_due = ?, status = ?, updated_at = ? WHERE id = ?`,
		int64(inv.AmountPaid), int64(inv.BalanceDue), inv.Status, now(), inv.ID)
	if err != nil {
		return fmt.Errorf("update invoice %d: %w", inv.ID, err)
	}
	return nil
}

// ListOutstandingInvoices returns the customer's invoices with a balance
// still due, oldest first, the auto-allocation order.
func (q *Queries) ListOutstandingInvoices(ctx context.Context, customerID int64) ([]*domain.Invoice, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, customer_id, number, total_amount, amount_paid, balance_due, status, updated_at
		 FROM invoices
		 WHERE customer_id = ? AND balance_due > 0 AND status != ?
		 ORDER BY id`, customerID, domain.InvoiceStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("list outstanding invoices: %w", err)
	}
	defer rows.Close()

	var out []*domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		var total, paid, due int64
		var updated string
		if err := rows.Scan(&inv.ID, &inv.CustomerID, &inv.Number, &total, &paid, &due, &inv.Status, &updated); err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		inv.TotalAmount = money.Paise(total)
		inv.AmountPaid = money.Paise(paid)
		inv.BalanceDue = money.Paise(due)
		inv.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, &inv)
	}
	return out, rows.Err()
}

// ---- bills ----

func (q *Queries) CreateBill(ctx context.Context, b *domain.Bill) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO bills (vendor_id, number, total_amount, amount_paid, balance_due, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.VendorID, b.Number, int64(b.TotalAmount), int64(b.AmountPaid),
		int64(b.BalanceDue), b.Status, now())
	if err != nil {
		return fmt.Errorf("create bill: %w", err)
	}
	b.ID, _ = res.LastInsertId()
	return nil
}

func (q *Queries) GetBill(ctx context.Context, id int64) (*domain.Bill, error) {
	var b domain.Bill
	var total, paid, due int64
	var updated string
	err := q.db.QueryRowContext(ctx,
		`SELECT id, vendor_id, number, total_amount, amount_paid, balance_due, status, updated_at
		 FROM bills WHERE id = ?`, id).
		Scan(&b.ID, &b.VendorID, &b.Number, &total, &paid, &due, &b.Status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bill %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get bill %d: %w", id, err)
	}
	b.TotalAmount = money.Paise(total)
	b.AmountPaid = money.Paise(paid)
	b.BalanceDue = money.Paise(due)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return &b, nil
}

func (q *Queries) UpdateBillAllocation(ctx context.Context, b *domain.Bill) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE bills SET amount_paid = ?, balance_due = ?, status = ?, updated_at = ? WHERE id = ?`,
		int64(b.AmountPaid), int64(b.BalanceDue), b.Status, now(), b.ID)
	if err != nil {
		return fmt.Errorf("update bill %d: %w", b.ID, err)
	}
	return nil
}

func (q *Queries) ListOutstandingBills(ctx context.Context, vendorID int64) ([]*domain.Bill, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, vendor_id, number, total_amount, amount_paid, balance_due, status, updated_at
		 FROM bills
		 WHERE vendor_id = ? AND balance_due > 0 AND status != ?
		 ORDER BY id`, vendorID, domain.BillStatusPaid)
	if err != nil {
		return nil, fmt.Errorf("list outstanding bills: %w", err)
	}
	defer rows.Close()

	var out []*domain.Bill
	for rows.Next() {
		var b domain.Bill
		var total, paid, due int64
		var updated string
		if err := rows.Scan(&b.ID, &b.VendorID, &b.Number, &total, &paid, &due, &b.Status, &updated); err != nil {
			return nil, fmt.Errorf("scan bill row: %w", err)
		}
		b.TotalAmount = money.Paise(total)
		b.AmountPaid = money.Paise(paid)
		b.BalanceDue = money.Paise(due)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ---- payments and allocations ----

func (q *Queries) CreatePayment(ctx context.Context, p *domain.Payment) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO payments (kind, number, bank_transaction_id, customer_id, vendor_id,
			amount, original_amount, excess_amount, payment_mode, reference_number, date, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Kind, p.Number, p.BankTransactionID, p.CustomerID, p.VendorID,
		int64(p.Amount), int64(p.OriginalAmount), int64(p.ExcessAmount),
		p.PaymentMode, p.ReferenceNumber, p.Date, p.Status)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// GetPaymentByTransaction returns the payment spawned by a transaction, or
// ErrNotFound when the transaction never created one.
func (q *Queries) GetPaymentByTransaction(ctx context.Context, txnID int64) (*domain.Payment, error) {
	var p domain.Payment
	var amount, original, excess int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id, kind, number, bank_transaction_id, customer_id, vendor_id,
			amount, original_amount, excess_amount, payment_mode, reference_number, date, status
		 FROM payments WHERE bank_transaction_id = ?`, txnID).
		Scan(&p.ID, &p.Kind, &p.Number, &p.BankTransactionID, &p.CustomerID,
			&p.VendorID, &amount, &original, &excess, &p.PaymentMode,
			&p.ReferenceNumber, &p.Date, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment for transaction %d: %w", txnID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment for transaction %d: %w", txnID, err)
	}
	p.Amount = money.Paise(amount)
	p.OriginalAmount = money.Paise(original)
	p.ExcessAmount = money.Paise(excess)
	return &p, nil
}

// DeletePayment removes the payment; its allocations cascade.
func (q *Queries) DeletePayment(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete payment %d: %w", id, err)
	}
	return nil
}

func (q *Queries) CreateAllocation(ctx context.Context, a *domain.Allocation) error {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO payment_allocations (payment_id, target_id, amount) VALUES (?, ?, ?)`,
		a.PaymentID, a.TargetID, int64(a.Amount))
	if err != nil {
		return fmt.Errorf("create allocation: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (q *Queries) ListAllocations(ctx context.Context, paymentID int64) ([]*domain.Allocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, payment_id, target_id, amount
		 FROM payment_allocations WHERE payment_id = ? ORDER BY id`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list allocations for payment %d: %w", paymentID, err)
	}
	defer rows.Close()

	var out []*domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		var amount int64
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.TargetID, &amount); err != nil {
			return nil, fmt.Errorf("scan allocation row: %w", err)
		}
		a.Amount = money.Paise(amount)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }
