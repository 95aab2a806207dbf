// Package categorize assigns business categories to bank transactions and
// reverses those assignments. Categorizing as customer_payment or
// vendor_payment additionally spawns a payment record allocated against the
// counterparty's open invoices or bills; uncategorizing unwinds all of it.
package categorize

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/dedup"
	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/store"
)

// paymentStatusCompleted is the status written on payments spawned from
// bank transactions; they represent money that already moved.
const paymentStatusCompleted = "completed"

// Target selects one invoice (received side) or bill (made side) to apply
// the payment against. Amount zero means auto: min(remaining, balance due).
type Target struct {
	ID     int64
	Amount money.Paise
}

// Request carries everything a categorization needs. Only the linkage field
// the category requires may be set.
type Request struct {
	Category          domain.Category
	SubAccountID      int64
	CustomerID        int64
	VendorID          int64
	TransferAccountID int64

	// Targets lists the invoices/bills to allocate against, in order. Empty
	// means allocate automatically against the counterparty's outstanding
	// documents, oldest first.
	Targets []Target

	// StoreExcessAsAdvance records any amount left after allocation as an
	// advance on the payment. Without it the remainder simply stays
	// unallocated; a payment with no allocations at all is valid.
	StoreExcessAsAdvance bool
}

// Service runs categorization under the owning account's lock.
type Service struct {
	store *store.Store
	log   zerolog.Logger
}

func New(st *store.Store, log zerolog.Logger) *Service {
	return &Service{store: st, log: log}
}

// Categorize assigns req.Category to the transaction. A transaction that is
// already categorized is silently re-categorized: the previous assignment,
// including any payment and its allocations, is reversed first, then the new
// one applied, all in one transaction. Reconciled transactions cannot be
// touched.
func (s *Service) Categorize(ctx context.Context, txnID int64, req Request) error {
	t, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return err
	}
	if t.IsReconciled {
		return fmt.Errorf("%w: transaction %d is reconciled", domain.ErrConflict, txnID)
	}

	def, ok := domain.LookupCategory(req.Category)
	if !ok {
		return fmt.Errorf("%w: unknown category %q", domain.ErrValidation, req.Category)
	}
	if err := validateRequest(def, req, t); err != nil {
		return err
	}

	return s.store.WithAccountLock(t.BankAccountID, func() error {
		err := s.store.WithTx(ctx, func(q *store.Queries) error {
			// Re-read inside the lock; the copy above was only for routing.
			t, err := q.GetTransaction(ctx, txnID)
			if err != nil {
				return err
			}
			if t.CategorizationStatus == domain.StatusCategorized {
				if err := Reverse(ctx, q, t); err != nil {
					return err
				}
			}
			return apply(ctx, q, t, def, req)
		})
		if err != nil {
			return err
		}
		s.log.Info().Int64("transaction", txnID).Str("category", string(req.Category)).
			Msg("transaction categorized")
		return nil
	})
}

// Uncategorize reverses the transaction's categorization: allocations are
// backed out of their invoices/bills, the spawned payment removed, and the
// transaction returned to uncategorized.
func (s *Service) Uncategorize(ctx context.Context, txnID int64) error {
	t, err := s.store.GetTransaction(ctx, txnID)
	if err != nil {
		return err
	}
	if t.IsReconciled {
		return fmt.Errorf("%w: transaction %d is reconciled", domain.ErrConflict, txnID)
	}
	if t.CategorizationStatus != domain.StatusCategorized {
		return fmt.Errorf("%w: transaction %d is not categorized", domain.ErrValidation, txnID)
	}

	return s.store.WithAccountLock(t.BankAccountID, func() error {
		err := s.store.WithTx(ctx, func(q *store.Queries) error {
			t, err := q.GetTransaction(ctx, txnID)
			if err != nil {
				return err
			}
			if t.CategorizationStatus != domain.StatusCategorized {
				return fmt.Errorf("%w: transaction %d is not categorized", domain.ErrValidation, txnID)
			}
			return Reverse(ctx, q, t)
		})
		if err != nil {
			return err
		}
		s.log.Info().Int64("transaction", txnID).Msg("transaction uncategorized")
		return nil
	})
}

// validateRequest checks direction and that exactly the linkage the category
// requires is present.
func validateRequest(def domain.CategoryDefinition, req Request, t *domain.BankTransaction) error {
	switch def.Direction {
	case domain.DirectionDeposit:
		if t.DepositAmount <= 0 {
			return fmt.Errorf("%w: category %s applies to deposits only", domain.ErrValidation, def.Key)
		}
	case domain.DirectionWithdrawal:
		if t.WithdrawalAmount <= 0 {
			return fmt.Errorf("%w: category %s applies to withdrawals only", domain.ErrValidation, def.Key)
		}
	}

	switch def.Linkage {
	case domain.LinkCustomer:
		if req.CustomerID == 0 {
			return fmt.Errorf("%w: category %s requires a customer", domain.ErrValidation, def.Key)
		}
	case domain.LinkVendor:
		if req.VendorID == 0 {
			return fmt.Errorf("%w: category %s requires a vendor", domain.ErrValidation, def.Key)
		}
	case domain.LinkSubAccount:
		if req.SubAccountID == 0 {
			return fmt.Errorf("%w: category %s requires an expense/income account", domain.ErrValidation, def.Key)
		}
	case domain.LinkBankAccount:
		if req.TransferAccountID == 0 {
			return fmt.Errorf("%w: category %s requires a counterpart bank account", domain.ErrValidation, def.Key)
		}
		if req.TransferAccountID == t.BankAccountID {
			return fmt.Errorf("%w: cannot transfer an account to itself", domain.ErrValidation)
		}
	case domain.LinkSimple:
		// nothing required
	}

	if def.Linkage != domain.LinkCustomer && req.CustomerID != 0 {
		return fmt.Errorf("%w: category %s does not take a customer", domain.ErrValidation, def.Key)
	}
	if def.Linkage != domain.LinkVendor && req.VendorID != 0 {
		return fmt.Errorf("%w: category %s does not take a vendor", domain.ErrValidation, def.Key)
	}
	if def.Linkage != domain.LinkBankAccount && req.TransferAccountID != 0 {
		return fmt.Errorf("%w: category %s does not take a transfer account", domain.ErrValidation, def.Key)
	}
	return nil
}

// apply writes the new categorization and, for the two payment categories,
// spawns the payment with its allocations.
func apply(ctx context.Context, q *store.Queries, t *domain.BankTransaction, def domain.CategoryDefinition, req Request) error {
	if def.Linkage == domain.LinkBankAccount {
		if _, err := q.GetAccount(ctx, req.TransferAccountID); err != nil {
			return err
		}
	}

	t.Category = def.Key
	t.CategoryType = def.Direction
	t.CategorizationStatus = domain.StatusCategorized
	t.SubAccountID = req.SubAccountID
	t.CustomerID = req.CustomerID
	t.VendorID = req.VendorID
	t.TransferAccountID = req.TransferAccountID
	t.LinkedInvoiceIDs = ""
	t.LinkedBillIDs = ""

	switch def.Key {
	case domain.CategoryCustomerPayment:
		ids, err := applyReceived(ctx, q, t, req)
		if err != nil {
			return err
		}
		t.LinkedInvoiceIDs = joinIDs(ids)
	case domain.CategoryVendorPayment:
		ids, err := applyMade(ctx, q, t, req)
		if err != nil {
			return err
		}
		t.LinkedBillIDs = joinIDs(ids)
	}

	return q.UpdateTransactionCategorization(ctx, t)
}

// applyReceived creates the payment-received record and allocates it across
// the customer's invoices.
func applyReceived(ctx context.Context, q *store.Queries, t *domain.BankTransaction, req Request) ([]int64, error) {
	amount := t.DepositAmount
	p := &domain.Payment{
		Kind:              domain.PaymentReceived,
		Number:            paymentNumber(domain.PaymentReceived, t.ID),
		BankTransactionID: t.ID,
		CustomerID:        req.CustomerID,
		Amount:            amount,
		OriginalAmount:    amount,
		PaymentMode:       domain.PaymentModeBankTransfer,
		ReferenceNumber:   paymentReference(t),
		Date:              t.TransactionDate,
		Status:            paymentStatusCompleted,
	}

	targets := req.Targets
	if len(targets) == 0 {
		open, err := q.ListOutstandingInvoices(ctx, req.CustomerID)
		if err != nil {
			return nil, err
		}
		for _, inv := range open {
			targets = append(targets, Target{ID: inv.ID})
		}
	}

	remaining := amount
	var allocs []domain.Allocation
	var linked []int64
	for _, tgt := range targets {
		if remaining == 0 {
			break
		}
		inv, err := q.GetInvoice(ctx, tgt.ID)
		if err != nil {
			return nil, err
		}
		if inv.CustomerID != req.CustomerID {
			return nil, fmt.Errorf("%w: invoice %d belongs to another customer", domain.ErrValidation, inv.ID)
		}
		alloc, err := allocationAmount(tgt.Amount, remaining, inv.BalanceDue)
		if err != nil {
			return nil, fmt.Errorf("invoice %d: %w", inv.ID, err)
		}
		if alloc == 0 {
			continue
		}

		inv.AmountPaid += alloc
		inv.BalanceDue -= alloc
		inv.Status = invoiceStatus(inv)
		if err := q.UpdateInvoiceAllocation(ctx, inv); err != nil {
			return nil, err
		}
		allocs = append(allocs, domain.Allocation{TargetID: inv.ID, Amount: alloc})
		linked = append(linked, inv.ID)
		remaining -= alloc
	}

	if remaining > 0 && req.StoreExcessAsAdvance {
		p.ExcessAmount = remaining
	}

	if err := q.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	for i := range allocs {
		allocs[i].PaymentID = p.ID
		if err := q.CreateAllocation(ctx, &allocs[i]); err != nil {
			return nil, err
		}
	}
	return linked, nil
}

// applyMade mirrors applyReceived for vendor bills.
func applyMade(ctx context.Context, q *store.Queries, t *domain.BankTransaction, req Request) ([]int64, error) {
	amount := t.WithdrawalAmount
	p := &domain.Payment{
		Kind:              domain.PaymentMade,
		Number:            paymentNumber(domain.PaymentMade, t.ID),
		BankTransactionID: t.ID,
		VendorID:          req.VendorID,
		Amount:            amount,
		OriginalAmount:    amount,
		PaymentMode:       domain.PaymentModeBankTransfer,
		ReferenceNumber:   paymentReference(t),
		Date:              t.TransactionDate,
		Status:            paymentStatusCompleted,
	}

	targets := req.Targets
	if len(targets) == 0 {
		open, err := q.ListOutstandingBills(ctx, req.VendorID)
		if err != nil {
			return nil, err
		}
		for _, b := range open {
			targets = append(targets, Target{ID: b.ID})
		}
	}

	remaining := amount
	var allocs []domain.Allocation
	var linked []int64
	for _, tgt := range targets {
		if remaining == 0 {
			break
		}
		b, err := q.GetBill(ctx, tgt.ID)
		if err != nil {
			return nil, err
		}
		if b.VendorID != req.VendorID {
			return nil, fmt.Errorf("%w: bill %d belongs to another vendor", domain.ErrValidation, b.ID)
		}
		alloc, err := allocationAmount(tgt.Amount, remaining, b.BalanceDue)
		if err != nil {
			return nil, fmt.Errorf("bill %d: %w", b.ID, err)
		}
		if alloc == 0 {
			continue
		}

		b.AmountPaid += alloc
		b.BalanceDue -= alloc
		b.Status = billStatus(b)
		if err := q.UpdateBillAllocation(ctx, b); err != nil {
			return nil, err
		}
		allocs = append(allocs, domain.Allocation{TargetID: b.ID, Amount: alloc})
		linked = append(linked, b.ID)
		remaining -= alloc
	}

	if remaining > 0 && req.StoreExcessAsAdvance {
		p.ExcessAmount = remaining
	}

	if err := q.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	for i := range allocs {
		allocs[i].PaymentID = p.ID
		if err := q.CreateAllocation(ctx, &allocs[i]); err != nil {
			return nil, err
		}
	}
	return linked, nil
}

// allocationAmount resolves an explicit or automatic allocation against one
// document. Explicit amounts may not exceed the balance due or the amount
// still unallocated.
func allocationAmount(explicit, remaining, balanceDue money.Paise) (money.Paise, error) {
	if explicit == 0 {
		return money.Min(remaining, balanceDue), nil
	}
	if explicit < 0 {
		return 0, fmt.Errorf("%w: allocation cannot be negative", domain.ErrValidation)
	}
	if explicit > balanceDue {
		return 0, fmt.Errorf("%w: allocation %s exceeds balance due %s", domain.ErrValidation, explicit, balanceDue)
	}
	if explicit > remaining {
		return 0, fmt.Errorf("%w: allocation %s exceeds unallocated amount %s", domain.ErrValidation, explicit, remaining)
	}
	return explicit, nil
}

// Reverse unwinds the transaction's current categorization inside the
// caller's sql transaction: allocations are backed out, the spawned payment
// deleted, and every categorization field cleared. Deleting a categorized
// transaction goes through here first so no payment records are orphaned.
func Reverse(ctx context.Context, q *store.Queries, t *domain.BankTransaction) error {
	switch t.Category {
	case domain.CategoryCustomerPayment:
		if err := reversePayment(ctx, q, t, true); err != nil {
			return err
		}
	case domain.CategoryVendorPayment:
		if err := reversePayment(ctx, q, t, false); err != nil {
			return err
		}
	}

	t.Category = ""
	t.CategoryType = ""
	t.CategorizationStatus = domain.StatusUncategorized
	t.SubAccountID = 0
	t.CustomerID = 0
	t.VendorID = 0
	t.TransferAccountID = 0
	t.LinkedInvoiceIDs = ""
	t.LinkedBillIDs = ""
	return q.UpdateTransactionCategorization(ctx, t)
}

// reversePayment backs every allocation out of its document and deletes the
// payment. A document restored to zero paid returns to its pre-payment
// status (Final for invoices, Pending for bills); partially restored ones
// stay Partial.
func reversePayment(ctx context.Context, q *store.Queries, t *domain.BankTransaction, received bool) error {
	p, err := q.GetPaymentByTransaction(ctx, t.ID)
	if err != nil {
		return err
	}
	allocs, err := q.ListAllocations(ctx, p.ID)
	if err != nil {
		return err
	}

	for _, a := range allocs {
		if received {
			inv, err := q.GetInvoice(ctx, a.TargetID)
			if err != nil {
				return err
			}
			// Floor at zero: the document may have been edited
			// externally since the allocation was made.
			inv.AmountPaid -= a.Amount
			if inv.AmountPaid < 0 {
				inv.AmountPaid = 0
			}
			inv.BalanceDue = inv.TotalAmount - inv.AmountPaid
			inv.Status = invoiceStatus(inv)
			if err := q.UpdateInvoiceAllocation(ctx, inv); err != nil {
				return err
			}
		} else {
			b, err := q.GetBill(ctx, a.TargetID)
			if err != nil {
				return err
			}
			b.AmountPaid -= a.Amount
			if b.AmountPaid < 0 {
				b.AmountPaid = 0
			}
			b.BalanceDue = b.TotalAmount - b.AmountPaid
			b.Status = billStatus(b)
			if err := q.UpdateBillAllocation(ctx, b); err != nil {
				return err
			}
		}
	}
	return q.DeletePayment(ctx, p.ID)
}

func invoiceStatus(inv *domain.Invoice) string {
	switch {
	case inv.BalanceDue <= 0:
		return domain.InvoiceStatusPaid
	case inv.AmountPaid > 0:
		return domain.InvoiceStatusPartial
	default:
		return domain.InvoiceStatusFinal
	}
}

func billStatus(b *domain.Bill) string {
	switch {
	case b.BalanceDue <= 0:
		return domain.BillStatusPaid
	case b.AmountPaid > 0:
		return domain.BillStatusPartial
	default:
		return domain.BillStatusPending
	}
}

// paymentReference is the transaction's reference number, or a truncated
// description when the statement carried none.
func paymentReference(t *domain.BankTransaction) string {
	if ref := strings.TrimSpace(t.ReferenceNumber); ref != "" {
		return ref
	}
	return dedup.Prefix(t.Description)
}

func paymentNumber(kind domain.PaymentKind, txnID int64) string {
	prefix := "PR"
	if kind == domain.PaymentMade {
		prefix = "PM"
	}
	return prefix + "-" + strconv.FormatInt(txnID, 10)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
