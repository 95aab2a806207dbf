// Package domain holds the entities and closed enums of the bank feed
// engine: accounts, transactions, categories, payments and allocations.
package domain

import (
	"time"

	"github.com/arthaledger/bankfeed/internal/money"
)

// CategorizationStatus tracks whether a transaction has been assigned a
// business category.
type CategorizationStatus string

const (
	StatusUncategorized CategorizationStatus = "uncategorized"
	StatusCategorized   CategorizationStatus = "categorized"
)

// Direction partitions categories into deposit and withdrawal sides.
type Direction string

const (
	DirectionDeposit    Direction = "Deposit"
	DirectionWithdrawal Direction = "Withdrawal"
)

// Linkage names which counterparty field a category requires.
type Linkage string

const (
	LinkCustomer    Linkage = "customer_link"
	LinkVendor      Linkage = "vendor_link"
	LinkSubAccount  Linkage = "sub_account"
	LinkBankAccount Linkage = "bank_account"
	LinkSimple      Linkage = "simple"
)

// Category is a business category key from the closed set below.
type Category string

const (
	CategoryCustomerPayment    Category = "customer_payment"
	CategoryRetainerPayment    Category = "retainer_payment"
	CategoryTransferFrom       Category = "transfer_from"
	CategoryInterestIncome     Category = "interest_income"
	CategoryOtherIncome        Category = "other_income"
	CategoryExpenseRefund      Category = "expense_refund"
	CategoryDepositOther       Category = "deposit_other"
	CategoryVendorPayment      Category = "vendor_payment"
	CategoryExpense            Category = "expense"
	CategoryPayroll            Category = "payroll"
	CategoryOwnersContribution Category = "owners_contribution"
	CategoryVendorCreditRefund Category = "vendor_credit_refund"
	CategoryTransferTo         Category = "transfer_to"
)

// CategoryDefinition describes a category's direction and required linkage.
type CategoryDefinition struct {
	Key       Category
	Direction Direction
	Linkage   Linkage
}

var categoryDefinitions = map[Category]CategoryDefinition{
	CategoryCustomerPayment:    {CategoryCustomerPayment, DirectionDeposit, LinkCustomer},
	CategoryRetainerPayment:    {CategoryRetainerPayment, DirectionDeposit, LinkCustomer},
	CategoryTransferFrom:       {CategoryTransferFrom, DirectionDeposit, LinkBankAccount},
	CategoryInterestIncome:     {CategoryInterestIncome, DirectionDeposit, LinkSubAccount},
	CategoryOtherIncome:        {CategoryOtherIncome, DirectionDeposit, LinkSubAccount},
	CategoryExpenseRefund:      {CategoryExpenseRefund, DirectionDeposit, LinkSubAccount},
	CategoryDepositOther:       {CategoryDepositOther, DirectionDeposit, LinkSimple},
	CategoryVendorPayment:      {CategoryVendorPayment, DirectionWithdrawal, LinkVendor},
	CategoryExpense:            {CategoryExpense, DirectionWithdrawal, LinkSubAccount},
	CategoryPayroll:            {CategoryPayroll, DirectionWithdrawal, LinkSubAccount},
	CategoryOwnersContribution: {CategoryOwnersContribution, DirectionWithdrawal, LinkSimple},
	CategoryVendorCreditRefund: {CategoryVendorCreditRefund, DirectionWithdrawal, LinkVendor},
	CategoryTransferTo:         {CategoryTransferTo, DirectionWithdrawal, LinkBankAccount},
}

// LookupCategory returns the definition for a category key, or ok=false for
// keys outside the closed set.
func LookupCategory(key Category) (CategoryDefinition, bool) {
	def, ok := categoryDefinitions[key]
	return def, ok
}

// ValidateCategory reports whether the key belongs to the closed set.
func ValidateCategory(key Category) bool {
	_, ok := categoryDefinitions[key]
	return ok
}

// BankAccount is a bank account whose balance is always derived from its
// transactions, never incremented in place.
type BankAccount struct {
	ID             int64
	Name           string
	OpeningBalance money.Paise
	CurrentBalance money.Paise
	IsActive       bool
	UpdatedAt      time.Time
}

// BankTransaction is one statement line owned by a BankAccount.
//
// Exactly one of DepositAmount / WithdrawalAmount is normally non-zero.
// Balance is the statement-reported running balance and is display-only:
// statements may be partial exports, so it is never used to derive the
// account balance.
type BankTransaction struct {
	ID               int64
	BankAccountID    int64
	TransactionDate  string // YYYY-MM-DD
	ValueDate        string // YYYY-MM-DD, may equal TransactionDate
	Description      string
	ReferenceNumber  string
	DepositAmount    money.Paise
	WithdrawalAmount money.Paise
	Balance          money.Paise
	ImportBatchID    string

	Category             Category
	CategoryType         Direction
	CategorizationStatus CategorizationStatus
	SubAccountID         int64
	CustomerID           int64
	VendorID             int64
	TransferAccountID    int64
	IsReconciled         bool
	LinkedInvoiceIDs     string // serialized allocation summary
	LinkedBillIDs        string
}

// Amount returns the transaction's single non-zero side.
func (t *BankTransaction) Amount() money.Paise {
	if t.DepositAmount > 0 {
		return t.DepositAmount
	}
	return t.WithdrawalAmount
}

// Invoice and bill status values the engine reads and derives.
const (
	InvoiceStatusFinal   = "Final"
	InvoiceStatusPartial = "Partial"
	InvoiceStatusPaid    = "Paid"
	BillStatusPending    = "Pending"
	BillStatusPartial    = "Partial"
	BillStatusPaid       = "Paid"
)

// Invoice is an external entity the engine allocates payments against.
// Invariant maintained here: AmountPaid + BalanceDue == TotalAmount, with
// BalanceDue clamped at zero.
type Invoice struct {
	ID          int64
	CustomerID  int64
	Number      string
	TotalAmount money.Paise
	AmountPaid  money.Paise
	BalanceDue  money.Paise
	Status      string
	UpdatedAt   time.Time
}

// Bill mirrors Invoice for the vendor side.
type Bill struct {
	ID          int64
	VendorID    int64
	Number      string
	TotalAmount money.Paise
	AmountPaid  money.Paise
	BalanceDue  money.Paise
	Status      string
	UpdatedAt   time.Time
}

// PaymentKind distinguishes the two payment tables.
type PaymentKind string

const (
	PaymentReceived PaymentKind = "received" // customer_payment
	PaymentMade     PaymentKind = "made"     // vendor_payment
)

// PaymentModeBankTransfer is the fixed mode for payments spawned from bank
// transactions.
const PaymentModeBankTransfer = "bank_transfer"

// Payment is the PaymentReceived/PaymentMade row created when a transaction
// is categorized as customer_payment or vendor_payment. It is 1:1 with the
// transaction that spawned it and owns its allocations.
type Payment struct {
	ID                int64
	Kind              PaymentKind
	Number            string
	BankTransactionID int64
	CustomerID        int64 // received
	VendorID          int64 // made
	Amount            money.Paise
	OriginalAmount    money.Paise
	ExcessAmount      money.Paise
	PaymentMode       string
	ReferenceNumber   string
	Date              string
	Status            string
}

// Allocation applies part of a payment against one invoice or bill.
type Allocation struct {
	ID        int64
	PaymentID int64
	TargetID  int64 // invoice ID for received, bill ID for made
	Amount    money.Paise
}
