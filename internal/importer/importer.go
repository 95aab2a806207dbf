// Package importer turns uploaded statement files into stored bank
// transactions: upload gating, preview, batch import with per-row
// deduplication, batch undo, and balance recomputation.
package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arthaledger/bankfeed/internal/categorize"
	"github.com/arthaledger/bankfeed/internal/dedup"
	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/parser"
	"github.com/arthaledger/bankfeed/internal/registry"
	"github.com/arthaledger/bankfeed/internal/rules"
	"github.com/arthaledger/bankfeed/internal/store"
)

// MaxUploadBytes caps the accepted statement file size at 10 MB.
const MaxUploadBytes = 10 << 20

var allowedExtensions = map[string]bool{
	".csv":  true,
	".xls":  true,
	".xlsx": true,
	".html": true,
	".htm":  true,
	".txt":  true,
	".pdf":  true,
	".ofx":  true,
	".qfx":  true,
	".sta":  true,
}

// Service orchestrates parsing and persistence for one store.
type Service struct {
	store    *store.Store
	registry *registry.Registry
	rules    *rules.Engine // optional category suggestions
	log      zerolog.Logger
}

// New builds the import service. engine may be nil to disable suggestions.
func New(st *store.Store, reg *registry.Registry, engine *rules.Engine, log zerolog.Logger) *Service {
	return &Service{store: st, registry: reg, rules: engine, log: log}
}

// CheckUpload validates filename extension and size before any parsing.
func CheckUpload(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("%w: unsupported file type %q", domain.ErrValidation, ext)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("%w: file exceeds %d MB limit", domain.ErrValidation, MaxUploadBytes>>20)
	}
	return nil
}

// PreviewRow is one parsed row plus its in-file duplicate flag.
type PreviewRow struct {
	parser.Row
	DuplicateInFile bool
}

// Preview is what the caller confirms before committing an import.
type Preview struct {
	DetectedFormat string
	Mapping        parser.ColumnMapping
	Rows           []PreviewRow
	Warnings       []parser.Warning
}

// Preview parses the file without writing anything, annotates category
// suggestions, and flags rows that repeat within the file itself.
func (s *Service) Preview(ctx context.Context, content []byte, filename, declaredFormat string) (*Preview, error) {
	if err := CheckUpload(filename, int64(len(content))); err != nil {
		return nil, err
	}

	res, err := s.registry.Parse(ctx, content, filename, declaredFormat)
	if err != nil {
		return nil, err
	}
	stmt := res.Statement
	if s.rules != nil {
		s.rules.Annotate(stmt.Rows)
	}

	seen := map[string]bool{}
	rows := make([]PreviewRow, len(stmt.Rows))
	for i, r := range stmt.Rows {
		fp := dedup.Fingerprint(&domain.BankTransaction{
			TransactionDate:  r.TransactionDate,
			Description:      r.Description,
			ReferenceNumber:  r.ReferenceNumber,
			DepositAmount:    r.Deposit,
			WithdrawalAmount: r.Withdrawal,
		})
		rows[i] = PreviewRow{Row: r, DuplicateInFile: seen[fp]}
		seen[fp] = true
	}

	s.log.Info().
		Str("file", filename).
		Str("format", res.DetectedFormat).
		Int("rows", len(rows)).
		Int("warnings", len(stmt.Warnings)).
		Msg("statement previewed")

	return &Preview{
		DetectedFormat: res.DetectedFormat,
		Mapping:        stmt.Mapping,
		Rows:           rows,
		Warnings:       stmt.Warnings,
	}, nil
}

// ImportResult summarizes one committed import batch.
type ImportResult struct {
	BatchID        string
	DetectedFormat string
	Total          int // rows parsed from the file
	Imported       int
	Skipped        int // duplicates suppressed
	Warnings       []parser.Warning
	Balance        money.Paise
}

// ImportStatement parses the file and commits its rows to the account in one
// batch: every non-duplicate row is inserted tagged with a fresh batch id,
// then the account balance is recomputed once. Rows the duplicate detector
// matches are skipped, never errors.
func (s *Service) ImportStatement(ctx context.Context, accountID int64, content []byte, filename, declaredFormat string) (*ImportResult, error) {
	if err := CheckUpload(filename, int64(len(content))); err != nil {
		return nil, err
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	res, err := s.registry.Parse(ctx, content, filename, declaredFormat)
	if err != nil {
		return nil, err
	}
	stmt := res.Statement
	if s.rules != nil {
		s.rules.Annotate(stmt.Rows)
	}

	out := &ImportResult{
		BatchID:        uuid.NewString(),
		DetectedFormat: res.DetectedFormat,
		Total:          len(stmt.Rows),
		Warnings:       stmt.Warnings,
	}

	err = s.store.WithAccountLock(accountID, func() error {
		return s.store.WithTx(ctx, func(q *store.Queries) error {
			for _, r := range stmt.Rows {
				t := rowToTransaction(accountID, out.BatchID, r)
				dup, err := dedup.IsDuplicate(ctx, q, t)
				if err != nil {
					return err
				}
				if dup {
					out.Skipped++
					continue
				}
				if err := q.InsertTransaction(ctx, t); err != nil {
					return err
				}
				out.Imported++
			}
			bal, err := recompute(ctx, q, accountID)
			if err != nil {
				return err
			}
			out.Balance = bal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("account", accountID).
		Str("batch", out.BatchID).
		Str("format", out.DetectedFormat).
		Int("imported", out.Imported).
		Int("skipped", out.Skipped).
		Str("balance", out.Balance.String()).
		Msg("statement imported")
	return out, nil
}

// AddManual inserts a single hand-entered transaction and recomputes the
// balance. Exactly one of deposit / withdrawal must be positive.
func (s *Service) AddManual(ctx context.Context, t *domain.BankTransaction) error {
	if _, err := s.store.GetAccount(ctx, t.BankAccountID); err != nil {
		return err
	}
	if (t.DepositAmount > 0) == (t.WithdrawalAmount > 0) {
		return fmt.Errorf("%w: exactly one of deposit and withdrawal must be positive", domain.ErrValidation)
	}
	if t.DepositAmount < 0 || t.WithdrawalAmount < 0 {
		return fmt.Errorf("%w: amounts cannot be negative", domain.ErrValidation)
	}
	if t.TransactionDate == "" {
		return fmt.Errorf("%w: transaction date is required", domain.ErrValidation)
	}
	if t.ValueDate == "" {
		t.ValueDate = t.TransactionDate
	}

	return s.store.WithAccountLock(t.BankAccountID, func() error {
		return s.store.WithTx(ctx, func(q *store.Queries) error {
			if err := q.InsertTransaction(ctx, t); err != nil {
				return err
			}
			bal, err := recompute(ctx, q, t.BankAccountID)
			if err != nil {
				return err
			}
			s.log.Info().Int64("account", t.BankAccountID).Int64("transaction", t.ID).
				Str("balance", bal.String()).Msg("manual transaction added")
			return nil
		})
	})
}

// DeleteBatchResult reports what a batch undo removed and what it kept.
type DeleteBatchResult struct {
	Deleted int
	Kept    int // reconciled rows are never removed
	Balance money.Paise
}

// DeleteBatch undoes an import: every transaction of the batch is removed
// except reconciled ones, then the balance is recomputed. Categorized but
// unreconciled rows have their categorization reversed first so payments and
// allocations spawned from them are unwound, not orphaned.
func (s *Service) DeleteBatch(ctx context.Context, accountID int64, batchID string) (*DeleteBatchResult, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	out := &DeleteBatchResult{}
	err := s.store.WithAccountLock(accountID, func() error {
		return s.store.WithTx(ctx, func(q *store.Queries) error {
			txns, err := q.ListTransactionsByBatch(ctx, batchID)
			if err != nil {
				return err
			}
			if len(txns) == 0 {
				return fmt.Errorf("import batch %s: %w", batchID, domain.ErrNotFound)
			}
			for _, t := range txns {
				if t.BankAccountID != accountID {
					return fmt.Errorf("%w: batch %s does not belong to account %d",
						domain.ErrValidation, batchID, accountID)
				}
				if t.IsReconciled {
					out.Kept++
					continue
				}
				if t.CategorizationStatus == domain.StatusCategorized {
					if err := categorize.Reverse(ctx, q, t); err != nil {
						return err
					}
				}
				if err := q.DeleteTransaction(ctx, t.ID); err != nil {
					return err
				}
				out.Deleted++
			}
			bal, err := recompute(ctx, q, accountID)
			if err != nil {
				return err
			}
			out.Balance = bal
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("account", accountID).Str("batch", batchID).
		Int("deleted", out.Deleted).Int("kept", out.Kept).Msg("import batch removed")
	return out, nil
}

// DeleteTransaction removes a single transaction. Reconciled transactions
// are protected; categorized ones are reversed first.
func (s *Service) DeleteTransaction(ctx context.Context, id int64) error {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if t.IsReconciled {
		return fmt.Errorf("%w: transaction %d is reconciled", domain.ErrConflict, id)
	}

	return s.store.WithAccountLock(t.BankAccountID, func() error {
		return s.store.WithTx(ctx, func(q *store.Queries) error {
			t, err := q.GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if t.CategorizationStatus == domain.StatusCategorized {
				if err := categorize.Reverse(ctx, q, t); err != nil {
					return err
				}
			}
			if err := q.DeleteTransaction(ctx, id); err != nil {
				return err
			}
			_, err = recompute(ctx, q, t.BankAccountID)
			return err
		})
	})
}

// SetReconciled flips the reconciliation flag on a transaction.
func (s *Service) SetReconciled(ctx context.Context, id int64, reconciled bool) error {
	return s.store.SetTransactionReconciled(ctx, id, reconciled)
}

// RecomputeBalance rederives the account's current balance from scratch and
// stores it.
func (s *Service) RecomputeBalance(ctx context.Context, accountID int64) (money.Paise, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return 0, err
	}
	var bal money.Paise
	err := s.store.WithAccountLock(accountID, func() error {
		return s.store.WithTx(ctx, func(q *store.Queries) error {
			var err error
			bal, err = recompute(ctx, q, accountID)
			return err
		})
	})
	return bal, err
}

// recompute sets current_balance = opening + Σdeposits − Σwithdrawals. The
// statement-reported running balances play no part; partial exports make
// them unreliable.
func recompute(ctx context.Context, q *store.Queries, accountID int64) (money.Paise, error) {
	acct, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	deposits, withdrawals, err := q.SumTransactionAmounts(ctx, accountID)
	if err != nil {
		return 0, err
	}
	bal := acct.OpeningBalance + deposits - withdrawals
	if err := q.UpdateAccountBalance(ctx, accountID, bal); err != nil {
		return 0, err
	}
	return bal, nil
}

func rowToTransaction(accountID int64, batchID string, r parser.Row) *domain.BankTransaction {
	return &domain.BankTransaction{
		BankAccountID:        accountID,
		TransactionDate:      r.TransactionDate,
		ValueDate:            r.ValueDate,
		Description:          r.Description,
		ReferenceNumber:      r.ReferenceNumber,
		DepositAmount:        r.Deposit,
		WithdrawalAmount:     r.Withdrawal,
		Balance:              r.Balance,
		ImportBatchID:        batchID,
		Category:             r.Category,
		CategorizationStatus: domain.StatusUncategorized,
	}
}
