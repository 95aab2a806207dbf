// Package store persists the engine's entities in SQLite. All monetary
// columns are INTEGER paise; balances are derived by recomputation, never
// incremented in place.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bank_accounts (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT NOT NULL,
	opening_balance  INTEGER NOT NULL DEFAULT 0,
	current_balance  INTEGER NOT NULL DEFAULT 0,
	is_active        INTEGER NOT NULL DEFAULT 1,
	updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS bank_transactions (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	bank_account_id       INTEGER NOT NULL REFERENCES bank_accounts(id),
	transaction_date      TEXT NOT NULL,
	value_date            TEXT NOT NULL,
	description           TEXT NOT NULL,
	reference_number      TEXT NOT NULL DEFAULT '',
	deposit_amount        INTEGER NOT NULL DEFAULT 0,
	withdrawal_amount     INTEGER NOT NULL DEFAULT 0,
	balance               INTEGER NOT NULL DEFAULT 0,
	import_batch_id       TEXT NOT NULL DEFAULT '',
	category              TEXT NOT NULL DEFAULT '',
	category_type         TEXT NOT NULL DEFAULT '',
	categorization_status TEXT NOT NULL DEFAULT 'uncategorized',
	sub_account_id        INTEGER NOT NULL DEFAULT 0,
	customer_id           INTEGER NOT NULL DEFAULT 0,
	vendor_id             INTEGER NOT NULL DEFAULT 0,
	transfer_account_id   INTEGER NOT NULL DEFAULT 0,
	is_reconciled         INTEGER NOT NULL DEFAULT 0,
	linked_invoice_ids    TEXT NOT NULL DEFAULT '',
	linked_bill_ids       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_txn_account_date ON bank_transactions(bank_account_id, transaction_date);
CREATE INDEX IF NOT EXISTS idx_txn_batch ON bank_transactions(import_batch_id);

CREATE TABLE IF NOT EXISTS invoices (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	customer_id  INTEGER NOT NULL,
	number       TEXT NOT NULL,
	total_amount INTEGER NOT NULL,
	amount_paid  INTEGER NOT NULL DEFAULT 0,
	balance_due  INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'Final',
	updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS bills (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	vendor_id    INTEGER NOT NULL,
	number       TEXT NOT NULL,
	total_amount INTEGER NOT NULL,
	amount_paid  INTEGER NOT NULL DEFAULT 0,
	balance_due  INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'Pending',
	updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS payments (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	kind                TEXT NOT NULL,
	number              TEXT NOT NULL,
	bank_transaction_id INTEGER NOT NULL UNIQUE REFERENCES bank_transactions(id),
	customer_id         INTEGER NOT NULL DEFAULT 0,
	vendor_id           INTEGER NOT NULL DEFAULT 0,
	amount              INTEGER NOT NULL,
	original_amount     INTEGER NOT NULL,
	excess_amount       INTEGER NOT NULL DEFAULT 0,
	payment_mode        TEXT NOT NULL,
	reference_number    TEXT NOT NULL DEFAULT '',
	date                TEXT NOT NULL,
	status              TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_allocations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	payment_id INTEGER NOT NULL REFERENCES payments(id) ON DELETE CASCADE,
	target_id  INTEGER NOT NULL,
	amount     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alloc_payment ON payment_allocations(payment_id);
`

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same queries run
// inside and outside transactions.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle and the per-account lock table.
type Store struct {
	*Queries
	db *sql.DB

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// Open opens (or creates) the SQLite database and ensures the schema
// exists. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps the foreign_keys pragma in force everywhere and
	// makes ":memory:" databases usable; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{
		Queries: &Queries{db: db},
		db:      db,
		locks:   map[int64]*sync.Mutex{},
	}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside one sql transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// WithAccountLock serializes mutating operations per bank account. Import
// and categorization both run their read-modify-write sequences under this
// lock so the balance and allocation invariants cannot race.
func (s *Store) WithAccountLock(accountID int64, fn func() error) error {
	s.mu.Lock()
	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn()
}
