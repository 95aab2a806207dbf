// Package parser defines the strategy interface all statement format
// adapters implement, plus the normalized transaction row they produce.
package parser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/money"
)

// Adapter is the strategy interface for statement format adapters.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "ICICI", "MT940").
	Name() string

	// CanParse checks whether this adapter can handle the file, based on
	// the filename and the first bytes of content.
	CanParse(filename string, header []byte) bool

	// Parse extracts normalized rows from the file. Malformed rows are
	// skipped and reported in Statement.Warnings; only a completely
	// unreadable file returns an error.
	Parse(ctx context.Context, r io.Reader, meta Metadata) (*Statement, error)
}

// Metadata carries per-file context into an adapter.
type Metadata struct {
	Filename       string
	DeclaredFormat string // bank format declared by the caller, or "AUTO"
	ReceivedAt     time.Time
}

// Statement is the output of one adapter run.
type Statement struct {
	Rows     []Row
	Mapping  ColumnMapping
	Warnings []Warning

	// Bank is the bank profile the adapter recognized from the content,
	// when it can tell (table-based adapters detect it from the header
	// row). Empty when the adapter itself identifies the format.
	Bank string
}

// Row is a normalized statement line. Exactly one of Deposit / Withdrawal is
// non-zero; rows where both are zero are dropped with a warning before they
// reach here.
type Row struct {
	TransactionDate string // YYYY-MM-DD
	ValueDate       string // YYYY-MM-DD
	Description     string
	ReferenceNumber string
	Deposit         money.Paise
	Withdrawal      money.Paise
	Balance         money.Paise

	// Category is an optional suggestion filled by the rules engine after
	// parsing; adapters leave it empty.
	Category domain.Category
}

// Warning is a non-fatal row-level parse issue.
type Warning struct {
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

// Warnf appends a formatted warning to the statement.
func (s *Statement) Warnf(line int, format string, args ...any) {
	s.Warnings = append(s.Warnings, Warning{Line: line, Message: fmt.Sprintf(format, args...)})
}

// dateFormats covers the date renderings Indian bank exports use. Ordered
// most-specific first; two-digit years last since they can shadow others.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02 Jan 2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"01/02/2006 15:04:05",
	"02/01/06",
	"02-Jan-06",
}

// ParseDate converts a statement date cell to YYYY-MM-DD. Extra formats, if
// given, are tried before the shared list.
func ParseDate(s string, extra ...string) (string, error) {
	for _, layout := range append(extra, dateFormats...) {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
