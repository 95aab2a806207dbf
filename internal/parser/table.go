package parser

import (
	"fmt"
	"strings"

	"github.com/arthaledger/bankfeed/internal/money"
)

// headerScanLimit bounds how deep into a table we look for the header row.
// Bank exports put preamble (account holder, period, disclaimers) above the
// column headers, but never this much of it.
const headerScanLimit = 60

// FindHeader scans the table for the first row that maps to a usable column
// layout. Returns the header row index, the matched profile and mapping.
func FindHeader(table [][]string) (int, BankProfile, ColumnMapping, error) {
	limit := len(table)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		if profile, mapping, ok := DetectProfile(table[i]); ok {
			return i, profile, mapping, nil
		}
	}
	return 0, BankProfile{}, ColumnMapping{}, fmt.Errorf("no recognizable statement header found in first %d rows", limit)
}

// NormalizeTable converts a raw cell table into a Statement using the given
// profile and mapping. dataStart is the index of the first data row;
// lineBase is added to row indices in warnings so they reference positions
// in the source file.
func NormalizeTable(table [][]string, dataStart, lineBase int, profile BankProfile, mapping ColumnMapping) *Statement {
	stmt := &Statement{Mapping: mapping}

	for i := dataStart; i < len(table); i++ {
		line := lineBase + i + 1
		row, ok := normalizeRow(table[i], mapping, profile, stmt, line)
		if ok {
			stmt.Rows = append(stmt.Rows, row)
		}
	}
	return stmt
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func rowEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// footerMarkers end the transaction section of a statement table.
var footerMarkers = []string{"total", "opening balance", "closing balance", "statement summary", "legends"}

func looksLikeFooter(s string) bool {
	l := strings.ToLower(s)
	for _, marker := range footerMarkers {
		if strings.HasPrefix(l, marker) {
			return true
		}
	}
	return false
}

func normalizeRow(cells []string, m ColumnMapping, profile BankProfile, stmt *Statement, line int) (Row, bool) {
	if rowEmpty(cells) {
		return Row{}, false
	}

	dateStr := cellAt(cells, m.Date)
	if dateStr == "" || looksLikeFooter(dateStr) || looksLikeFooter(cellAt(cells, m.Desc)) {
		return Row{}, false
	}

	date, err := ParseDate(dateStr, profile.DateFormats...)
	if err != nil {
		stmt.Warnf(line, "skipped row: %v", err)
		return Row{}, false
	}

	valueDate := date
	if vd := cellAt(cells, m.ValueDate); vd != "" {
		if parsed, err := ParseDate(vd, profile.DateFormats...); err == nil {
			valueDate = parsed
		}
	}

	var deposit, withdrawal money.Paise
	if m.Amount >= 0 {
		amt, err := money.Parse(cellAt(cells, m.Amount))
		if err != nil {
			stmt.Warnf(line, "skipped row: %v", err)
			return Row{}, false
		}
		indicator := strings.ToUpper(cellAt(cells, m.Indicator))
		switch {
		case strings.Contains(indicator, "DR"):
			withdrawal = amt.Abs()
		case strings.Contains(indicator, "CR"):
			deposit = amt.Abs()
		case amt < 0:
			withdrawal = -amt
		default:
			deposit = amt
		}
	} else {
		if withdrawal, err = money.Parse(cellAt(cells, m.Withdrawal)); err != nil {
			stmt.Warnf(line, "skipped row: bad withdrawal amount: %v", err)
			return Row{}, false
		}
		if deposit, err = money.Parse(cellAt(cells, m.Deposit)); err != nil {
			stmt.Warnf(line, "skipped row: bad deposit amount: %v", err)
			return Row{}, false
		}
		// A Dr-suffixed or negative figure in either column still means
		// that side; normalize the sign.
		withdrawal = withdrawal.Abs()
		deposit = deposit.Abs()
	}

	if deposit.IsZero() && withdrawal.IsZero() {
		stmt.Warnf(line, "skipped row: zero amount in both deposit and withdrawal")
		return Row{}, false
	}

	balance, _ := money.Parse(cellAt(cells, m.Balance))

	return Row{
		TransactionDate: date,
		ValueDate:       valueDate,
		Description:     cellAt(cells, m.Desc),
		ReferenceNumber: cellAt(cells, m.Reference),
		Deposit:         deposit,
		Withdrawal:      withdrawal,
		Balance:         balance,
	}, true
}
