// Package pdfstmt parses PDF statements via text extraction. PDF layout
// carries no cell structure, so rows are recovered line by line: a line
// starting with a date is a candidate transaction, its trailing numeric
// tokens are the amount columns, and everything between is the narration.
package pdfstmt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/parser"
)

// Adapter parses text-based PDF statements.
type Adapter struct{}

// New returns the PDF adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "PDF" }

// CanParse matches the .pdf extension with the %PDF magic.
func (a *Adapter) CanParse(filename string, header []byte) bool {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return false
	}
	return bytes.HasPrefix(header, []byte("%PDF"))
}

// Parse extracts text rows from every page and normalizes the transaction
// lines. Scanned (image-only) PDFs yield no text and fail as unreadable.
func (a *Adapter) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) (*parser.Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement content: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", meta.Filename, err)
	}

	lines, err := extractLines(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", meta.Filename, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no extractable text in %s (scanned statement?)", meta.Filename)
	}

	return normalizeLines(lines), nil
}

func extractLines(reader *pdf.Reader) ([]string, error) {
	var lines []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			var b strings.Builder
			for _, text := range row.Content {
				b.WriteString(text.S)
				b.WriteString(" ")
			}
			line := strings.Join(strings.Fields(b.String()), " ")
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

func normalizeLines(lines []string) *parser.Statement {
	stmt := &parser.Statement{Mapping: parser.VirtualMapping(map[parser.Field]string{
		parser.FieldDate:   "leading date token",
		parser.FieldDesc:   "narration between date and amounts",
		parser.FieldAmount: "trailing numeric columns",
	})}

	var prevBalance money.Paise
	havePrev := false

	for i, line := range lines {
		tokens := strings.Fields(line)
		if len(tokens) < 3 {
			continue
		}

		date, used, ok := leadingDate(tokens)
		if !ok {
			continue // header, footer or narration continuation
		}

		amounts, rest := trailingAmounts(tokens[used:])
		desc := strings.Join(rest, " ")

		switch len(amounts) {
		case 3:
			// withdrawal | deposit | balance columns, blanks printed as 0.00
			row := parser.Row{
				TransactionDate: date,
				ValueDate:       date,
				Description:     desc,
				Withdrawal:      amounts[0].Abs(),
				Deposit:         amounts[1].Abs(),
				Balance:         amounts[2],
			}
			if row.Withdrawal.IsZero() && row.Deposit.IsZero() {
				stmt.Warnf(i+1, "skipped row: zero amount in both deposit and withdrawal")
				continue
			}
			// Both sides printed non-zero cannot be disambiguated from text.
			if !row.Withdrawal.IsZero() && !row.Deposit.IsZero() {
				stmt.Warnf(i+1, "skipped row: ambiguous amounts %s / %s", row.Withdrawal, row.Deposit)
				continue
			}
			prevBalance, havePrev = row.Balance, true
			stmt.Rows = append(stmt.Rows, row)
		case 2:
			// amount | balance. The side comes from the running balance
			// delta when we have one, else from a Dr/Cr token on the line.
			amount, balance := amounts[0], amounts[1]
			row := parser.Row{
				TransactionDate: date,
				ValueDate:       date,
				Description:     desc,
				Balance:         balance,
			}
			if amount.IsZero() {
				stmt.Warnf(i+1, "skipped row: zero amount")
				continue
			}
			deposit := amount > 0
			if amount < 0 {
				deposit = false
			} else if havePrev {
				deposit = balance >= prevBalance
			} else if hasToken(tokens, "dr") {
				deposit = false
			}
			if deposit {
				row.Deposit = amount.Abs()
			} else {
				row.Withdrawal = amount.Abs()
			}
			prevBalance, havePrev = balance, true
			stmt.Rows = append(stmt.Rows, row)
		default:
			stmt.Warnf(i+1, "skipped row: expected amount columns, found %d numeric fields", len(amounts))
		}
	}
	return stmt
}

// leadingDate parses the date at the start of the line, returning how many
// tokens it consumed.
func leadingDate(tokens []string) (string, int, bool) {
	date, err := parser.ParseDate(tokens[0])
	if err == nil {
		return date, 1, true
	}
	// Dates like "01 Jan 2025" span three tokens.
	if len(tokens) >= 3 {
		if date, err = parser.ParseDate(strings.Join(tokens[:3], " ")); err == nil {
			return date, 3, true
		}
	}
	return "", 0, false
}

// trailingAmounts peels numeric tokens off the end of the line, up to the
// three amount columns a statement can print.
func trailingAmounts(tokens []string) ([]money.Paise, []string) {
	var amounts []money.Paise
	end := len(tokens)
	for end > 0 && len(amounts) < 3 {
		tok := tokens[end-1]
		if !looksNumeric(tok) {
			break
		}
		v, err := money.Parse(tok)
		if err != nil {
			break
		}
		amounts = append([]money.Paise{v}, amounts...)
		end--
	}
	return amounts, tokens[:end]
}

func looksNumeric(tok string) bool {
	hasDigit := false
	for _, r := range tok {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r == '.' || r == ',' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return hasDigit && strings.Contains(tok, ".")
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if strings.EqualFold(strings.Trim(t, "()."), want) {
			return true
		}
	}
	return false
}
