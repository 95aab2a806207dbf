// Package mt940 parses SWIFT MT940 and MT950 account statement messages.
// Both share the tag grammar this adapter understands (:20:, :25:, :28C:,
// :60F:, :61:, :86:, :62F:), so MT950 files are handled here too.
package mt940

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/parser"
)

// Adapter parses MT940/MT950 plain-text statements.
type Adapter struct{}

// New returns the MT940 adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "MT940" }

// tabularExts are claimed by other adapters; everything else (txt, sta,
// mt940, bare) is eligible for tag sniffing.
var tabularExts = map[string]bool{
	".csv": true, ".xls": true, ".xlsx": true,
	".html": true, ".htm": true, ".pdf": true,
}

// CanParse looks for the :20: transaction reference and :61: statement line
// tags in the sniffed content.
func (a *Adapter) CanParse(filename string, header []byte) bool {
	if tabularExts[strings.ToLower(filepath.Ext(filename))] {
		return false
	}
	return bytes.Contains(header, []byte(":20:")) && bytes.Contains(header, []byte(":61:"))
}

// statementLine matches :61: field content:
// value date (YYMMDD), optional entry date (MMDD), debit/credit mark
// (D, C, RD, RC), optional funds code letter, amount with comma decimal,
// transaction type code, then customer//bank references.
var statementLine = regexp.MustCompile(`^(\d{6})(\d{4})?(R?[CD])([A-Z])?([\d,\.]+)([A-Z][A-Z0-9]{3})(.*)$`)

// Parse converts the message to normalized rows. Each :61: line yields one
// transaction; a following :86: block supplies its description.
func (a *Adapter) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) (*parser.Statement, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement content: %w", err)
	}
	decoded, err := parser.DecodeToUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Filename, err)
	}

	fields, err := collectFields(decoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Filename, err)
	}

	stmt := &parser.Statement{Mapping: parser.VirtualMapping(map[parser.Field]string{
		parser.FieldDate:      ":61: entry date",
		parser.FieldValueDate: ":61: value date",
		parser.FieldAmount:    ":61: amount",
		parser.FieldDesc:      ":86: information to account owner",
	})}

	balance, haveBalance := money.Zero, false
	if opening, ok := fields.openingBalance(); ok {
		balance, haveBalance = opening, true
	}

	for _, entry := range fields.entries {
		row, ok := normalizeEntry(entry, stmt)
		if !ok {
			continue
		}
		if haveBalance {
			balance = balance + row.Deposit - row.Withdrawal
			row.Balance = balance
		}
		stmt.Rows = append(stmt.Rows, row)
	}

	if len(stmt.Rows) == 0 && len(fields.entries) == 0 {
		return nil, fmt.Errorf("no :61: statement lines in %s", meta.Filename)
	}
	return stmt, nil
}

// entry is one :61: line plus its trailing :86: description block.
type entry struct {
	line        int
	value       string
	description string
}

type message struct {
	tags    map[string]string
	entries []entry
}

// collectFields reassembles tag blocks. SWIFT wraps continuation lines
// without a leading colon; they belong to the previous tag.
func collectFields(content []byte) (*message, error) {
	msg := &message{tags: map[string]string{}}

	var currentTag string
	lineNum := 0
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" || line == "-" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			end := strings.Index(line[1:], ":")
			if end < 0 {
				continue
			}
			currentTag = line[1 : end+1]
			value := line[end+2:]
			switch {
			case currentTag == "61":
				msg.entries = append(msg.entries, entry{line: lineNum, value: value})
			case currentTag == "86" && len(msg.entries) > 0:
				last := &msg.entries[len(msg.entries)-1]
				if last.description != "" {
					last.description += " "
				}
				last.description += strings.TrimSpace(value)
			default:
				msg.tags[currentTag] = strings.TrimSpace(value)
			}
			continue
		}

		// Continuation line.
		switch {
		case currentTag == "86" && len(msg.entries) > 0:
			last := &msg.entries[len(msg.entries)-1]
			last.description += " " + strings.TrimSpace(line)
		case currentTag == "61" && len(msg.entries) > 0:
			last := &msg.entries[len(msg.entries)-1]
			last.value += line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return msg, nil
}

// balancePattern matches :60F:/:62F: content: D/C mark, YYMMDD, currency,
// amount.
var balancePattern = regexp.MustCompile(`^([CD])(\d{6})([A-Z]{3})([\d,\.]+)$`)

func (m *message) openingBalance() (money.Paise, bool) {
	for _, tag := range []string{"60F", "60M"} {
		value, ok := m.tags[tag]
		if !ok {
			continue
		}
		groups := balancePattern.FindStringSubmatch(strings.TrimSpace(value))
		if groups == nil {
			return 0, false
		}
		amount, err := money.Parse(strings.Replace(groups[4], ",", ".", 1))
		if err != nil {
			return 0, false
		}
		if groups[1] == "D" {
			amount = -amount
		}
		return amount, true
	}
	return 0, false
}

func normalizeEntry(e entry, stmt *parser.Statement) (parser.Row, bool) {
	groups := statementLine.FindStringSubmatch(strings.TrimSpace(e.value))
	if groups == nil {
		stmt.Warnf(e.line, "skipped :61: line: unrecognized layout %q", e.value)
		return parser.Row{}, false
	}

	valueDate, err := time.Parse("060102", groups[1])
	if err != nil {
		stmt.Warnf(e.line, "skipped :61: line: bad value date %q", groups[1])
		return parser.Row{}, false
	}

	entryDate := valueDate
	if groups[2] != "" {
		// Entry date is MMDD in the value date's year; a December value
		// date with a January entry date rolls into the next year.
		if d, err := time.Parse("20060102", fmt.Sprintf("%04d%s", valueDate.Year(), groups[2])); err == nil {
			if valueDate.Month() == time.December && d.Month() == time.January {
				d = d.AddDate(1, 0, 0)
			}
			entryDate = d
		}
	}

	// SWIFT amounts always use a comma decimal and carry no grouping, so
	// the comma maps straight to a decimal point; "123,4" means 123.40,
	// never 1234.
	amount, err := money.Parse(strings.Replace(groups[5], ",", ".", 1))
	if err != nil || amount.IsZero() {
		stmt.Warnf(e.line, "skipped :61: line: bad amount %q", groups[5])
		return parser.Row{}, false
	}
	amount = amount.Abs()

	row := parser.Row{
		TransactionDate: entryDate.Format("2006-01-02"),
		ValueDate:       valueDate.Format("2006-01-02"),
		Description:     e.description,
	}

	// D = debit (withdrawal), C = credit (deposit); RC/RD reverse the side.
	switch groups[3] {
	case "D", "RC":
		row.Withdrawal = amount
	case "C", "RD":
		row.Deposit = amount
	}

	reference := strings.TrimSpace(groups[7])
	if idx := strings.Index(reference, "//"); idx >= 0 {
		reference = strings.TrimSpace(reference[:idx])
	}
	if !strings.EqualFold(reference, "NONREF") {
		row.ReferenceNumber = reference
	}
	if row.Description == "" {
		row.Description = reference
	}
	if row.Description == "" {
		row.Description = "MT940 transaction " + groups[6]
	}

	return row, true
}
