// Package ofx provides OFX/QFX statement parsing.
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/arthaledger/bankfeed/internal/money"
	"github.com/arthaledger/bankfeed/internal/parser"
)

// Adapter parses OFX/QFX downloads. Stateless, safe for concurrent use.
type Adapter struct{}

// New returns the OFX adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "OFX" }

// CanParse checks the extension and the OFX header markers (both v1 SGML
// and v2 XML forms).
func (a *Adapter) CanParse(filename string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts normalized rows from an OFX response file.
func (a *Adapter) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) (*parser.Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX content from %s: %w", meta.Filename, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	response, err := ofxgo.ParseResponse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file %s (%d bytes): %w", meta.Filename, len(content), err)
	}

	stmt := &parser.Statement{Mapping: parser.VirtualMapping(map[parser.Field]string{
		parser.FieldDate:      "DTPOSTED",
		parser.FieldAmount:    "TRNAMT",
		parser.FieldDesc:      "NAME/MEMO",
		parser.FieldReference: "FITID",
	})}

	for _, msg := range response.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok || bank.BankTranList == nil {
			continue
		}
		appendTransactions(stmt, bank.BankTranList.Transactions)
	}
	for _, msg := range response.CreditCard {
		card, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || card.BankTranList == nil {
			continue
		}
		appendTransactions(stmt, card.BankTranList.Transactions)
	}

	if len(stmt.Rows) == 0 && len(stmt.Warnings) == 0 {
		return nil, fmt.Errorf("no bank or credit card statement in OFX file %s", meta.Filename)
	}
	return stmt, nil
}

func appendTransactions(stmt *parser.Statement, txns []ofxgo.Transaction) {
	for i, txn := range txns {
		amountFloat, _ := txn.TrnAmt.Float64()
		amount := money.FromRupees(amountFloat)
		if amount.IsZero() {
			stmt.Warnf(i+1, "skipped transaction %s: zero amount", txn.FiTID.String())
			continue
		}

		description := strings.TrimSpace(txn.Name.String())
		if memo := strings.TrimSpace(txn.Memo.String()); memo != "" {
			if description == "" {
				description = memo
			} else {
				description = description + " " + memo
			}
		}
		if description == "" {
			stmt.Warnf(i+1, "skipped transaction %s: empty description", txn.FiTID.String())
			continue
		}

		date := txn.DtPosted.Format("2006-01-02")
		row := parser.Row{
			TransactionDate: date,
			ValueDate:       date,
			Description:     description,
			ReferenceNumber: strings.TrimSpace(txn.FiTID.String()),
		}
		// OFX sign convention: positive = money in, negative = money out.
		if amount > 0 {
			row.Deposit = amount
		} else {
			row.Withdrawal = -amount
		}
		stmt.Rows = append(stmt.Rows, row)
	}
}
