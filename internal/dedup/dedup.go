// Package dedup decides whether an incoming statement row duplicates a
// transaction already stored for the account.
//
// Two tiers: rows carrying a bank reference number match on account, date,
// both amounts and the exact reference; rows without one fall back to the
// first 80 characters of the description. The prefix keeps banks that
// append varying trace suffixes to otherwise identical narrations from
// defeating the match.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/store"
)

// DescriptionPrefixLen is how much of the description the fallback tier
// compares.
const DescriptionPrefixLen = 80

// IsDuplicate reports whether t matches a stored transaction of the same
// account. The exact-reference tier runs first when t carries a reference;
// the description-prefix tier covers reference-less rows and references the
// bank assigned only on one side of a re-export. The caller is expected to
// hold the account lock so rows inserted earlier in the same batch are
// visible to later checks.
func IsDuplicate(ctx context.Context, q *store.Queries, t *domain.BankTransaction) (bool, error) {
	ref := strings.TrimSpace(t.ReferenceNumber)
	if ref != "" {
		n, err := q.CountByReference(ctx, t.BankAccountID, t.TransactionDate,
			t.DepositAmount, t.WithdrawalAmount, ref)
		if err != nil {
			return false, fmt.Errorf("reference duplicate check: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}

	n, err := q.CountByDescriptionPrefix(ctx, t.BankAccountID, t.TransactionDate,
		t.DepositAmount, t.WithdrawalAmount, Prefix(t.Description))
	if err != nil {
		return false, fmt.Errorf("description duplicate check: %w", err)
	}
	return n > 0, nil
}

// Prefix returns the trimmed description cut to DescriptionPrefixLen.
func Prefix(description string) string {
	d := strings.TrimSpace(description)
	if len(d) > DescriptionPrefixLen {
		d = d[:DescriptionPrefixLen]
	}
	return d
}

// Fingerprint hashes the identity fields of a row so the preview step can
// flag duplicates inside a single uploaded file before anything is stored.
// Format: SHA256("{date}|{deposit}|{withdrawal}|{normalized identity}") where
// the identity is the reference number when present, otherwise the
// description prefix, lowercased and trimmed.
func Fingerprint(t *domain.BankTransaction) string {
	identity := strings.TrimSpace(t.ReferenceNumber)
	if identity == "" {
		identity = Prefix(t.Description)
	}
	identity = strings.ToLower(identity)

	input := fmt.Sprintf("%s|%d|%d|%s",
		t.TransactionDate, int64(t.DepositAmount), int64(t.WithdrawalAmount), identity)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
