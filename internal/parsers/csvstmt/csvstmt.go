// Package csvstmt provides CSV statement adapters: one per supported bank
// profile plus a generic heuristic fallback.
package csvstmt

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/arthaledger/bankfeed/internal/parser"
)

// Adapter parses delimiter-separated statements for one bank profile. The
// struct carries only the immutable profile, so adapters are safe for
// concurrent use.
type Adapter struct {
	profile parser.BankProfile
	generic bool
}

// New returns a CSV adapter bound to a bank profile.
func New(profile parser.BankProfile) *Adapter {
	return &Adapter{profile: profile}
}

// NewGeneric returns the heuristic fallback adapter: it accepts any CSV
// whose header row yields a usable date/description/amount mapping.
func NewGeneric() *Adapter {
	return &Adapter{profile: parser.Generic, generic: true}
}

// Name returns the bank profile name this adapter detects.
func (a *Adapter) Name() string { return a.profile.Name }

// CanParse checks the extension and looks for the profile's header signature
// within the sniffed bytes.
func (a *Adapter) CanParse(filename string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".csv" {
		return false
	}

	table, err := readRecords(header)
	if err != nil || len(table) == 0 {
		return false
	}
	_, _, err = a.findHeader(table)
	return err == nil
}

// Parse reads the whole file, locates the header row for this profile and
// normalizes the data rows beneath it.
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

	table, err := readRecords(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content from %s: %w", meta.Filename, err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("CSV file %s is empty", meta.Filename)
	}

	headerIdx, mapping, err := a.findHeader(table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Filename, err)
	}

	return parser.NormalizeTable(table, headerIdx+1, 0, a.profile, mapping), nil
}

// findHeader locates this profile's header row. Bank adapters require the
// signature match; the generic adapter accepts any usable mapping.
func (a *Adapter) findHeader(table [][]string) (int, parser.ColumnMapping, error) {
	limit := len(table)
	if limit > 60 {
		limit = 60
	}
	for i := 0; i < limit; i++ {
		if !a.generic && !a.profile.MatchesHeader(table[i]) {
			continue
		}
		if m := a.profile.MapHeader(table[i]); m.Usable() {
			return i, m, nil
		}
	}
	return 0, parser.ColumnMapping{}, fmt.Errorf("no %s statement header found", a.profile.Name)
}

// readRecords decodes the bytes to UTF-8 and reads them as loose CSV.
// Preamble lines above the header make field counts uneven, so the reader
// accepts variable-length records.
func readRecords(data []byte) ([][]string, error) {
	decoded, err := parser.DecodeToUTF8(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(decoded)))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A single mangled line (stray quote in a narration) should
			// not kill the file; sniffing callers just see fewer rows.
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
