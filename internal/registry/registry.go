// Package registry holds the ordered list of statement adapters and picks
// the right one for a file, either from a declared bank format or by
// content sniffing.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/arthaledger/bankfeed/internal/domain"
	"github.com/arthaledger/bankfeed/internal/parser"
	"github.com/arthaledger/bankfeed/internal/parsers/csvstmt"
	"github.com/arthaledger/bankfeed/internal/parsers/excel"
	"github.com/arthaledger/bankfeed/internal/parsers/htmlstmt"
	"github.com/arthaledger/bankfeed/internal/parsers/mt940"
	"github.com/arthaledger/bankfeed/internal/parsers/ofx"
	"github.com/arthaledger/bankfeed/internal/parsers/pdfstmt"
)

// FormatAuto asks the registry to detect the format itself.
const FormatAuto = "AUTO"

// sniffLen bounds how much content detection inspects. Bank CSV exports put
// preamble above the header row, so this is larger than a magic-number check
// needs.
const sniffLen = 8192

// Registry holds adapters in detection priority order.
type Registry struct {
	adapters []parser.Adapter
}

// New creates a registry with all built-in adapters. Bank-specific CSV
// adapters run before the structural formats; the generic CSV heuristic is
// last so a bank signature always wins.
func New() *Registry {
	r := &Registry{}
	for _, profile := range parser.Profiles() {
		r.Register(csvstmt.New(profile))
	}
	r.Register(excel.NewXLS())
	r.Register(excel.NewXLSX())
	r.Register(htmlstmt.New())
	r.Register(pdfstmt.New())
	r.Register(ofx.New())
	r.Register(mt940.New())
	r.Register(csvstmt.NewGeneric())
	return r
}

// Register appends a custom adapter after the built-ins.
func (r *Registry) Register(a parser.Adapter) {
	r.adapters = append(r.adapters, a)
}

// ListAdapters returns the registered adapter names in priority order.
func (r *Registry) ListAdapters() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Result is a parsed statement plus the format tag that produced it.
type Result struct {
	DetectedFormat string
	Statement      *parser.Statement
}

// Parse picks an adapter for the file and runs it. declaredFormat may name a
// bank profile or adapter ("ICICI", "MT940"), or FormatAuto/"" for
// detection. The detected format reports the bank profile when the adapter
// recognized one from the content.
func (r *Registry) Parse(ctx context.Context, content []byte, filename, declaredFormat string) (*Result, error) {
	adapter, err := r.findAdapter(content, filename, declaredFormat)
	if err != nil {
		return nil, err
	}

	meta := parser.Metadata{Filename: filename, DeclaredFormat: declaredFormat}
	stmt, err := adapter.Parse(ctx, strings.NewReader(string(content)), meta)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParseFailure, adapter.Name(), err)
	}

	format := adapter.Name()
	if stmt.Bank != "" {
		format = stmt.Bank
	}
	return &Result{DetectedFormat: format, Statement: stmt}, nil
}

func (r *Registry) findAdapter(content []byte, filename, declaredFormat string) (parser.Adapter, error) {
	header := content
	if len(header) > sniffLen {
		header = header[:sniffLen]
	}

	declared := strings.ToUpper(strings.TrimSpace(declaredFormat))
	if declared != "" && declared != FormatAuto {
		var match parser.Adapter
		for _, a := range r.adapters {
			if strings.EqualFold(a.Name(), declared) {
				match = a
				break
			}
		}
		if match == nil {
			return nil, fmt.Errorf("%w: unknown statement format %q", domain.ErrValidation, declaredFormat)
		}
		// A declared bank name still has to fit the container: an ICICI
		// statement can arrive as XLSX or HTML, where the bank profile is
		// detected from the header row instead. Fall back to sniffing when
		// the named adapter rejects the file.
		if _, isBank := parser.ProfileByName(declared); !isBank || match.CanParse(filename, header) {
			return match, nil
		}
	}

	for _, a := range r.adapters {
		if a.CanParse(filename, header) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: no adapter recognizes %s", domain.ErrParseFailure, filename)
}
