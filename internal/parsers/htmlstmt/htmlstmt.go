// Package htmlstmt parses bank "detailed statement" HTML exports: documents
// with one or more tables, of which one carries the transaction listing.
package htmlstmt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/arthaledger/bankfeed/internal/parser"
)

// Adapter parses HTML table statements.
type Adapter struct{}

// New returns the HTML adapter.
func New() *Adapter { return &Adapter{} }

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "HTML" }

// CanParse matches the .html/.htm extension with table markup in the
// sniffed bytes.
func (a *Adapter) CanParse(filename string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".html" && ext != ".htm" {
		return false
	}
	lower := bytes.ToLower(header)
	return bytes.Contains(lower, []byte("<table")) || bytes.Contains(lower, []byte("<html"))
}

// Parse extracts every table from the document and normalizes the first one
// with a recognizable statement header.
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

	decoded, err := parser.DecodeToUTF8(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Filename, err)
	}

	doc, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML in %s: %w", meta.Filename, err)
	}

	tables := extractTables(doc)
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables found in %s", meta.Filename)
	}

	for _, table := range tables {
		headerIdx, profile, mapping, err := parser.FindHeader(table)
		if err != nil {
			continue
		}
		stmt := parser.NormalizeTable(table, headerIdx+1, 0, profile, mapping)
		if profile.Name != parser.Generic.Name {
			stmt.Bank = profile.Name
		}
		return stmt, nil
	}

	return nil, fmt.Errorf("no transaction table recognized in %s", meta.Filename)
}

// extractTables walks the DOM collecting each <table> as a cell matrix.
// Nested tables are collected separately; their rows are excluded from the
// enclosing table.
func extractTables(doc *html.Node) [][][]string {
	var tables [][][]string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" {
			tables = append(tables, tableRows(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return tables
}

func tableRows(table *html.Node) [][]string {
	var rows [][]string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "table":
				if n != table {
					return // nested table, collected on its own
				}
			case "tr":
				rows = append(rows, rowCells(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return rows
}

func rowCells(tr *html.Node) []string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, strings.TrimSpace(nodeText(c)))
		}
	}
	return cells
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
