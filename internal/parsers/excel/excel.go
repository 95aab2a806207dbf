// Package excel provides XLS and XLSX statement adapters. Both extract the
// sheet into a cell table, then detect the bank profile from the header row
// the same way the CSV adapters do.
package excel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/arthaledger/bankfeed/internal/parser"
)

// ole2Magic is the compound-document signature legacy XLS files start with.
var ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// zipMagic is the PK zip signature XLSX files start with.
var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// XLSAdapter parses legacy BIFF workbooks.
type XLSAdapter struct{}

// NewXLS returns the XLS adapter.
func NewXLS() *XLSAdapter { return &XLSAdapter{} }

// Name returns the adapter identifier.
func (a *XLSAdapter) Name() string { return "XLS" }

// CanParse matches the .xls extension with the OLE2 magic number.
func (a *XLSAdapter) CanParse(filename string, header []byte) bool {
	if strings.ToLower(filepath.Ext(filename)) != ".xls" {
		return false
	}
	return bytes.HasPrefix(header, ole2Magic)
}

// Parse opens the workbook's first sheet and normalizes it.
func (a *XLSAdapter) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) (*parser.Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement content: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	workbook, err := xls.OpenReader(bytes.NewReader(raw), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open XLS workbook %s: %w", meta.Filename, err)
	}
	if workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("no sheets in XLS workbook %s", meta.Filename)
	}
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("could not read first sheet of %s", meta.Filename)
	}

	table := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			table = append(table, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		table = append(table, cells)
	}

	return normalizeSheet(table, meta)
}

// XLSXAdapter parses OOXML workbooks.
type XLSXAdapter struct{}

// NewXLSX returns the XLSX adapter.
func NewXLSX() *XLSXAdapter { return &XLSXAdapter{} }

// Name returns the adapter identifier.
func (a *XLSXAdapter) Name() string { return "XLSX" }

// CanParse matches the .xlsx extension with the zip magic number.
func (a *XLSXAdapter) CanParse(filename string, header []byte) bool {
	if strings.ToLower(filepath.Ext(filename)) != ".xlsx" {
		return false
	}
	return bytes.HasPrefix(header, zipMagic)
}

// Parse opens the workbook's first sheet and normalizes it.
func (a *XLSXAdapter) Parse(ctx context.Context, r io.Reader, meta parser.Metadata) (*parser.Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement content: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX workbook %s: %w", meta.Filename, err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in XLSX workbook %s", meta.Filename)
	}
	table, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheets[0], meta.Filename, err)
	}

	return normalizeSheet(table, meta)
}

func normalizeSheet(table [][]string, meta parser.Metadata) (*parser.Statement, error) {
	headerIdx, profile, mapping, err := parser.FindHeader(table)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", meta.Filename, err)
	}

	stmt := parser.NormalizeTable(table, headerIdx+1, 0, profile, mapping)
	if profile.Name != parser.Generic.Name {
		stmt.Bank = profile.Name
	}
	return stmt, nil
}
