package parser

import (
	"strings"
)

// Field names the logical columns a statement table can carry.
type Field string

const (
	FieldDate       Field = "date"
	FieldValueDate  Field = "value_date"
	FieldDesc       Field = "description"
	FieldReference  Field = "reference"
	FieldDeposit    Field = "deposit"
	FieldWithdrawal Field = "withdrawal"
	FieldBalance    Field = "balance"
	FieldAmount     Field = "amount"    // single-amount-column banks
	FieldIndicator  Field = "indicator" // Dr/Cr column
)

// fieldOrder fixes the assignment order so broad candidates (plain "date")
// cannot steal a column a more specific field needs.
var fieldOrder = []Field{
	FieldValueDate, FieldDate, FieldDesc, FieldReference,
	FieldWithdrawal, FieldDeposit, FieldBalance, FieldAmount, FieldIndicator,
}

// ColumnMapping reports which source column feeds each normalized field.
// Indices are -1 when the field is absent. Source maps field name to the
// header cell as it appeared in the file, for human confirmation in preview.
type ColumnMapping struct {
	Date       int
	ValueDate  int
	Desc       int
	Reference  int
	Deposit    int
	Withdrawal int
	Balance    int
	Amount     int
	Indicator  int
	Source     map[Field]string
}

// VirtualMapping builds a mapping report for adapters whose source format
// has no columns (MT940 tags, OFX elements): all indices are absent, Source
// documents where each field comes from.
func VirtualMapping(source map[Field]string) ColumnMapping {
	m := emptyMapping()
	for f, s := range source {
		m.Source[f] = s
	}
	return m
}

func emptyMapping() ColumnMapping {
	return ColumnMapping{
		Date: -1, ValueDate: -1, Desc: -1, Reference: -1,
		Deposit: -1, Withdrawal: -1, Balance: -1, Amount: -1, Indicator: -1,
		Source: map[Field]string{},
	}
}

func (m *ColumnMapping) index(f Field) *int {
	switch f {
	case FieldDate:
		return &m.Date
	case FieldValueDate:
		return &m.ValueDate
	case FieldDesc:
		return &m.Desc
	case FieldReference:
		return &m.Reference
	case FieldDeposit:
		return &m.Deposit
	case FieldWithdrawal:
		return &m.Withdrawal
	case FieldBalance:
		return &m.Balance
	case FieldAmount:
		return &m.Amount
	default:
		return &m.Indicator
	}
}

// Usable reports whether the mapping can yield transactions: a date, a
// description, and at least one amount column.
func (m ColumnMapping) Usable() bool {
	hasAmount := m.Deposit >= 0 || m.Withdrawal >= 0 || m.Amount >= 0
	return m.Date >= 0 && m.Desc >= 0 && hasAmount
}

// BankProfile declares one bank's header signature and column candidates.
// Candidates are lowercase substrings matched against normalized header
// cells.
type BankProfile struct {
	Name        string
	Signature   []string // all must appear somewhere in the header row
	Candidates  map[Field][]string
	DateFormats []string // tried before the shared list
}

// builtin bank profiles, tried in order before the generic heuristic. The
// header shapes follow each bank's standard e-statement export.
var profiles = []BankProfile{
	{
		Name:      "ICICI",
		Signature: []string{"transaction remarks"},
		Candidates: map[Field][]string{
			FieldDate:       {"transaction date"},
			FieldValueDate:  {"value date"},
			FieldDesc:       {"transaction remarks"},
			FieldReference:  {"cheque number", "chq"},
			FieldWithdrawal: {"withdrawal amount"},
			FieldDeposit:    {"deposit amount"},
			FieldBalance:    {"balance"},
		},
		DateFormats: []string{"02/01/2006"},
	},
	{
		Name:      "HDFC",
		Signature: []string{"narration"},
		Candidates: map[Field][]string{
			FieldDate:       {"date"},
			FieldValueDate:  {"value dt"},
			FieldDesc:       {"narration"},
			FieldReference:  {"chq./ref.no", "ref.no", "chq"},
			FieldWithdrawal: {"withdrawal amt"},
			FieldDeposit:    {"deposit amt"},
			FieldBalance:    {"closing balance"},
		},
		DateFormats: []string{"02/01/06"},
	},
	{
		Name:      "SBI",
		Signature: []string{"txn date"},
		Candidates: map[Field][]string{
			FieldDate:       {"txn date"},
			FieldValueDate:  {"value date"},
			FieldDesc:       {"description"},
			FieldReference:  {"ref no./cheque no", "ref no", "cheque"},
			FieldWithdrawal: {"debit"},
			FieldDeposit:    {"credit"},
			FieldBalance:    {"balance"},
		},
		DateFormats: []string{"2 Jan 2006", "02 Jan 2006"},
	},
	{
		Name:      "KOTAK",
		Signature: []string{"dr / cr"},
		Candidates: map[Field][]string{
			FieldDate:      {"date"},
			FieldDesc:      {"description", "narration"},
			FieldReference: {"chq / ref no", "ref no"},
			FieldAmount:    {"amount"},
			FieldIndicator: {"dr / cr"},
			FieldBalance:   {"balance"},
		},
		DateFormats: []string{"02-01-2006"},
	},
	{
		Name:      "AXIS",
		Signature: []string{"tran date", "particulars"},
		Candidates: map[Field][]string{
			FieldDate:       {"tran date"},
			FieldValueDate:  {"value date"},
			FieldDesc:       {"particulars"},
			FieldReference:  {"chq no"},
			FieldWithdrawal: {"debit"},
			FieldDeposit:    {"credit"},
			FieldBalance:    {"balance"},
		},
		DateFormats: []string{"02-01-2006"},
	},
}

// Generic is the fallback heuristic profile: columns matched by fuzzy header
// names, no bank signature.
var Generic = BankProfile{
	Name: "GENERIC",
	Candidates: map[Field][]string{
		FieldDate:       {"transaction date", "txn date", "tran date", "post date", "date"},
		FieldValueDate:  {"value date", "value dt"},
		FieldDesc:       {"description", "narration", "particulars", "remarks", "details"},
		FieldReference:  {"reference", "ref no", "cheque", "chq", "utr"},
		FieldWithdrawal: {"withdrawal", "debit"},
		FieldDeposit:    {"deposit", "credit"},
		FieldBalance:    {"balance", "closing"},
		FieldAmount:     {"amount"},
		FieldIndicator:  {"dr / cr", "dr/cr", "cr/dr", "type"},
	},
}

// Profiles returns the bank-specific profiles in priority order.
func Profiles() []BankProfile { return profiles }

// ProfileByName returns the bank profile for a declared format name.
func ProfileByName(name string) (BankProfile, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == Generic.Name {
		return Generic, true
	}
	for _, p := range profiles {
		if p.Name == name {
			return p, true
		}
	}
	return BankProfile{}, false
}

func normalizeHeader(cell string) string {
	return strings.ToLower(strings.TrimSpace(cell))
}

// MatchesHeader reports whether every signature token of the profile appears
// in the header row.
func (p BankProfile) MatchesHeader(cells []string) bool {
	if len(p.Signature) == 0 {
		return false
	}
	joined := ""
	for _, c := range cells {
		joined += normalizeHeader(c) + "|"
	}
	for _, token := range p.Signature {
		if !strings.Contains(joined, token) {
			return false
		}
	}
	return true
}

// MapHeader assigns header columns to fields for this profile.
func (p BankProfile) MapHeader(cells []string) ColumnMapping {
	m := emptyMapping()
	used := make(map[int]bool)

	for _, field := range fieldOrder {
		candidates := p.Candidates[field]
	cellScan:
		for _, cand := range candidates {
			for i, cell := range cells {
				h := normalizeHeader(cell)
				if h == "" || used[i] || !strings.Contains(h, cand) {
					continue
				}
				// Plain "date" must not steal the value-date column.
				if field == FieldDate && cand == "date" && strings.Contains(h, "value") {
					continue
				}
				*m.index(field) = i
				m.Source[field] = strings.TrimSpace(cell)
				used[i] = true
				break cellScan
			}
		}
	}
	return m
}

// DetectProfile finds the bank profile whose signature matches the header
// row, falling back to the generic heuristic when its mapping is usable.
func DetectProfile(cells []string) (BankProfile, ColumnMapping, bool) {
	for _, p := range profiles {
		if p.MatchesHeader(cells) {
			if m := p.MapHeader(cells); m.Usable() {
				return p, m, true
			}
		}
	}
	if m := Generic.MapHeader(cells); m.Usable() {
		return Generic, m, true
	}
	return BankProfile{}, ColumnMapping{}, false
}
