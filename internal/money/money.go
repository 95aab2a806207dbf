// Package money provides fixed-point rupee arithmetic in integer paise.
// Statement amounts never touch float accumulation: parsing goes straight
// from text to hundredths, and all sums are int64 additions.
package money

import (
	"fmt"
	"strings"
)

// Paise is a monetary amount in hundredths of a rupee.
type Paise int64

// Zero is the zero amount.
const Zero Paise = 0

// FromRupees converts a float rupee value to Paise with round-half-up
// semantics. Only use this at API boundaries that hand us floats; internal
// code should stay in Paise.
func FromRupees(r float64) Paise {
	if r < 0 {
		return -FromRupees(-r)
	}
	return Paise(r*100 + 0.5)
}

// Rupees returns the amount as a float64 rupee value for display and
// serialization.
func (p Paise) Rupees() float64 {
	return float64(p) / 100
}

// IsZero reports whether the amount is exactly zero.
func (p Paise) IsZero() bool { return p == 0 }

// Abs returns the absolute value.
func (p Paise) Abs() Paise {
	if p < 0 {
		return -p
	}
	return p
}

// Min returns the smaller of two amounts.
func Min(a, b Paise) Paise {
	if a < b {
		return a
	}
	return b
}

// String formats the amount as a plain decimal, e.g. "1234.50" or "-0.05".
func (p Paise) String() string {
	sign := ""
	v := p
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Parse converts a statement amount string to Paise. It tolerates the
// formats Indian bank exports actually produce:
//
//	"1,23,456.78"  Indian digit grouping
//	"₹ 500.00"     currency symbols (₹, Rs., INR)
//	"(250.00)"     parentheses as negative
//	"500.00 Dr"    trailing Dr/Cr indicators (Dr = negative)
//	"1.234,56"     comma-decimal exports
//
// Empty strings and bare dashes parse as zero. Fractions beyond two digits
// round half-up to the paisa.
func Parse(s string) (Paise, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" {
		return 0, nil
	}

	negative := false

	// Trailing Dr/Cr indicator. Dr means money out, which callers treat as
	// a withdrawal; we surface it as a negative amount.
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}

	// Parentheses as negative.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = !negative
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	// Strip currency markers.
	for _, marker := range []string{"₹", "Rs.", "Rs", "INR", "$"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(s[1:])
	}

	if s == "" {
		return 0, nil
	}

	// Separator disambiguation, same approach as the usual statement
	// exports: when both are present the last one is the decimal point.
	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case commas == 1 && dots == 0:
		// Single comma: decimal separator only when followed by exactly
		// two digits, else a thousands separator.
		idx := strings.Index(s, ",")
		if len(s)-idx-1 == 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.ReplaceAll(s, " ", "")

	whole, frac := s, ""
	if idx := strings.Index(s, "."); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}

	var units int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		units = units*10 + int64(r-'0')
	}

	var cents int64
	switch {
	case frac == "":
		cents = 0
	default:
		for _, r := range frac {
			if r < '0' || r > '9' {
				return 0, fmt.Errorf("invalid amount %q", s)
			}
		}
		// Round half-up on the third fractional digit.
		if len(frac) > 2 {
			third := frac[2]
			frac = frac[:2]
			cents = fracCents(frac)
			if third >= '5' {
				cents++
			}
		} else {
			cents = fracCents(frac)
		}
	}

	total := units*100 + cents
	if negative {
		total = -total
	}
	return Paise(total), nil
}

func fracCents(frac string) int64 {
	switch len(frac) {
	case 0:
		return 0
	case 1:
		return int64(frac[0]-'0') * 10
	default:
		return int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}
}
