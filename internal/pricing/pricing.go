// Package pricing parses storefront price strings into decimals and derives discount percentages.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrNoDigits is returned when the input holds no digits at all.
var ErrNoDigits = errors.New("no digits in price text")

var hundred = decimal.NewFromInt(100)

// Parse converts a locale-formatted amount ("1 299,50 грн", "$1,299.50", "799 грн.")
// into a decimal. Currency symbols, letters and whitespace are dropped; the decimal
// mark is inferred from the separators that remain and from whether digits were
// grouped with spaces.
func Parse(text string) (decimal.Decimal, error) {
	var b strings.Builder
	spaceGrouped := false
	prevDigit, inSpace := false, false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			if inSpace && prevDigit {
				spaceGrouped = true
			}
			b.WriteRune(r)
			prevDigit, inSpace = true, false
		case unicode.IsSpace(r):
			inSpace = true
		case r == '.' || r == ',':
			b.WriteRune(r)
			prevDigit, inSpace = false, false
		default:
			prevDigit, inSpace = false, false
		}
	}

	cleaned := strings.TrimRight(b.String(), ".,")
	if cleaned == "" || strings.IndexFunc(cleaned, unicode.IsDigit) < 0 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNoDigits, text)
	}

	normalized := normalizeSeparators(cleaned, spaceGrouped)
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", text, err)
	}
	return d, nil
}

// ParseOptional parses text, returning nil for blank input instead of an error.
func ParseOptional(text string) (*decimal.Decimal, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	d, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParsePercent parses a discount badge such as "-20%" or "Знижка 15 %" as an absolute percent.
func ParsePercent(text string) (decimal.Decimal, error) {
	d, err := Parse(text)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Abs(), nil
}

// normalizeSeparators returns s with a single '.' decimal mark and no grouping separators.
// A lone separator followed by three digits is grouping unless the integer part is
// zero or the thousands were already grouped with spaces.
func normalizeSeparators(s string, spaceGrouped bool) string {
	last := strings.LastIndexAny(s, ".,")
	if last < 0 {
		return s
	}

	mark := s[last]
	fraction := len(s) - last - 1
	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")

	strip := strings.NewReplacer(".", "", ",", "")
	intPart := strip.Replace(s[:last])
	zeroInt := strings.Trim(intPart, "0") == ""

	isDecimal := false
	switch {
	case hasDot && hasComma:
		// mixed: the rightmost kind is the decimal mark
		isDecimal = true
	case strings.Count(s, string(mark)) > 1:
		// repeated: grouping
	case fraction != 3, zeroInt, spaceGrouped:
		isDecimal = true
	}

	if !isDecimal {
		return strip.Replace(s)
	}
	if intPart == "" {
		intPart = "0"
	}
	return intPart + "." + s[last+1:]
}

// DiscountPercent computes round((old-current)/old*100).
// It returns nil when either price is missing, old is not positive, or there is no reduction:
// a missing discount is not the same as a zero discount.
func DiscountPercent(old, current *decimal.Decimal) *decimal.Decimal {
	if old == nil || current == nil {
		return nil
	}
	if !old.IsPositive() || !old.GreaterThan(*current) {
		return nil
	}
	pct := old.Sub(*current).Div(*old).Mul(hundred).Round(0)
	return &pct
}
