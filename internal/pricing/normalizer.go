// Package pricing converts between scraped price text, canonical decimals
// and display strings.
package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyPrice is returned when the raw text contains no digits.
	ErrEmptyPrice = errors.New("price text has no digits")
	// ErrNegativePrice rejects amounts below zero in a price quote.
	ErrNegativePrice = errors.New("price is negative")
)

// NormalizationError reports raw price text that could not become a decimal.
type NormalizationError struct {
	Raw string
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize price %q: %v", e.Raw, e.Err)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// CleanPriceString strips currency symbols, whitespace and thousands
// separators from raw, leaving digits with at most one '.' decimal marker.
//
// A separator before any digit is a decimal marker only when digits alone
// follow it to the end (".99"); otherwise it is ignored ("Rs. 1,999").
// The rightmost separator decides the layout. It is a decimal marker when
// followed by one, two, or four or more digits, and a thousands separator when
// followed by exactly three, unless the text mixes '.' and ',' and that kind
// appears only once. A trailing separator is dropped.
func CleanPriceString(raw string) string {
	var (
		b        strings.Builder
		negative bool
		digits   bool
	)
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits = true
			b.WriteRune(r)
		case r == '.' || r == ',':
			if digits {
				b.WriteRune(r)
				continue
			}
			if frac := strings.TrimSpace(raw[i+1:]); isDigits(frac) {
				return sign(negative) + "0." + frac
			}
		case r == '-' && !digits:
			negative = true
		}
	}
	if !digits {
		return ""
	}

	s := strings.TrimRight(b.String(), ".,")
	last := strings.LastIndexAny(s, ".,")
	if last < 0 {
		return sign(negative) + s
	}

	trailing := len(s) - last - 1
	decimalAt := -1
	switch {
	case trailing == 3:
		mark := s[last]
		if strings.ContainsAny(s, otherSeparator(mark)) && strings.Count(s, string(mark)) == 1 {
			decimalAt = last
		}
	default:
		decimalAt = last
	}

	var out strings.Builder
	out.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '.' && c != ',' {
			out.WriteByte(c)
			continue
		}
		if i == decimalAt {
			out.WriteByte('.')
		}
	}

	return sign(negative) + out.String()
}

// ParsePrice cleans raw text and parses it as an exact decimal.
func ParsePrice(raw string) (decimal.Decimal, error) {
	cleaned := CleanPriceString(raw)
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, &NormalizationError{Raw: raw, Err: ErrEmptyPrice}
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, &NormalizationError{Raw: raw, Err: err}
	}
	return value, nil
}

// CountDecimals returns the number of fractional digits in the minimal
// representation of value; trailing zeros do not count.
func CountDecimals(value decimal.Decimal) int {
	s := value.String()
	idx := strings.IndexByte(s, '.')
	if idx < 0 {
		return 0
	}
	return len(strings.TrimRight(s[idx+1:], "0"))
}

// FormatCurrency renders value as "$1.234,5": '.' groups thousands, ','
// marks decimals, and negatives read "-$".
func FormatCurrency(value decimal.Decimal) string {
	places := CountDecimals(value)
	abs := value.Abs().StringFixed(int32(places))

	intPart, fracPart, _ := strings.Cut(abs, ".")

	var b strings.Builder
	if value.Sign() < 0 {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	b.WriteString(groupThousands(intPart))
	if places > 0 {
		b.WriteByte(',')
		b.WriteString(fracPart)
	}
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head := len(digits) % 3
	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func otherSeparator(mark byte) string {
	if mark == '.' {
		return ","
	}
	return "."
}

func sign(negative bool) string {
	if negative {
		return "-"
	}
	return ""
}
