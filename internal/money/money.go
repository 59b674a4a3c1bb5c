package money

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when user input does not hold a positive amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Parse extracts the first number from free-form input such as "250,50" or
// "1,5 грн". Both '.' and ',' are accepted as the fractional separator. Zero,
// negative and malformed numbers ("12.5.3") are rejected.
func Parse(text string) (decimal.Decimal, error) {
	runes := []rune(strings.TrimSpace(text))

	start := -1
	for i, r := range runes {
		if unicode.IsDigit(r) {
			start = i
			break
		}
	}
	if start < 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	if start > 0 && isMinus(runes[start-1]) {
		return decimal.Zero, ErrInvalidAmount
	}

	var b strings.Builder
	separators := 0
scan:
	for _, r := range runes[start:] {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == ',':
			separators++
			b.WriteRune('.')
		default:
			break scan
		}
	}
	token := b.String()
	if separators > 1 || strings.HasSuffix(token, ".") {
		return decimal.Zero, ErrInvalidAmount
	}

	amount, err := decimal.NewFromString(token)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// Format renders an amount with two fractional digits.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func isMinus(r rune) bool {
	return r == '-' || r == '−' || r == '–'
}
