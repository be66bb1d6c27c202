// Package core holds the ledger domain types, month bucketing, and
// money parsing shared by every engine component.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount. It accepts
// both dot (12.34) and comma (12,34) separators and rejects negative
// values; amounts are non-negative by convention, with the record kind
// carrying the direction.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseAmountOrZero substitutes zero for unparseable input. Aggregation
// paths use this so a corrupt stored value degrades a sum instead of
// failing it.
func ParseAmountOrZero(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
