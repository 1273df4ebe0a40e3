// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values with two fractional digits. They never travel
// as binary floats: JSON carries them as strings and storage as NUMERIC/TEXT.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of fractional digits kept for every amount.
const AmountScale = 2

// Exponent bounds of an acceptable amount. Checking the exponent first
// keeps values like 1e300000000 from being expanded.
const (
	minAmountExp = -20
	maxAmountExp = 12
)

// MaxAmount is the exclusive upper bound of any stored amount, matching the
// NUMERIC(14,2) columns.
var MaxAmount = decimal.New(1, 12)

// AmountInRange reports whether d has a bounded exponent and |d| < MaxAmount.
func AmountInRange(d decimal.Decimal) bool {
	if exp := d.Exponent(); exp < minAmountExp || exp > maxAmountExp {
		return false
	}
	return d.Abs().Cmp(MaxAmount) < 0
}

// ParseAmount converts a decimal string to an amount with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs are
// rejected: direction is carried by the transaction type, never by the sign.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil (rounds up)
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !AmountInRange(d) {
		return decimal.Zero, ErrAmountOutOfRange
	}
	d = RoundAmount(d)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RoundAmount rounds half away from zero to AmountScale digits. Values
// outside AmountInRange are returned untouched for validation to reject.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	if !AmountInRange(d) {
		return d
	}
	return d.Round(AmountScale)
}

// ValidateAmount checks that a transaction amount is in range and strictly positive.
func ValidateAmount(d decimal.Decimal) error {
	if !AmountInRange(d) {
		return ErrAmountOutOfRange
	}
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// FormatAmount renders an amount with exactly two decimals, e.g. "950.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}
