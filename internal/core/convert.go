package core

// convert.go coerces extract text into staging values.
//
// Quantities arrive as free text from the producer: thousands separators,
// surrounding spaces and empty cells are all normal. Empty text is NULL;
// anything else must be a non-negative decimal once commas are removed.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// QuantityPrecision and QuantityScale match the staging column type DECIMAL(12,3).
const (
	QuantityPrecision = 12
	QuantityScale     = 3
)

// maxQuantity is the smallest value with too many integer digits for the column.
var maxQuantity = decimal.New(1, QuantityPrecision-QuantityScale)

// quantityRegex accepts plain decimals only; exponents and signs other than a leading '+' are refused.
var quantityRegex = regexp.MustCompile(`^\+?(\d+(\.\d*)?|\.\d+)$`)

// ErrInvalidQuantity marks quantity text that is neither empty nor a valid decimal.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ParseQuantity converts quantity text to a nullable decimal.
//
//	"1,234"  -> 1234
//	" 500 "  -> 500
//	""       -> NULL
//	"abc"    -> NULL, ErrInvalidQuantity
//	"-5"     -> NULL, ErrInvalidQuantity
//	"1,000,000,000" -> NULL, ErrInvalidQuantity (more than 9 integer digits)
//
// The returned value is always NULL when err is non-nil.
func ParseQuantity(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}

	cleaned := strings.ReplaceAll(s, ",", "")
	if !quantityRegex.MatchString(cleaned) {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(cleaned, "+"))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidQuantity, s)
	}
	d = d.Round(QuantityScale)
	if d.GreaterThanOrEqual(maxQuantity) {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %q exceeds %d integer digits", ErrInvalidQuantity, s, QuantityPrecision-QuantityScale)
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseQuantityMode reads a configured mode; unknown values fall back to QuantityNull.
func ParseQuantityMode(s string) QuantityMode {
	if strings.EqualFold(strings.TrimSpace(s), string(QuantityReject)) {
		return QuantityReject
	}
	return QuantityNull
}
