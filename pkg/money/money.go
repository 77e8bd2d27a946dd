// Package money provides a fixed-point currency amount stored in minor units.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a currency value in cents. All arithmetic is integer-only.
type Amount int64

// Scale is the number of decimal places carried by an Amount.
const Scale = 2

var (
	// ErrInvalid is returned when the input is not a number.
	ErrInvalid = errors.New("money: not a valid amount")
	// ErrPrecision is returned when the input has more than two decimal places.
	ErrPrecision = errors.New("money: more than two decimal places")
	// ErrOverflow is returned when the input does not fit in an Amount.
	ErrOverflow = errors.New("money: amount out of range")
)

// FromCents creates an Amount from a count of cents.
func FromCents(cents int64) Amount { return Amount(cents) }

// Parse reads a decimal string such as "15", "15.5" or "15.50".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return FromDecimal(d)
}

// MustParse is Parse for constants and tests. It panics on bad input.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal converts a decimal into an Amount, refusing sub-cent precision.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	shifted := d.Shift(Scale)
	if !shifted.IsInteger() {
		return 0, ErrPrecision
	}
	bi := shifted.BigInt()
	if !bi.IsInt64() {
		return 0, ErrOverflow
	}
	return Amount(bi.Int64()), nil
}

// Cents returns the raw minor-unit count.
func (a Amount) Cents() int64 { return int64(a) }

// Decimal returns the amount as a decimal in major units.
func (a Amount) Decimal() decimal.Decimal { return decimal.New(int64(a), -Scale) }

// IsPositive reports whether the amount is greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }

// String formats the amount in major units with two decimals, e.g. "15.00".
func (a Amount) String() string { return a.Decimal().StringFixed(Scale) }

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	v, err := ParseJSON(b)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// ParseJSON parses a raw JSON value into an Amount. Only numbers and numeric
// strings are accepted; null, booleans and objects yield ErrInvalid.
func ParseJSON(raw []byte) (Amount, error) {
	s := string(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return 0, ErrInvalid
	}
	return Parse(s)
}
