// Package money implements integer-cents arithmetic for catalog prices and
// order totals. Amounts never pass through floating point.
package money

import (
	"math"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrOverflow is returned when an amount does not fit into int64 cents.
var ErrOverflow = errors.New("amount overflows int64 cents")

// ErrInvalidAmount is returned by Parse for negative or sub-cent amounts.
var ErrInvalidAmount = errors.New("invalid amount")

// Cents is an amount in the smallest currency unit.
type Cents int64

// Times multiplies c by a non-negative quantity.
func (c Cents) Times(qty int) (Cents, error) {
	if qty < 0 || c < 0 {
		return 0, ErrInvalidAmount
	}
	if qty != 0 && int64(c) > math.MaxInt64/int64(qty) {
		return 0, ErrOverflow
	}
	return c * Cents(qty), nil
}

// Add returns c+o for non-negative amounts.
func (c Cents) Add(o Cents) (Cents, error) {
	if c < 0 || o < 0 {
		return 0, ErrInvalidAmount
	}
	if int64(c) > math.MaxInt64-int64(o) {
		return 0, ErrOverflow
	}
	return c + o, nil
}

// Decimal returns the amount in major units, e.g. 1999 -> 19.99.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with exactly two fractional digits.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Parse converts a decimal string in major units ("19.99") to cents.
// At most two fractional digits are accepted.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidAmount, "parse %q", s)
	}
	return FromDecimal(d)
}

// FromDecimal converts a major-unit decimal to cents.
func FromDecimal(d decimal.Decimal) (Cents, error) {
	if d.IsNegative() {
		return 0, errors.Wrap(ErrInvalidAmount, "negative amount")
	}
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, errors.Wrap(ErrInvalidAmount, "more than two fractional digits")
	}
	if shifted.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, ErrOverflow
	}
	return Cents(shifted.IntPart()), nil
}
