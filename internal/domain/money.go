package domain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("amount must be a positive decimal")

// Money represents a monetary value in a specific currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string // ISO 4217 or asset symbol
}

// NewMoney creates a new Money instance.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{
		Amount:   amount,
		Currency: currency,
	}
}

// ParseAmount parses a user-entered decimal string and rejects zero,
// negative and malformed values.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Convert converts the money to a target currency using a given FX rate.
// The rate should be (Target / Source).
func (m Money) Convert(targetCurrency string, rate decimal.Decimal) Money {
	return Money{
		Amount:   m.Amount.Mul(rate),
		Currency: targetCurrency,
	}
}

// ToTokenUnits scales the amount to the smallest token unit, rounding down.
func (m Money) ToTokenUnits(decimals int32) *big.Int {
	return m.Amount.Shift(decimals).Truncate(0).BigInt()
}

// LessThan reports whether m is strictly below other. Currencies must match.
func (m Money) LessThan(other Money) bool {
	return m.Currency == other.Currency && m.Amount.LessThan(other.Amount)
}

// String returns the string representation of the money.
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.StringFixed(2), m.Currency)
}
