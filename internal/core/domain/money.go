package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fractional digits carried by Money.
const MoneyScale = 2

var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
	minMoney = decimal.NewFromInt(math.MinInt64)
)

// Money is an amount in minor units (cents). Arithmetic on it is exact.
type Money int64

// ParseMoney converts a major-unit decimal into Money. Amounts with more than
// two fractional digits are rejected rather than rounded.
func ParseMoney(d decimal.Decimal) (Money, error) {
	if !d.Round(MoneyScale).Equal(d) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidMoney, d.String(), MoneyScale)
	}
	minor := d.Shift(MoneyScale)
	if minor.GreaterThan(maxMoney) || minor.LessThan(minMoney) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidMoney, d.String())
	}
	return Money(minor.IntPart()), nil
}

// MustParseMoney is ParseMoney for constants in tests and fixtures.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MoneyScale)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MoneyScale)
}

func (m Money) IsPositive() bool { return m > 0 }

func (m Money) IsNegative() bool { return m < 0 }

// add returns m+o, failing instead of wrapping around.
func (m Money) add(o Money) (Money, error) {
	if o > 0 && m > math.MaxInt64-o {
		return 0, ErrBalanceOverflow
	}
	return m + o, nil
}
