// Package money holds the fixed-point representations used for balances,
// stakes and payout multipliers.
//
// Amounts are integer minor units (cents). Multipliers are integers scaled by
// 10^4. Payout is the single place where the two are combined and the only
// place rounding happens: the product is truncated to whole minor units.
package money

import (
	"bytes"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

const (
	AmountScale     = 2
	MultiplierScale = 4

	One  Multiplier = 10000
	Zero Multiplier = 0
)

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
)

// Amount is a currency value in minor units.
type Amount int64

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -AmountScale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(AmountScale)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	parsed, err := ParseAmount(string(bytes.Trim(b, `"`)))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Add returns a+b, failing instead of wrapping on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, fmt.Errorf("amount overflow: %s + %s", a, b)
	}
	return a + b, nil
}

// ParseAmount reads a decimal string such as "12.5" into minor units. More
// than two fractional digits is an error rather than a silent rounding.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return AmountFromDecimal(d)
}

func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.Equal(d.Truncate(AmountScale)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d, AmountScale)
	}
	units := d.Shift(AmountScale)
	if units.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("amount %s out of range", d)
	}
	return Amount(units.IntPart()), nil
}

// MustAmount is for constants and tests.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Multiplier is a non-negative payout factor scaled by 10^4.
type Multiplier int64

func (m Multiplier) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MultiplierScale)
}

func (m Multiplier) Float64() float64 {
	return float64(m) / float64(One)
}

func (m Multiplier) String() string {
	return m.Decimal().StringFixed(2) + "x"
}

func (m Multiplier) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

func (m *Multiplier) UnmarshalJSON(b []byte) error {
	d, err := decimal.NewFromString(string(bytes.Trim(b, `"`)))
	if err != nil {
		return fmt.Errorf("invalid multiplier: %w", err)
	}
	*m = MultiplierFromDecimal(d, MultiplierScale)
	return nil
}

// MultiplierFromDecimal truncates d to the given number of decimal places.
// Each game variant declares its own precision.
func MultiplierFromDecimal(d decimal.Decimal, digits int32) Multiplier {
	if digits > MultiplierScale {
		digits = MultiplierScale
	}
	if d.IsNegative() {
		return Zero
	}
	return Multiplier(d.Truncate(digits).Shift(MultiplierScale).IntPart())
}

func MultiplierFromFloat(f float64, digits int32) Multiplier {
	if math.IsNaN(f) || f <= 0 {
		return Zero
	}
	return MultiplierFromDecimal(decimal.NewFromFloat(f), digits)
}

// Whole returns n as a multiplier, e.g. Whole(35) is 35.00x.
func Whole(n int64) Multiplier {
	return Multiplier(n) * One
}

// Payout is stake × multiplier truncated to minor units.
func Payout(stake Amount, m Multiplier) Amount {
	if stake <= 0 || m <= 0 {
		return 0
	}
	p := stake.Decimal().Mul(m.Decimal()).Truncate(AmountScale).Shift(AmountScale)
	if p.GreaterThan(maxAmount) {
		return Amount(math.MaxInt64)
	}
	return Amount(p.IntPart())
}

// Ratio reports payout/stake as a multiplier, used when a round pays per
// sub-bet rather than through a single factor.
func Ratio(payout, stake Amount) Multiplier {
	if stake <= 0 || payout <= 0 {
		return Zero
	}
	return MultiplierFromDecimal(payout.Decimal().Div(stake.Decimal()), MultiplierScale)
}
