package pricing

import "github.com/shopspring/decimal"

// Money represents a monetary value in whole units of the display currency.
type Money = int64

// Rounding units used across the POS. Line and fee subtotals settle on the
// smallest coin (5), unit prices and VAT amounts on whole units.
const (
	SubtotalUnit  int64 = 5
	UnitPriceUnit int64 = 1
)

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
)

// RoundTo rounds v half-up to the nearest multiple of unit.
func RoundTo(v decimal.Decimal, unit int64) Money {
	if unit <= 0 {
		unit = 1
	}
	u := decimal.NewFromInt(unit)
	return v.Div(u).Add(half).Floor().Mul(u).IntPart()
}

// Round5 rounds v to the nearest multiple of five.
func Round5(v decimal.Decimal) Money {
	return RoundTo(v, SubtotalUnit)
}

// Round1 rounds v to the nearest whole unit.
func Round1(v decimal.Decimal) Money {
	return RoundTo(v, UnitPriceUnit)
}

// Dec lifts a Money value into decimal arithmetic.
func Dec(m Money) decimal.Decimal {
	return decimal.NewFromInt(m)
}

// Percent returns pct percent of v without rounding.
func Percent(v decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return v.Mul(pct).Div(hundred)
}

// ClampPercent bounds pct to the inclusive range 0..100.
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
