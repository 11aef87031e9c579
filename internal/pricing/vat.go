package pricing

import "github.com/shopspring/decimal"

// VATAmount extracts the VAT portion contained in a gross price.
func VATAmount(gross Money, vatPercent decimal.Decimal) Money {
	if vatPercent.IsZero() {
		return 0
	}
	return Round1(Dec(gross).Div(hundred.Add(vatPercent)).Mul(vatPercent))
}

// NetFromGross removes VAT from a gross price.
func NetFromGross(gross Money, vatPercent decimal.Decimal) Money {
	return gross - VATAmount(gross, vatPercent)
}

// GrossFromNet adds VAT on top of a net price.
func GrossFromNet(net Money, vatPercent decimal.Decimal) Money {
	return Round1(Dec(net).Mul(decimal.NewFromInt(1).Add(vatPercent.Div(hundred))))
}

// SellingPrice derives the gross selling price of an item from its cost, the
// markup multiplier and the VAT percentage.
func SellingPrice(cost Money, multiplier, vatPercent decimal.Decimal) Money {
	net := Dec(cost).Mul(multiplier)
	return Round1(net.Mul(decimal.NewFromInt(1).Add(vatPercent.Div(hundred))))
}

// ImpliedVATPercent recovers the VAT percentage from a stored gross/net pair.
// Lines that do not carry an explicit tax rate fall back to this ratio.
func ImpliedVATPercent(gross, net Money) decimal.Decimal {
	if net == 0 {
		return decimal.Zero
	}
	return Dec(gross).Div(Dec(net)).Sub(decimal.NewFromInt(1)).Mul(hundred).Round(2)
}
