package cart

import "github.com/noah-isme/backend-kasir/internal/pricing"

// Totals aggregates the derived amounts of a cart.
type Totals struct {
	Lines       pricing.Money `json:"lines"`
	Fees        pricing.Money `json:"fees"`
	PreDiscount pricing.Money `json:"preDiscount"`
	Discount    pricing.Money `json:"discount"`
	Total       pricing.Money `json:"total"`
}

// Totals computes the cart totals from the current state. The order discount
// is taken from the rounded lines+fees sum; the result may be negative when
// fees are negative.
func (c *Cart) Totals() Totals {
	var t Totals
	for _, l := range c.Lines {
		t.Lines += LineSubtotal(l)
	}
	for _, f := range c.Fees {
		t.Fees += FeeSubtotal(f)
	}
	t.PreDiscount = pricing.Round5(pricing.Dec(t.Lines + t.Fees))
	if c.Discount != nil && c.Discount.Percentage.IsPositive() {
		t.Discount = pricing.Round1(pricing.Percent(pricing.Dec(t.PreDiscount), c.Discount.Percentage))
	}
	t.Total = t.PreDiscount - t.Discount
	return t
}
