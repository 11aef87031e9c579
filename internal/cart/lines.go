package cart

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

const quantityPlaces = 2

// Item is a product resolved by a scan or a search selection.
type Item struct {
	Identity
	Name      string
	UnitGross pricing.Money
	UnitNet   pricing.Money
	Currency  string
	TaxRateID string
}

// Line is a product line in the cart. At most one of DiscountPercent and
// DiscountFixed is non-zero.
type Line struct {
	Identity
	Name            string          `json:"name"`
	UnitGross       pricing.Money   `json:"unitGross"`
	UnitNet         pricing.Money   `json:"unitNet"`
	Quantity        decimal.Decimal `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountFixed   pricing.Money   `json:"discountFixed"`
	Currency        string          `json:"currency,omitempty"`
	TaxRateID       string          `json:"taxRateId,omitempty"`
}

// SubtotalBeforeDiscount is unit gross times quantity.
func (l Line) SubtotalBeforeDiscount() decimal.Decimal {
	return pricing.Dec(l.UnitGross).Mul(l.Quantity)
}

// DiscountAmount is the unrounded discount taken off the line.
func (l Line) DiscountAmount() decimal.Decimal {
	if l.DiscountPercent.IsPositive() {
		return pricing.Percent(l.SubtotalBeforeDiscount(), l.DiscountPercent)
	}
	if l.DiscountFixed > 0 {
		return pricing.Dec(l.DiscountFixed).Mul(l.Quantity)
	}
	return decimal.Zero
}

// LineSubtotal returns the discounted line total rounded to the nearest 5.
func LineSubtotal(l Line) pricing.Money {
	return pricing.Round5(l.SubtotalBeforeDiscount().Sub(l.DiscountAmount()))
}

func (c *Cart) lineIndex(id Identity) int {
	for i := range c.Lines {
		if c.Lines[i].Identity == id {
			return i
		}
	}
	return -1
}

// Line returns a copy of the line with the given identity.
func (c *Cart) Line(id Identity) (Line, bool) {
	idx := c.lineIndex(id)
	if idx < 0 {
		return Line{}, false
	}
	return c.Lines[idx], true
}

// AddOrIncrement adds item as a new line with quantity 1, or increments the
// quantity of the existing line by 1 and refreshes its prices.
func (c *Cart) AddOrIncrement(item Item) (Identity, error) {
	if strings.TrimSpace(item.Kind) == "" || strings.TrimSpace(item.ProductID) == "" {
		return Identity{}, fmt.Errorf("item identity required: %w", ErrInvalidInput)
	}
	if idx := c.lineIndex(item.Identity); idx >= 0 {
		line := &c.Lines[idx]
		line.Quantity = line.Quantity.Add(decimal.NewFromInt(1))
		line.UnitGross = item.UnitGross
		line.UnitNet = item.UnitNet
		if item.Currency != "" {
			line.Currency = item.Currency
		}
		if item.TaxRateID != "" {
			line.TaxRateID = item.TaxRateID
		}
		return line.Identity, nil
	}
	c.Lines = append(c.Lines, Line{
		Identity:  item.Identity,
		Name:      item.Name,
		UnitGross: item.UnitGross,
		UnitNet:   item.UnitNet,
		Quantity:  decimal.NewFromInt(1),
		Currency:  item.Currency,
		TaxRateID: item.TaxRateID,
	})
	return item.Identity, nil
}

// SetQuantity sets a line quantity rounded to two decimals. A value of zero
// or less removes the line unless deferRemoval is set, in which case the line
// is kept at zero while the user is still typing.
func (c *Cart) SetQuantity(id Identity, value decimal.Decimal, deferRemoval bool) error {
	idx := c.lineIndex(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	q := value.Round(quantityPlaces)
	if !q.IsPositive() {
		if deferRemoval {
			c.Lines[idx].Quantity = decimal.Zero
			return nil
		}
		c.removeLineAt(idx)
		return nil
	}
	c.Lines[idx].Quantity = q
	return nil
}

// MultiplyQuantity multiplies a line quantity by factor.
func (c *Cart) MultiplyQuantity(id Identity, factor decimal.Decimal) error {
	idx := c.lineIndex(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	return c.SetQuantity(id, c.Lines[idx].Quantity.Mul(factor), false)
}

// RemoveLine deletes a line.
func (c *Cart) RemoveLine(id Identity) error {
	idx := c.lineIndex(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.removeLineAt(idx)
	return nil
}

func (c *Cart) removeLineAt(idx int) {
	c.Lines = append(c.Lines[:idx], c.Lines[idx+1:]...)
}

// SetLineDiscountPercentage sets a percentage discount clamped to 0..100 and
// clears any fixed-amount discount on the line.
func (c *Cart) SetLineDiscountPercentage(id Identity, pct decimal.Decimal) error {
	idx := c.lineIndex(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	c.Lines[idx].DiscountPercent = pricing.ClampPercent(pct)
	c.Lines[idx].DiscountFixed = 0
	return nil
}

// SetLineDiscountFixedAmount sets a per-unit discount (never negative) and
// clears any percentage discount on the line.
func (c *Cart) SetLineDiscountFixedAmount(id Identity, amount pricing.Money) error {
	idx := c.lineIndex(id)
	if idx < 0 {
		return ErrLineNotFound
	}
	if amount < 0 {
		amount = 0
	}
	c.Lines[idx].DiscountFixed = amount
	c.Lines[idx].DiscountPercent = decimal.Zero
	return nil
}
