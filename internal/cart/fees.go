package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

var newFeeID = uuid.NewString

// FeeType is a configured kind of fee, e.g. packaging or delivery.
type FeeType struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UnitGross pricing.Money `json:"unitGross"`
	UnitNet   pricing.Money `json:"unitNet"`
	TaxRateID string        `json:"taxRateId,omitempty"`
}

// Fee is a fee line. Its price may be negative, e.g. for rebates.
type Fee struct {
	ID        string          `json:"id"`
	FeeTypeID string          `json:"feeTypeId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitGross pricing.Money   `json:"unitGross"`
	UnitNet   pricing.Money   `json:"unitNet"`
	TaxRateID string          `json:"taxRateId,omitempty"`
}

// FeeSubtotal returns the fee total rounded to the nearest 5.
func FeeSubtotal(f Fee) pricing.Money {
	return pricing.Round5(pricing.Dec(f.UnitGross).Mul(f.Quantity))
}

func (c *Cart) feeIndex(id string) int {
	for i := range c.Fees {
		if c.Fees[i].ID == id {
			return i
		}
	}
	return -1
}

// AddFee appends a fee of the first configured type.
func (c *Cart) AddFee(types []FeeType) (Fee, error) {
	if len(types) == 0 {
		return Fee{}, ErrNoFeeTypes
	}
	fee := Fee{ID: newFeeID(), Quantity: decimal.NewFromInt(1)}
	applyFeeType(&fee, types[0])
	c.Fees = append(c.Fees, fee)
	return fee, nil
}

// SetFeeType switches a fee to another type, taking over its name, prices
// and tax reference.
func (c *Cart) SetFeeType(feeID string, ft FeeType) error {
	idx := c.feeIndex(feeID)
	if idx < 0 {
		return ErrFeeNotFound
	}
	applyFeeType(&c.Fees[idx], ft)
	return nil
}

func applyFeeType(f *Fee, ft FeeType) {
	f.FeeTypeID = ft.ID
	f.Name = ft.Name
	f.UnitGross = pricing.Round5(pricing.Dec(ft.UnitGross))
	f.UnitNet = pricing.Round5(pricing.Dec(ft.UnitNet))
	f.TaxRateID = ft.TaxRateID
}

// SetFeePrice overrides the unit gross price of a fee. Any sign is accepted.
func (c *Cart) SetFeePrice(feeID string, unitGross pricing.Money) error {
	idx := c.feeIndex(feeID)
	if idx < 0 {
		return ErrFeeNotFound
	}
	c.Fees[idx].UnitGross = unitGross
	return nil
}

// SetFeeQuantity sets a fee quantity rounded to two decimals. Fees are only
// removed explicitly, so non-positive values are floored at zero.
func (c *Cart) SetFeeQuantity(feeID string, value decimal.Decimal) error {
	idx := c.feeIndex(feeID)
	if idx < 0 {
		return ErrFeeNotFound
	}
	q := value.Round(quantityPlaces)
	if q.IsNegative() {
		q = decimal.Zero
	}
	c.Fees[idx].Quantity = q
	return nil
}

// RemoveFee deletes a fee line.
func (c *Cart) RemoveFee(feeID string) error {
	idx := c.feeIndex(feeID)
	if idx < 0 {
		return ErrFeeNotFound
	}
	c.Fees = append(c.Fees[:idx], c.Fees[idx+1:]...)
	return nil
}
