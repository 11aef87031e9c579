// Package cart holds the in-memory POS cart: product lines, fees, an optional
// order-level discount and the totals derived from them.
package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/pricing"
)

var (
	// ErrLineNotFound indicates the referenced cart line does not exist.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrFeeNotFound indicates the referenced fee line does not exist.
	ErrFeeNotFound = errors.New("fee not found")
	// ErrNoFeeTypes is returned when a fee is added but no fee type is configured.
	ErrNoFeeTypes = errors.New("no fee types configured")
	// ErrDiscountExists is returned when a second order discount is requested.
	ErrDiscountExists = errors.New("order discount already present")
	// ErrNoDiscount is returned when editing a discount that was never added.
	ErrNoDiscount = errors.New("no order discount present")
	// ErrInvalidInput is returned for malformed items.
	ErrInvalidInput = errors.New("invalid input")
)

// Identity identifies a product line by product type and product id.
type Identity struct {
	Kind      string `json:"kind"`
	ProductID string `json:"productId"`
}

func (id Identity) String() string {
	return id.Kind + ":" + id.ProductID
}

// OrderDiscount is the single percentage discount applied to the whole order.
type OrderDiscount struct {
	Percentage decimal.Decimal `json:"percentage"`
}

// Customer is the subset of customer data the cart reacts to.
type Customer struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// Cart is the working state of a single POS transaction.
type Cart struct {
	Lines      []Line         `json:"lines"`
	Fees       []Fee          `json:"fees"`
	Discount   *OrderDiscount `json:"discount,omitempty"`
	CustomerID string         `json:"customerId,omitempty"`
}

// IsEmpty reports whether the cart carries neither lines nor fees.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0 && len(c.Fees) == 0
}

// Clear resets the cart to its initial state.
func (c *Cart) Clear() {
	*c = Cart{}
}

// AddDiscount adds an order discount of 0%. Only one may exist at a time.
func (c *Cart) AddDiscount() error {
	if c.Discount != nil {
		return ErrDiscountExists
	}
	c.Discount = &OrderDiscount{Percentage: decimal.Zero}
	return nil
}

// SetDiscountPercentage sets the order discount, clamped to 0..100.
func (c *Cart) SetDiscountPercentage(pct decimal.Decimal) error {
	if c.Discount == nil {
		return ErrNoDiscount
	}
	c.Discount.Percentage = pricing.ClampPercent(pct)
	return nil
}

// RemoveDiscount drops the order discount if present.
func (c *Cart) RemoveDiscount() {
	c.Discount = nil
}

// SelectCustomer attaches the customer to the cart. When the customer carries
// a standing discount and the cart has none yet, one is injected. It reports
// whether a discount was added.
func (c *Cart) SelectCustomer(cust Customer) bool {
	c.CustomerID = cust.ID
	if c.Discount != nil || !cust.DiscountPercent.IsPositive() {
		return false
	}
	c.Discount = &OrderDiscount{Percentage: pricing.ClampPercent(cust.DiscountPercent)}
	return true
}

// ClearCustomer detaches the customer. Any discount stays in place.
func (c *Cart) ClearCustomer() {
	c.CustomerID = ""
}
