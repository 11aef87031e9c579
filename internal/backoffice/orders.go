package backoffice

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/cart"
)

type feeTypeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	NetPrice  int64  `json:"netPrice"`
	TaxRateID string `json:"taxRateId,omitempty"`
}

// FeeTypes lists configured fee types in display order.
func (c *Client) FeeTypes(ctx context.Context) ([]cart.FeeType, error) {
	var out struct {
		Data []feeTypeDTO `json:"data"`
	}
	if err := c.do(ctx, call{op: "fee_types", method: http.MethodGet, path: "api/fee-types", out: &out}); err != nil {
		return nil, err
	}
	types := make([]cart.FeeType, 0, len(out.Data))
	for _, ft := range out.Data {
		types = append(types, cart.FeeType{
			ID:        ft.ID,
			Name:      ft.Name,
			UnitGross: ft.Price,
			UnitNet:   ft.NetPrice,
			TaxRateID: ft.TaxRateID,
		})
	}
	return types, nil
}

// OrderLine is a product line of a submitted order.
type OrderLine struct {
	Kind            string          `json:"kind"`
	ProductID       string          `json:"productId"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitGross       int64           `json:"unitGross"`
	UnitNet         int64           `json:"unitNet"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
	DiscountFixed   int64           `json:"discountFixed"`
	Subtotal        int64           `json:"subtotal"`
	Currency        string          `json:"currency"`
	TaxRateID       string          `json:"taxRateId"`
}

// OrderFee is a fee line of a submitted order.
type OrderFee struct {
	FeeTypeID string          `json:"feeTypeId"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitGross int64           `json:"unitGross"`
	UnitNet   int64           `json:"unitNet"`
	Subtotal  int64           `json:"subtotal"`
	TaxRateID string          `json:"taxRateId,omitempty"`
}

// OrderRequest is the payload accepted by the order endpoint.
type OrderRequest struct {
	Lines           []OrderLine      `json:"lines"`
	Fees            []OrderFee       `json:"fees"`
	DiscountPercent *decimal.Decimal `json:"discountPercent,omitempty"`
	CustomerID      string           `json:"customerId,omitempty"`
	WorkerID        string           `json:"workerId"`
	PaymentMethod   string           `json:"paymentMethod"`
	Total           int64            `json:"total"`
}

// OrderResult identifies a created order.
type OrderResult struct {
	ID string `json:"id"`
}

// SubmitOrder creates an order. idemKey makes the call safe to retry.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest, idemKey string) (OrderResult, error) {
	var out struct {
		Data OrderResult `json:"data"`
	}
	if err := c.do(ctx, call{op: "submit_order", method: http.MethodPost, path: "api/orders", body: req, out: &out, idemKey: idemKey}); err != nil {
		return OrderResult{}, err
	}
	return out.Data, nil
}
