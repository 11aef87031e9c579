// Package directory serves the reference lists a terminal works with:
// customers, POS workers and tax rates.
package directory

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/cart"
)

var (
	// ErrNotFound indicates the requested record does not exist for the tenant.
	ErrNotFound = errors.New("directory: not found")
	// ErrTenantMissing indicates the tenant identifier was not found in context.
	ErrTenantMissing = errors.New("directory: tenant missing")
)

// Customer is a registered customer with an optional standing discount.
type Customer struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DiscountPercent decimal.Decimal `json:"discountPercent"`
}

// CartCustomer converts the record into the cart's view of a customer.
func (c Customer) CartCustomer() cart.Customer {
	return cart.Customer{ID: c.ID, Name: c.Name, DiscountPercent: c.DiscountPercent}
}

// Worker is a POS operator that orders are attributed to.
type Worker struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// TaxRate is a named VAT percentage.
type TaxRate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Store is the persistence contract of the directory.
type Store interface {
	ListCustomers(ctx context.Context, tenantID string) ([]Customer, error)
	ListWorkers(ctx context.Context, tenantID string) ([]Worker, error)
	ListTaxRates(ctx context.Context, tenantID string) ([]TaxRate, error)
}
