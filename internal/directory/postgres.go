package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	listCustomersSQL = `SELECT id, name, discount_percent::text FROM customers WHERE tenant_id = $1 ORDER BY name, id`
	listWorkersSQL   = `SELECT id, name, active FROM workers WHERE tenant_id = $1 AND active ORDER BY name, id`
	listTaxRatesSQL  = `SELECT id, name, percentage::text FROM tax_rates WHERE tenant_id = $1 ORDER BY percentage, id`
)

// PGStore reads directory tables through a pgx pool.
type PGStore struct {
	Pool *pgxpool.Pool
}

// ListCustomers returns the tenant's customers ordered by name.
func (s PGStore) ListCustomers(ctx context.Context, tenantID string) ([]Customer, error) {
	rows, err := s.Pool.Query(ctx, listCustomersSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
		var (
			c   Customer
			pct string
		)
		if err := row.Scan(&c.ID, &c.Name, &pct); err != nil {
			return Customer{}, err
		}
		d, err := decimal.NewFromString(pct)
		if err != nil {
			return Customer{}, fmt.Errorf("customer %s discount: %w", c.ID, err)
		}
		c.DiscountPercent = d
		return c, nil
	})
}

// ListWorkers returns the tenant's active workers.
func (s PGStore) ListWorkers(ctx context.Context, tenantID string) ([]Worker, error) {
	rows, err := s.Pool.Query(ctx, listWorkersSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Worker])
}

// ListTaxRates returns the tenant's tax rates.
func (s PGStore) ListTaxRates(ctx context.Context, tenantID string) ([]TaxRate, error) {
	rows, err := s.Pool.Query(ctx, listTaxRatesSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query tax rates: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TaxRate, error) {
		var (
			t   TaxRate
			pct string
		)
		if err := row.Scan(&t.ID, &t.Name, &pct); err != nil {
			return TaxRate{}, err
		}
		d, err := decimal.NewFromString(pct)
		if err != nil {
			return TaxRate{}, fmt.Errorf("tax rate %s percentage: %w", t.ID, err)
		}
		t.Percentage = d
		return t, nil
	})
}
