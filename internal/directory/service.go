package directory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/tenant"
)

var serviceNopLogger = zerolog.Nop()

// Service answers directory queries for the tenant on the context, reading
// through the Redis cache. Cache failures degrade to the store.
type Service struct {
	Store  Store
	Cache  *Cache
	Logger *zerolog.Logger
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &serviceNopLogger
	}
	return s.Logger
}

func tenantFrom(ctx context.Context) (string, error) {
	id, ok := tenant.From(ctx)
	if !ok {
		return "", ErrTenantMissing
	}
	return id, nil
}

func cachedList[T any](ctx context.Context, s *Service, list string, load func(context.Context, string) ([]T, error)) ([]T, error) {
	tenantID, err := tenantFrom(ctx)
	if err != nil {
		return nil, err
	}
	var out []T
	hit, err := s.Cache.get(ctx, tenantID, list, &out)
	if err != nil {
		s.logger().Warn().Err(err).Str("list", list).Msg("directory_cache_read_failed")
	}
	if hit {
		return out, nil
	}
	out, err = load(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", list, err)
	}
	if out == nil {
		out = []T{}
	}
	if err := s.Cache.put(ctx, tenantID, list, out); err != nil {
		s.logger().Warn().Err(err).Str("list", list).Msg("directory_cache_write_failed")
	}
	return out, nil
}

// Customers lists the tenant's customers.
func (s *Service) Customers(ctx context.Context) ([]Customer, error) {
	return cachedList(ctx, s, "customers", s.Store.ListCustomers)
}

// Customer returns a single customer.
func (s *Service) Customer(ctx context.Context, id string) (Customer, error) {
	all, err := s.Customers(ctx)
	if err != nil {
		return Customer{}, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return Customer{}, fmt.Errorf("customer %q: %w", id, ErrNotFound)
}

// Workers lists the tenant's active workers.
func (s *Service) Workers(ctx context.Context) ([]Worker, error) {
	return cachedList(ctx, s, "workers", s.Store.ListWorkers)
}

// Worker returns a single active worker.
func (s *Service) Worker(ctx context.Context, id string) (Worker, error) {
	all, err := s.Workers(ctx)
	if err != nil {
		return Worker{}, err
	}
	for _, w := range all {
		if w.ID == id {
			return w, nil
		}
	}
	return Worker{}, fmt.Errorf("worker %q: %w", id, ErrNotFound)
}

// TaxRates lists the tenant's tax rates.
func (s *Service) TaxRates(ctx context.Context) ([]TaxRate, error) {
	return cachedList(ctx, s, "tax_rates", s.Store.ListTaxRates)
}

// TaxRate returns a single tax rate.
func (s *Service) TaxRate(ctx context.Context, id string) (TaxRate, error) {
	all, err := s.TaxRates(ctx)
	if err != nil {
		return TaxRate{}, err
	}
	for _, t := range all {
		if t.ID == id {
			return t, nil
		}
	}
	return TaxRate{}, fmt.Errorf("tax rate %q: %w", id, ErrNotFound)
}
