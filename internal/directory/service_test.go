package directory

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/tenant"
)

type fakeStore struct {
	customers map[string][]Customer
	workers   map[string][]Worker
	taxRates  map[string][]TaxRate
	calls     int
}

func (f *fakeStore) ListCustomers(_ context.Context, tenantID string) ([]Customer, error) {
	f.calls++
	return f.customers[tenantID], nil
}

func (f *fakeStore) ListWorkers(_ context.Context, tenantID string) ([]Worker, error) {
	f.calls++
	return f.workers[tenantID], nil
}

func (f *fakeStore) ListTaxRates(_ context.Context, tenantID string) ([]TaxRate, error) {
	f.calls++
	return f.taxRates[tenantID], nil
}

func newFixture(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &fakeStore{
		customers: map[string][]Customer{
			"shop-a": {{ID: "c1", Name: "Kovács Anna", DiscountPercent: decimal.NewFromInt(5)}},
		},
		workers: map[string][]Worker{
			"shop-a": {{ID: "w1", Name: "Béla", Active: true}},
		},
		taxRates: map[string][]TaxRate{
			"shop-a": {{ID: "t27", Name: "ÁFA 27%", Percentage: decimal.NewFromInt(27)}},
		},
	}
	return &Service{Store: store, Cache: NewCache(client, time.Minute)}, store
}

func TestServiceCachesPerTenant(t *testing.T) {
	svc, store := newFixture(t)
	shopA := tenant.WithTenant(context.Background(), "shop-a")

	customers, err := svc.Customers(shopA)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	_, err = svc.Customers(shopA)
	require.NoError(t, err)
	require.Equal(t, 1, store.calls)

	other, err := svc.Customers(tenant.WithTenant(context.Background(), "shop-b"))
	require.NoError(t, err)
	require.Empty(t, other)
	require.Equal(t, 2, store.calls)

	require.NoError(t, svc.Cache.Invalidate(shopA))
	_, err = svc.Customers(shopA)
	require.NoError(t, err)
	require.Equal(t, 3, store.calls)
}

func TestServiceLookups(t *testing.T) {
	svc, _ := newFixture(t)
	ctx := tenant.WithTenant(context.Background(), "shop-a")

	c, err := svc.Customer(ctx, "c1")
	require.NoError(t, err)
	require.True(t, c.CartCustomer().DiscountPercent.Equal(decimal.NewFromInt(5)))

	_, err = svc.Worker(ctx, "w1")
	require.NoError(t, err)
	_, err = svc.Worker(ctx, "w9")
	require.ErrorIs(t, err, ErrNotFound)

	rate, err := svc.TaxRate(ctx, "t27")
	require.NoError(t, err)
	require.True(t, rate.Percentage.Equal(decimal.NewFromInt(27)))
}

func TestServiceRequiresTenant(t *testing.T) {
	svc, _ := newFixture(t)
	_, err := svc.TaxRates(context.Background())
	require.ErrorIs(t, err, ErrTenantMissing)
}

func TestServiceWithoutCache(t *testing.T) {
	store := &fakeStore{}
	svc := &Service{Store: store}
	out, err := svc.Workers(tenant.WithTenant(context.Background(), "shop-a"))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestPgx5URL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/kasir", pgx5URL("postgres://u:p@db:5432/kasir"))
	require.Equal(t, "pgx5://db/kasir", pgx5URL("postgresql://db/kasir"))
	require.Equal(t, "pgx5://db/kasir", pgx5URL("pgx5://db/kasir"))
}
