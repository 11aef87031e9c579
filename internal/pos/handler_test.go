package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/directory"
	"github.com/noah-isme/backend-kasir/internal/session"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]backoffice.Product
	lookups  int
	searches []string
}

func (f *fakeCatalog) LookupBarcode(_ context.Context, code string) (backoffice.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	p, ok := f.products[code]
	if !ok {
		return backoffice.Product{}, backoffice.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) Search(_ context.Context, q string, _ int) ([]backoffice.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, q)
	var out []backoffice.Product
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(q)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) FeeTypes(context.Context) ([]cart.FeeType, error) {
	return []cart.FeeType{
		{ID: "pack", Name: "Packaging", UnitGross: 200, UnitNet: 157},
		{ID: "rebate", Name: "Rebate", UnitGross: -500, UnitNet: -394},
	}, nil
}

type fakeDirectory struct{}

func (fakeDirectory) Customers(context.Context) ([]directory.Customer, error) {
	return []directory.Customer{{ID: "c1", Name: "Anna", DiscountPercent: decimal.NewFromInt(10)}}, nil
}

func (d fakeDirectory) Customer(ctx context.Context, id string) (directory.Customer, error) {
	list, _ := d.Customers(ctx)
	for _, c := range list {
		if c.ID == id {
			return c, nil
		}
	}
	return directory.Customer{}, directory.ErrNotFound
}

func (fakeDirectory) Workers(context.Context) ([]directory.Worker, error) {
	return []directory.Worker{{ID: "w1", Name: "Béla", Active: true}}, nil
}

func (d fakeDirectory) Worker(ctx context.Context, id string) (directory.Worker, error) {
	if id == "w1" {
		return directory.Worker{ID: "w1", Name: "Béla", Active: true}, nil
	}
	return directory.Worker{}, directory.ErrNotFound
}

func (fakeDirectory) TaxRates(context.Context) ([]directory.TaxRate, error) {
	return []directory.TaxRate{{ID: "t27", Name: "27%", Percentage: decimal.NewFromInt(27)}}, nil
}

type fakeOrders struct{ submitted []backoffice.OrderRequest }

func (f *fakeOrders) Reference(context.Context, string, string) (backoffice.Reference, error) {
	return backoffice.Reference{}, backoffice.ErrNotFound
}

func (f *fakeOrders) SubmitOrder(_ context.Context, req backoffice.OrderRequest, _ string) (backoffice.OrderResult, error) {
	f.submitted = append(f.submitted, req)
	return backoffice.OrderResult{ID: "ord-9"}, nil
}

type env struct {
	srv     *httptest.Server
	catalog *fakeCatalog
	orders  *fakeOrders
	store   *session.Store
	handler *Handler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := &fakeCatalog{products: map[string]backoffice.Product{
		"ABC-100": {Kind: "product", ID: "p1", Name: "Coffee beans", GrossPrice: 1270, NetPrice: 1000, Currency: "HUF", TaxRateID: "t27"},
		"ACC-7":   {Kind: "accessory", ID: "a7", Name: "Coffee filter", GrossPrice: 333, NetPrice: 262, Currency: "HUF", TaxRateID: "t27"},
	}}
	orders := &fakeOrders{}
	store := session.NewStore(client, time.Hour)
	dir := fakeDirectory{}
	h := New(Deps{
		Sessions:  store,
		Catalog:   catalog,
		Directory: dir,
		Checkout:  &checkout.Service{Catalog: orders, TaxRates: dir, Sessions: store},
		Scan:      ScanConfig{Debounce: 150 * time.Millisecond},
	})
	resolver := tenant.NewResolver("", "", "shop-a")
	srv := httptest.NewServer(resolver.Middleware(h.Routes(Middlewares{})))
	t.Cleanup(srv.Close)
	return &env{srv: srv, catalog: catalog, orders: orders, store: store, handler: h}
}

func (e *env) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (e *env) createSession(t *testing.T) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["data"].(map[string]any)["id"].(string)
}

func data(body map[string]any) map[string]any {
	return body["data"].(map[string]any)
}

func totals(body map[string]any) map[string]any {
	return data(body)["totals"].(map[string]any)
}

func TestScanAddsAndDedups(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	resp, body := e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": " ABCü1öö "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "found", data(body)["status"])

	resp, body = e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": "ABC-100"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "duplicate", data(body)["status"])

	st, err := e.store.Load(tenant.WithTenant(context.Background(), "shop-a"), id)
	require.NoError(t, err)
	require.Len(t, st.Cart.Lines, 1)
	require.True(t, st.Cart.Lines[0].Quantity.Equal(decimal.NewFromInt(1)))
}

func TestScanNotFound(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	resp, body := e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": "NOPE"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestScanValidation(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	resp, body := e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION", body["error"].(map[string]any)["code"])

	resp, _ = e.do(t, http.MethodPost, "/sessions/unknown/scan", map[string]string{"code": "ABC-100"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScanSuspendedWhileCriticalFieldFocused(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)

	resp, body := e.do(t, http.MethodPost, "/sessions/"+id+"/focus", map[string]string{"field": "price"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, data(body)["scanSuspended"])

	_, body = e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": "ABC-100"})
	require.Equal(t, "ignored", data(body)["status"])

	e.do(t, http.MethodPost, "/sessions/"+id+"/blur", map[string]string{"field": "price"})
	_, body = e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": "ABC-100"})
	require.Equal(t, "found", data(body)["status"])
}

func TestScanInputDebouncedPath(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	for _, v := range []string{"A", "AC", "ACC", "ACC-", "ACC-7"} {
		resp, _ := e.do(t, http.MethodPost, "/sessions/"+id+"/scan/input", map[string]string{"value": v})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	ctx := tenant.WithTenant(context.Background(), "shop-a")
	require.Eventually(t, func() bool {
		st, err := e.store.Load(ctx, id)
		return err == nil && len(st.Cart.Lines) == 1
	}, 2*time.Second, 10*time.Millisecond)
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()
	require.Equal(t, 1, e.catalog.lookups)
}

func TestCartScenario(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	base := "/sessions/" + id

	_, body := e.do(t, http.MethodPost, base+"/lines", map[string]any{
		"kind": "product", "productId": "p2", "name": "Mug", "unitGross": 1000, "unitNet": 787, "currency": "HUF", "taxRateId": "t27",
	})
	require.EqualValues(t, 1000, totals(body)["total"])

	_, body = e.do(t, http.MethodPatch, base+"/lines/product/p2", map[string]any{"quantity": "3"})
	require.EqualValues(t, 3000, totals(body)["total"])

	resp, _ := e.do(t, http.MethodPatch, base+"/lines/product/p2", map[string]any{"discountPercent": "10", "discountFixed": 5})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = e.do(t, http.MethodPost, base+"/fees", nil)
	require.EqualValues(t, 3200, totals(body)["total"])
	fees := data(body)["cart"].(map[string]any)["fees"].([]any)
	feeID := fees[0].(map[string]any)["id"].(string)

	_, body = e.do(t, http.MethodPatch, base+"/fees/"+feeID, map[string]any{"feeTypeId": "rebate"})
	require.EqualValues(t, 2500, totals(body)["total"])

	resp, _ = e.do(t, http.MethodPatch, base+"/fees/"+feeID, map[string]any{"feeTypeId": "ghost"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = e.do(t, http.MethodPut, base+"/customer", map[string]string{"customerId": "c1"})
	require.EqualValues(t, 250, totals(body)["discount"])
	require.EqualValues(t, 2250, totals(body)["total"])

	resp, body = e.do(t, http.MethodPost, base+"/discount", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "CONFLICT", body["error"].(map[string]any)["code"])

	_, body = e.do(t, http.MethodPatch, base+"/discount", map[string]any{"percentage": 150})
	require.EqualValues(t, 0, totals(body)["total"])

	_, body = e.do(t, http.MethodDelete, base+"/discount", nil)
	require.EqualValues(t, 2500, totals(body)["total"])

	resp, _ = e.do(t, http.MethodDelete, base+"/lines/product/zzz", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckoutFlow(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	base := "/sessions/" + id

	e.do(t, http.MethodPost, base+"/scan", map[string]string{"code": "ACC-7"})

	resp, body := e.do(t, http.MethodPost, base+"/checkout", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "WORKER_REQUIRED", body["error"].(map[string]any)["code"])

	resp, _ = e.do(t, http.MethodPut, base+"/worker", map[string]string{"workerId": "w404"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	e.do(t, http.MethodPut, base+"/worker", map[string]string{"workerId": "w1"})
	resp, _ = e.do(t, http.MethodPut, base+"/payment-method", map[string]string{"method": "bitcoin"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	e.do(t, http.MethodPut, base+"/payment-method", map[string]string{"method": "card"})

	resp, body = e.do(t, http.MethodPost, base+"/checkout", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "ord-9", data(body)["orderId"])
	require.Len(t, e.orders.submitted, 1)
	require.Equal(t, "card", e.orders.submitted[0].PaymentMethod)
	require.EqualValues(t, 335, e.orders.submitted[0].Total)

	_, body = e.do(t, http.MethodGet, base, nil)
	require.EqualValues(t, 0, totals(body)["total"])
}

func TestCheckoutIntegrityGap(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	base := "/sessions/" + id
	e.do(t, http.MethodPost, base+"/lines", map[string]any{"kind": "product", "productId": "p5", "name": "Loose tea", "unitGross": 500})
	e.do(t, http.MethodPut, base+"/worker", map[string]string{"workerId": "w1"})

	resp, body := e.do(t, http.MethodPost, base+"/checkout", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	require.Equal(t, "INTEGRITY", errBody["code"])
	lines := errBody["details"].(map[string]any)["lines"].([]any)
	require.Len(t, lines, 1)
	require.Equal(t, "Loose tea", lines[0].(map[string]any)["name"])
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	resp, body := e.do(t, http.MethodGet, "/sessions/"+id+"/search?q=filter", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["data"].([]any), 1)

	_, body = e.do(t, http.MethodGet, "/sessions/"+id+"/search?q=", nil)
	require.Equal(t, "empty", body["status"])
}

func TestSearchInputDebouncedPath(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	base := "/sessions/" + id

	resp, body := e.do(t, http.MethodGet, base+"/search/results", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "idle", data(body)["status"])

	for _, v := range []string{"c", "co", "cof", "coff"} {
		resp, body := e.do(t, http.MethodPost, base+"/search/input", map[string]string{"value": v})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Equal(t, true, data(body)["accepted"])
	}
	require.Eventually(t, func() bool {
		_, body := e.do(t, http.MethodGet, base+"/search/results", nil)
		return data(body)["status"] == "found"
	}, 2*time.Second, 10*time.Millisecond)

	_, body = e.do(t, http.MethodGet, base+"/search/results", nil)
	require.Equal(t, "coff", data(body)["query"])
	require.Len(t, data(body)["products"].([]any), 2)
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()
	require.Equal(t, []string{"coff"}, e.catalog.searches)
}

func TestSearchInputSuspendedWhileCriticalFieldFocused(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	base := "/sessions/" + id
	e.do(t, http.MethodPost, base+"/focus", map[string]string{"field": "discount"})

	resp, body := e.do(t, http.MethodPost, base+"/search/input", map[string]string{"value": "coffee"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, false, data(body)["accepted"])
	require.Equal(t, "idle", data(body)["state"])
}

func TestTerminalRoutesRequireSession(t *testing.T) {
	e := newEnv(t)
	cases := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/sessions/ghost/scan/input", map[string]string{"value": "A"}},
		{http.MethodPost, "/sessions/ghost/focus", map[string]string{"field": "price"}},
		{http.MethodPost, "/sessions/ghost/blur", map[string]string{"field": "price"}},
		{http.MethodGet, "/sessions/ghost/search?q=coffee", nil},
		{http.MethodPost, "/sessions/ghost/search/input", map[string]string{"value": "c"}},
		{http.MethodGet, "/sessions/ghost/search/results", nil},
	}
	for _, tc := range cases {
		resp, body := e.do(t, tc.method, tc.path, tc.body)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, tc.path)
		require.Equal(t, "SESSION_NOT_FOUND", body["error"].(map[string]any)["code"], tc.path)
	}
	require.Zero(t, e.handler.terminals.Len())
}

func TestResetAndDeleteSession(t *testing.T) {
	e := newEnv(t)
	id := e.createSession(t)
	e.do(t, http.MethodPost, "/sessions/"+id+"/scan", map[string]string{"code": "ABC-100"})
	require.Equal(t, 1, e.handler.terminals.Len())

	resp, body := e.do(t, http.MethodPost, "/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, id, data(body)["id"])
	require.EqualValues(t, 0, totals(body)["total"])
	require.Equal(t, 0, e.handler.terminals.Len())

	resp, _ = e.do(t, http.MethodDelete, "/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReferenceLists(t *testing.T) {
	e := newEnv(t)
	for _, path := range []string{"/fee-types", "/tax-rates", "/customers", "/workers"} {
		resp, body := e.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.NotEmpty(t, body["data"], path)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/pricing/reconcile", map[string]any{
		"prices": map[string]any{"cost": 1000, "multiplier": "1.38", "vatPercent": "27", "net": 1380, "gross": 1753},
		"field":  "gross",
		"value":  "1800",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prices := data(body)["prices"].(map[string]any)
	require.EqualValues(t, 1417, prices["net"])
	require.Equal(t, "1.417", prices["multiplier"])
	require.Equal(t, "gross", data(body)["editing"])

	resp, _ = e.do(t, http.MethodPost, "/pricing/reconcile", map[string]any{"field": "multiplier", "value": "0"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReconcileDerivesMissingVAT(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/pricing/reconcile", map[string]any{
		"prices": map[string]any{"cost": 1000, "multiplier": "1", "net": 1000, "gross": 1270},
		"field":  "net",
		"value":  "2000",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prices := data(body)["prices"].(map[string]any)
	require.Equal(t, "27", prices["vatPercent"])
	require.EqualValues(t, 2540, prices["gross"])
	require.EqualValues(t, 540, data(body)["vatAmount"])
}

func TestLabelEndpoints(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/labels/layout", map[string]any{
		"fields":  map[string]bool{"name": true, "price": true},
		"content": map[string]any{"name": "Coffee", "price": 1270, "currency": "Ft"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 13.6, data(body)["heightMm"])

	res, err := e.srv.Client().Get(e.srv.URL + "/labels/barcode.png?code=ABC-100")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "image/png", res.Header.Get("Content-Type"))
	img, err := png.Decode(res.Body)
	require.NoError(t, err)
	require.Positive(t, img.Bounds().Dx())

	resp, _ = e.do(t, http.MethodGet, "/labels/barcode.png", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
