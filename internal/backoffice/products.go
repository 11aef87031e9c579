package backoffice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/cart"
)

// Product kinds known to the back office.
const (
	KindProduct   = "product"
	KindAccessory = "accessory"
)

// ErrUnknownKind is returned for reference lookups of unsupported kinds.
var ErrUnknownKind = errors.New("backoffice: unknown product kind")

// Product is a sellable product or accessory.
type Product struct {
	Kind       string `json:"kind"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Barcode    string `json:"barcode,omitempty"`
	GrossPrice int64  `json:"grossPrice"`
	NetPrice   int64  `json:"netPrice"`
	Currency   string `json:"currency,omitempty"`
	TaxRateID  string `json:"taxRateId,omitempty"`
}

// Item converts the product into a cart item.
func (p Product) Item() cart.Item {
	kind := p.Kind
	if kind == "" {
		kind = KindProduct
	}
	return cart.Item{
		Identity:  cart.Identity{Kind: kind, ProductID: p.ID},
		Name:      p.Name,
		UnitGross: p.GrossPrice,
		UnitNet:   p.NetPrice,
		Currency:  p.Currency,
		TaxRateID: p.TaxRateID,
	}
}

var referenceCollections = map[string]string{
	KindProduct:   "products",
	KindAccessory: "accessories",
}

// Reference is the tax and currency data attached to a product.
type Reference struct {
	TaxRateID string `json:"taxRateId"`
	Currency  string `json:"currency"`
}

// Search finds products and accessories by free text.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Product, error) {
	q := url.Values{"q": {strings.TrimSpace(query)}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Data []Product `json:"data"`
	}
	if err := c.do(ctx, call{op: "search", method: http.MethodGet, path: "api/products/search", query: q, out: &out}); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// LookupBarcode resolves a normalised barcode. Unknown codes yield ErrNotFound.
func (c *Client) LookupBarcode(ctx context.Context, code string) (Product, error) {
	var out struct {
		Data Product `json:"data"`
	}
	path := "api/products/barcode/" + url.PathEscape(code)
	if err := c.do(ctx, call{op: "barcode", method: http.MethodGet, path: path, out: &out}); err != nil {
		return Product{}, err
	}
	return out.Data, nil
}

// Reference re-fetches the tax rate and currency of a product of a known kind.
func (c *Client) Reference(ctx context.Context, kind, id string) (Reference, error) {
	collection, ok := referenceCollections[kind]
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	var out struct {
		Data Reference `json:"data"`
	}
	path := fmt.Sprintf("api/%s/%s/reference", collection, url.PathEscape(id))
	if err := c.do(ctx, call{op: "reference", method: http.MethodGet, path: path, out: &out}); err != nil {
		return Reference{}, err
	}
	return out.Data, nil
}
