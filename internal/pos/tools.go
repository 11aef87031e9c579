package pos

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/label"
	"github.com/noah-isme/backend-kasir/internal/pricing"
)

// LabelConfig configures label rendering.
type LabelConfig struct {
	Locale string
	DPI    int
}

func (c LabelConfig) withDefaults() LabelConfig {
	if c.Locale == "" {
		c.Locale = "hu"
	}
	if c.DPI <= 0 {
		c.DPI = label.DefaultDPI
	}
	return c
}

// FeeTypes lists the configured fee types.
func (h *Handler) FeeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.FeeTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, types)
}

// TaxRates lists the tenant's tax rates.
func (h *Handler) TaxRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.directory.TaxRates(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, rates)
}

// Customers lists the tenant's customers.
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Customers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

// Workers lists the tenant's active workers.
func (h *Handler) Workers(w http.ResponseWriter, r *http.Request) {
	list, err := h.directory.Workers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, list)
}

type reconcileRequest struct {
	Prices pricing.Prices  `json:"prices"`
	Field  string          `json:"field" validate:"required,oneof=gross net cost multiplier vat"`
	Value  decimal.Decimal `json:"value"`
}

// Reconcile applies one edited price component and returns the recomputed
// set. The edited field is reported back as the authoritative one. A missing
// VAT percentage is derived from the gross and net prices when both are set.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	field, err := pricing.ParseField(req.Field)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Prices.VATPercent.IsZero() && req.Prices.Gross > 0 && req.Prices.Net > 0 {
		// Items stored without a tax rate carry it in their gross/net ratio.
		req.Prices.VATPercent = pricing.ImpliedVATPercent(req.Prices.Gross, req.Prices.Net)
	}
	rec := pricing.NewReconciler(req.Prices)
	prices, err := rec.Edit(field, req.Value)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"prices":    prices,
		"editing":   rec.Editing().String(),
		"vatAmount": pricing.VATAmount(prices.Gross, prices.VATPercent),
	}})
}

type layoutRequest struct {
	Fields  *label.Fields `json:"fields"`
	Content label.Content `json:"content"`
	Locale  string        `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

// LabelLayout computes the row geometry of a product label.
func (h *Handler) LabelLayout(w http.ResponseWriter, r *http.Request) {
	var req layoutRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fields := label.AllFields
	if req.Fields != nil {
		fields = *req.Fields
	}
	locale := req.Locale
	if locale == "" {
		locale = h.labels.Locale
	}
	layout := label.Compute(fields, req.Content, label.NewFormatter(locale))
	common.Data(w, http.StatusOK, layout)
}

// LabelBarcode renders the barcode row of a full label as PNG. The optional
// dpi query parameter overrides the configured printer resolution.
func (h *Handler) LabelBarcode(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	dpi := h.labels.DPI
	if raw := r.URL.Query().Get("dpi"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > 1200 {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid dpi", nil)
			return
		}
		dpi = v
	}
	layout := label.Compute(label.AllFields, label.Content{Barcode: code}, nil)
	row := layout.Rows[len(layout.Rows)-1]

	var buf bytes.Buffer
	if err := label.WriteBarcodePNG(&buf, code, row, dpi); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
