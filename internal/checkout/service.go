// Package checkout turns a POS session into a back-office order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/directory"
	"github.com/noah-isme/backend-kasir/internal/jobs"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/session"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// DefaultPaymentMethod is used when the session did not pick one.
const DefaultPaymentMethod = "cash"

var (
	// ErrEmptyCart is returned when the session has neither lines nor fees.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrWorkerRequired is returned when no worker is selected.
	ErrWorkerRequired = errors.New("checkout: worker required")
)

// Gap is a cart line that lacks data the order endpoint requires.
type Gap struct {
	Kind      string `json:"kind"`
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Missing   string `json:"missing"`
}

// IntegrityError lists the lines that could not be remediated.
type IntegrityError struct {
	Gaps []Gap
}

func (e *IntegrityError) Error() string {
	names := make([]string, 0, len(e.Gaps))
	for _, g := range e.Gaps {
		names = append(names, g.Name)
	}
	return "checkout: missing tax or currency data for " + strings.Join(names, ", ")
}

// Remediation is the operator-facing hint attached to an IntegrityError.
func (e *IntegrityError) Remediation() string {
	return "Fix the tax rate and currency of the listed products in the back office, then retry."
}

// Catalog is the back-office surface checkout needs.
type Catalog interface {
	Reference(ctx context.Context, kind, id string) (backoffice.Reference, error)
	SubmitOrder(ctx context.Context, req backoffice.OrderRequest, idemKey string) (backoffice.OrderResult, error)
}

// TaxRates lists the tax rates known to the tenant.
type TaxRates interface {
	TaxRates(ctx context.Context) ([]directory.TaxRate, error)
}

// Sessions persists POS sessions.
type Sessions interface {
	Update(ctx context.Context, id string, fn func(*session.State) error) (*session.State, error)
}

// StockSync schedules the post-sale stock sync.
type StockSync interface {
	EnqueueStockSync(ctx context.Context, p jobs.StockSyncPayload) error
}

// Result is the outcome of a successful checkout.
type Result struct {
	OrderID string         `json:"orderId"`
	Totals  cart.Totals    `json:"totals"`
	Session *session.State `json:"session"`
}

var checkoutNopLogger = zerolog.Nop()

// Service submits sessions as orders.
type Service struct {
	Catalog  Catalog
	TaxRates TaxRates
	Sessions Sessions
	Stock    StockSync
	Logger   *zerolog.Logger
}

func (s *Service) logger() *zerolog.Logger {
	if s.Logger == nil {
		return &checkoutNopLogger
	}
	return s.Logger
}

// Checkout validates and submits the session's cart. Lines missing their tax
// rate or currency are re-fetched once; whatever remains unresolved fails the
// checkout with an IntegrityError. The session is reset only after the order
// was accepted.
func (s *Service) Checkout(ctx context.Context, sessionID, idemKey string) (Result, error) {
	if s == nil || s.Catalog == nil || s.Sessions == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	var res Result
	var sold []jobs.StockItem
	var soldState session.State
	st, err := s.Sessions.Update(ctx, sessionID, func(st *session.State) error {
		if !sellable(st.Cart) {
			return ErrEmptyCart
		}
		if strings.TrimSpace(st.WorkerID) == "" {
			return ErrWorkerRequired
		}
		rates, err := s.knownRates(ctx)
		if err != nil {
			return err
		}
		if gaps := s.remediate(ctx, &st.Cart, rates); len(gaps) > 0 {
			return &IntegrityError{Gaps: gaps}
		}

		req := BuildOrder(st)
		key := idemKey
		if key == "" {
			key = "checkout:" + st.ID + ":" + strconv.FormatInt(st.UpdatedAt.UnixNano(), 10)
		}
		out, err := s.Catalog.SubmitOrder(ctx, req, key)
		if err != nil {
			return fmt.Errorf("submit order: %w", err)
		}
		res.OrderID = out.ID
		res.Totals = st.Cart.Totals()
		sold = stockItems(st.Cart)
		soldState = *st
		*st = session.State{ID: st.ID, CreatedAt: st.CreatedAt}
		return nil
	})
	if err != nil && res.OrderID != "" && errors.Is(err, lock.ErrLost) {
		// The order is accepted but the reset lost the race with another
		// writer. Take the sold goods out of whatever the session holds now.
		s.logger().Warn().Str("order_id", res.OrderID).Msg("checkout_lock_lost")
		st, err = s.Sessions.Update(ctx, sessionID, func(cur *session.State) error {
			removeSold(cur, &soldState)
			return nil
		})
		if err != nil {
			err = fmt.Errorf("order %s submitted but session not cleared: %w", res.OrderID, err)
		}
	}
	if err != nil {
		obs.ObserveCheckout(checkoutResult(err))
		return Result{}, err
	}
	obs.ObserveCheckout("ok")
	res.Session = st

	if s.Stock != nil && len(sold) > 0 {
		tenantID, _ := tenant.From(ctx)
		payload := jobs.StockSyncPayload{TenantID: tenantID, OrderID: res.OrderID, Items: sold}
		if err := s.Stock.EnqueueStockSync(ctx, payload); err != nil {
			s.logger().Error().Err(err).Str("order_id", res.OrderID).Msg("stock_sync_enqueue_failed")
		}
	}
	s.logger().Info().Str("order_id", res.OrderID).Int64("total", res.Totals.Total).Msg("checkout_completed")
	return res, nil
}

func checkoutResult(err error) string {
	var integrity *IntegrityError
	switch {
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrWorkerRequired):
		return "invalid"
	case errors.As(err, &integrity):
		return "integrity"
	default:
		return "error"
	}
}

// knownRates returns the tenant's tax rate ids, or nil when no directory is
// wired and any non-empty id is accepted.
func (s *Service) knownRates(ctx context.Context) (map[string]struct{}, error) {
	if s.TaxRates == nil {
		return nil, nil
	}
	list, err := s.TaxRates.TaxRates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tax rates: %w", err)
	}
	out := make(map[string]struct{}, len(list))
	for _, r := range list {
		out[r.ID] = struct{}{}
	}
	return out, nil
}

func missing(l cart.Line, rates map[string]struct{}) string {
	var parts []string
	if l.TaxRateID == "" {
		parts = append(parts, "taxRate")
	} else if rates != nil {
		if _, ok := rates[l.TaxRateID]; !ok {
			parts = append(parts, "taxRate")
		}
	}
	if l.Currency == "" {
		parts = append(parts, "currency")
	}
	return strings.Join(parts, ",")
}

// remediate fills reference gaps in place and returns the lines still broken.
func (s *Service) remediate(ctx context.Context, c *cart.Cart, rates map[string]struct{}) []Gap {
	var gaps []Gap
	for i := range c.Lines {
		line := &c.Lines[i]
		if missing(*line, rates) == "" {
			continue
		}
		if line.Kind == backoffice.KindProduct || line.Kind == backoffice.KindAccessory {
			ref, err := s.Catalog.Reference(ctx, line.Kind, line.ProductID)
			switch {
			case err != nil:
				obs.ObserveRemediation(line.Kind, "error")
				s.logger().Warn().Err(err).Str("line", line.Identity.String()).Msg("reference_refetch_failed")
			default:
				if ref.TaxRateID != "" {
					line.TaxRateID = ref.TaxRateID
				}
				if ref.Currency != "" {
					line.Currency = ref.Currency
				}
				if missing(*line, rates) == "" {
					obs.ObserveRemediation(line.Kind, "fixed")
					continue
				}
				obs.ObserveRemediation(line.Kind, "incomplete")
			}
		}
		gaps = append(gaps, Gap{Kind: line.Kind, ProductID: line.ProductID, Name: line.Name, Missing: missing(*line, rates)})
	}
	return gaps
}

// BuildOrder maps a session onto the order payload.
func BuildOrder(st *session.State) backoffice.OrderRequest {
	c := st.Cart
	req := backoffice.OrderRequest{
		Lines:         make([]backoffice.OrderLine, 0, len(c.Lines)),
		Fees:          make([]backoffice.OrderFee, 0, len(c.Fees)),
		CustomerID:    c.CustomerID,
		WorkerID:      st.WorkerID,
		PaymentMethod: st.PaymentMethod,
		Total:         c.Totals().Total,
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = DefaultPaymentMethod
	}
	if req.CustomerID == "" && st.Customer != nil {
		req.CustomerID = st.Customer.ID
	}
	for _, l := range c.Lines {
		if !l.Quantity.IsPositive() {
			continue
		}
		req.Lines = append(req.Lines, backoffice.OrderLine{
			Kind:            l.Kind,
			ProductID:       l.ProductID,
			Name:            l.Name,
			Quantity:        l.Quantity,
			UnitGross:       l.UnitGross,
			UnitNet:         l.UnitNet,
			DiscountPercent: l.DiscountPercent,
			DiscountFixed:   l.DiscountFixed,
			Subtotal:        cart.LineSubtotal(l),
			Currency:        l.Currency,
			TaxRateID:       l.TaxRateID,
		})
	}
	for _, f := range c.Fees {
		req.Fees = append(req.Fees, backoffice.OrderFee{
			FeeTypeID: f.FeeTypeID,
			Name:      f.Name,
			Quantity:  f.Quantity,
			UnitGross: f.UnitGross,
			UnitNet:   f.UnitNet,
			Subtotal:  cart.FeeSubtotal(f),
			TaxRateID: f.TaxRateID,
		})
	}
	if c.Discount != nil && c.Discount.Percentage.IsPositive() {
		pct := c.Discount.Percentage
		req.DiscountPercent = &pct
	}
	return req
}

// sellable reports whether the cart holds at least one fee or one line with
// a positive quantity. Lines parked at zero are not sold.
func sellable(c cart.Cart) bool {
	if len(c.Fees) > 0 {
		return true
	}
	for _, l := range c.Lines {
		if l.Quantity.IsPositive() {
			return true
		}
	}
	return false
}

// removeSold subtracts a sold session from the current one: sold quantities
// and fees are removed and selections that still match the sale are cleared.
// Anything added after the sale stays.
func removeSold(cur, sold *session.State) {
	for _, l := range sold.Cart.Lines {
		if !l.Quantity.IsPositive() {
			continue
		}
		if line, ok := cur.Cart.Line(l.Identity); ok {
			_ = cur.Cart.SetQuantity(l.Identity, line.Quantity.Sub(l.Quantity), false)
		}
	}
	for _, f := range sold.Cart.Fees {
		_ = cur.Cart.RemoveFee(f.ID)
	}
	if sold.Cart.Discount != nil {
		cur.Cart.RemoveDiscount()
	}
	if cur.Cart.CustomerID == sold.Cart.CustomerID {
		cur.Cart.CustomerID = ""
		cur.Customer = nil
	}
	if cur.WorkerID == sold.WorkerID {
		cur.WorkerID = ""
	}
	if cur.PaymentMethod == sold.PaymentMethod {
		cur.PaymentMethod = ""
	}
}

func stockItems(c cart.Cart) []jobs.StockItem {
	out := make([]jobs.StockItem, 0, len(c.Lines))
	for _, l := range c.Lines {
		if l.Quantity.IsPositive() {
			out = append(out, jobs.StockItem{Kind: l.Kind, ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	return out
}
