package pos

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/scan"
	"github.com/noah-isme/backend-kasir/internal/session"
)

// CreateSession starts a new terminal session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Create(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, st)
}

// GetSession returns a session with its totals.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Load(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, st)
}

// ResetSession empties the cart but keeps the session.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Reset(r.Context(), sessionID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.terminals.Drop(r.Context(), st.ID)
	writeSession(w, http.StatusOK, st)
}

// DeleteSession discards a session.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	if err := h.sessions.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.terminals.Drop(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type scanRequest struct {
	Code string `json:"code" validate:"required,max=128"`
}

type scanResponse struct {
	Status  string       `json:"status"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
	Session *sessionView `json:"session,omitempty"`
}

// Scan resolves a complete scan (the scanner's terminating Enter) and adds
// the product to the cart. Duplicate reads and scans while a price or
// discount input holds focus leave the cart untouched.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := sessionID(r)
	res := term.Scan.Submit(ctx, req.Code)
	out := scanResponse{Status: res.Status.String(), Code: res.Code, Message: res.Message}
	switch res.Status {
	case scan.StatusFound:
		st, err := h.sessions.Update(ctx, id, addProduct(res.Value))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		view := viewOf(st)
		out.Session = &view
		common.Data(w, http.StatusOK, out)
	case scan.StatusNotFound:
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", res.Message, map[string]any{"code": res.Code})
	case scan.StatusFailed:
		common.JSONError(w, http.StatusBadGateway, "LOOKUP_FAILED", res.Message, map[string]any{"code": res.Code})
	default:
		common.Data(w, http.StatusOK, out)
	}
}

// terminal returns the controllers of an existing session. It writes the
// error response and reports false when the session is unknown.
func (h *Handler) terminal(w http.ResponseWriter, r *http.Request) (*Terminal, bool) {
	id := sessionID(r)
	if _, err := h.sessions.Load(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return h.terminals.Get(r.Context(), id), true
}

type scanInputRequest struct {
	Value string `json:"value" validate:"max=128"`
}

// ScanInput feeds keystroke-level input into the debounced scan path. The
// lookup runs once the input is quiet; a found product is added to the cart
// in the background.
func (h *Handler) ScanInput(w http.ResponseWriter, r *http.Request) {
	var req scanInputRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	accepted := term.Scan.Input(req.Value)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"accepted": accepted,
		"state":    term.Scan.State().String(),
	}})
}

// applyScanned adds a product found on the keystroke path to the session.
func (h *Handler) applyScanned(ctx context.Context, id string, p backoffice.Product) {
	if _, err := h.sessions.Update(ctx, id, addProduct(p)); err != nil {
		h.logger().Warn().Err(err).Str("session_id", id).Str("product_id", p.ID).Msg("scan_apply_failed")
	}
}

func addProduct(p backoffice.Product) func(*session.State) error {
	return func(st *session.State) error {
		_, err := st.Cart.AddOrIncrement(p.Item())
		return err
	}
}

type focusRequest struct {
	Field string `json:"field" validate:"required,max=64"`
}

// Focus records that an input of the terminal gained focus.
func (h *Handler) Focus(w http.ResponseWriter, r *http.Request) {
	h.focusChange(w, r, true)
}

// Blur records that an input of the terminal lost focus.
func (h *Handler) Blur(w http.ResponseWriter, r *http.Request) {
	h.focusChange(w, r, false)
}

func (h *Handler) focusChange(w http.ResponseWriter, r *http.Request, focused bool) {
	var req focusRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	if focused {
		term.Focus(req.Field)
	} else {
		term.Blur(req.Field)
	}
	common.Data(w, http.StatusOK, map[string]any{"scanSuspended": term.Scan.Guarded()})
}

// Search runs a free-text product search for the terminal. A newer search
// from the same terminal supersedes an older one still in flight.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	res := term.Search.Submit(r.Context(), q)
	switch res.Status {
	case scan.StatusFound:
		common.JSON(w, http.StatusOK, map[string]any{"data": res.Value, "status": res.Status.String()})
	case scan.StatusFailed:
		common.JSONError(w, http.StatusBadGateway, "LOOKUP_FAILED", res.Message, nil)
	default:
		common.JSON(w, http.StatusOK, map[string]any{"data": []backoffice.Product{}, "status": res.Status.String()})
	}
}

// SearchInput feeds the search box's keystrokes into the debounced search.
// The query runs once typing pauses; its outcome is read from SearchResults.
func (h *Handler) SearchInput(w http.ResponseWriter, r *http.Request) {
	var req scanInputRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	accepted := term.Search.Input(req.Value)
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]any{
		"accepted": accepted,
		"state":    term.Search.State().String(),
	}})
}

// SearchResults returns the latest settled keystroke search.
func (h *Handler) SearchResults(w http.ResponseWriter, r *http.Request) {
	term, ok := h.terminal(w, r)
	if !ok {
		return
	}
	res := term.LastSearch()
	common.JSON(w, http.StatusOK, map[string]any{"data": res, "state": term.Search.State().String()})
}

type addLineRequest struct {
	Kind      string `json:"kind" validate:"required,max=32"`
	ProductID string `json:"productId" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=255"`
	UnitGross int64  `json:"unitGross"`
	UnitNet   int64  `json:"unitNet"`
	Currency  string `json:"currency" validate:"omitempty,max=8"`
	TaxRateID string `json:"taxRateId" validate:"omitempty,max=64"`
}

// AddLine adds a product picked from search results.
func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	var req addLineRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	item := cart.Item{
		Identity:  cart.Identity{Kind: req.Kind, ProductID: req.ProductID},
		Name:      req.Name,
		UnitGross: req.UnitGross,
		UnitNet:   req.UnitNet,
		Currency:  req.Currency,
		TaxRateID: req.TaxRateID,
	}
	h.mutate(w, r, func(st *session.State) error {
		_, err := st.Cart.AddOrIncrement(item)
		return err
	})
}

type updateLineRequest struct {
	Quantity        *decimal.Decimal `json:"quantity"`
	Multiply        *decimal.Decimal `json:"multiply"`
	DeferRemoval    bool             `json:"deferRemoval"`
	DiscountPercent *decimal.Decimal `json:"discountPercent"`
	DiscountFixed   *int64           `json:"discountFixed"`
}

func lineIdentity(r *http.Request) cart.Identity {
	return cart.Identity{Kind: chi.URLParam(r, "kind"), ProductID: chi.URLParam(r, "productID")}
}

// UpdateLine edits quantity or discount of a line. Setting both discount
// modes in one request is rejected.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req updateLineRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DiscountPercent != nil && req.DiscountFixed != nil {
		h.writeError(w, r, common.NewAppError("BAD_REQUEST", "only one discount mode may be set", http.StatusBadRequest, nil))
		return
	}
	id := lineIdentity(r)
	h.mutate(w, r, func(st *session.State) error {
		c := &st.Cart
		if req.Quantity != nil {
			if err := c.SetQuantity(id, *req.Quantity, req.DeferRemoval); err != nil {
				return err
			}
		}
		if req.Multiply != nil {
			if err := c.MultiplyQuantity(id, *req.Multiply); err != nil {
				return err
			}
		}
		if req.DiscountPercent != nil {
			if err := c.SetLineDiscountPercentage(id, *req.DiscountPercent); err != nil {
				return err
			}
		}
		if req.DiscountFixed != nil {
			if err := c.SetLineDiscountFixedAmount(id, *req.DiscountFixed); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveLine deletes a line.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id := lineIdentity(r)
	h.mutate(w, r, func(st *session.State) error {
		return st.Cart.RemoveLine(id)
	})
}

// AddFee adds a fee of the first configured fee type.
func (h *Handler) AddFee(w http.ResponseWriter, r *http.Request) {
	types, err := h.catalog.FeeTypes(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(st *session.State) error {
		_, err := st.Cart.AddFee(types)
		return err
	})
}

type updateFeeRequest struct {
	FeeTypeID *string          `json:"feeTypeId" validate:"omitempty,min=1"`
	UnitGross *int64           `json:"unitGross"`
	Quantity  *decimal.Decimal `json:"quantity"`
}

// UpdateFee switches the type of a fee or edits its price or quantity.
func (h *Handler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	var req updateFeeRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	var feeType *cart.FeeType
	if req.FeeTypeID != nil {
		types, err := h.catalog.FeeTypes(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		for i := range types {
			if types[i].ID == *req.FeeTypeID {
				feeType = &types[i]
				break
			}
		}
		if feeType == nil {
			h.writeError(w, r, common.NewAppError("NOT_FOUND", "fee type not found", http.StatusNotFound, nil))
			return
		}
	}
	feeID := chi.URLParam(r, "feeID")
	h.mutate(w, r, func(st *session.State) error {
		c := &st.Cart
		if feeType != nil {
			if err := c.SetFeeType(feeID, *feeType); err != nil {
				return err
			}
		}
		if req.UnitGross != nil {
			if err := c.SetFeePrice(feeID, *req.UnitGross); err != nil {
				return err
			}
		}
		if req.Quantity != nil {
			if err := c.SetFeeQuantity(feeID, *req.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFee deletes a fee line.
func (h *Handler) RemoveFee(w http.ResponseWriter, r *http.Request) {
	feeID := chi.URLParam(r, "feeID")
	h.mutate(w, r, func(st *session.State) error {
		return st.Cart.RemoveFee(feeID)
	})
}

// AddDiscount adds the order discount at 0%.
func (h *Handler) AddDiscount(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *session.State) error {
		return st.Cart.AddDiscount()
	})
}

type discountRequest struct {
	Percentage decimal.Decimal `json:"percentage"`
}

// SetDiscount changes the order discount percentage.
func (h *Handler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(st *session.State) error {
		return st.Cart.SetDiscountPercentage(req.Percentage)
	})
}

// RemoveDiscount drops the order discount.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *session.State) error {
		st.Cart.RemoveDiscount()
		return nil
	})
}

type customerRequest struct {
	CustomerID string `json:"customerId" validate:"required,max=64"`
}

// SelectCustomer attaches a customer; a standing customer discount is
// applied when the cart has no discount yet.
func (h *Handler) SelectCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	cust, err := h.directory.Customer(r.Context(), req.CustomerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cc := cust.CartCustomer()
	h.mutate(w, r, func(st *session.State) error {
		st.Cart.SelectCustomer(cc)
		st.Customer = &cc
		return nil
	})
}

// ClearCustomer detaches the customer.
func (h *Handler) ClearCustomer(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(st *session.State) error {
		st.Cart.ClearCustomer()
		st.Customer = nil
		return nil
	})
}

type workerRequest struct {
	WorkerID string `json:"workerId" validate:"required,max=64"`
}

// SelectWorker sets the operator orders are attributed to.
func (h *Handler) SelectWorker(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	worker, err := h.directory.Worker(r.Context(), req.WorkerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(st *session.State) error {
		st.WorkerID = worker.ID
		return nil
	})
}

type paymentRequest struct {
	Method string `json:"method" validate:"required,oneof=cash card transfer"`
}

// SetPaymentMethod records how the customer pays.
func (h *Handler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := h.decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.mutate(w, r, func(st *session.State) error {
		st.PaymentMethod = req.Method
		return nil
	})
}

// Checkout submits the session as an order. On success the session is
// emptied and its terminal state discarded.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	id := sessionID(r)
	res, err := h.checkout.Checkout(r.Context(), id, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.terminals.Drop(r.Context(), id)
	var view *sessionView
	if res.Session != nil {
		v := viewOf(res.Session)
		view = &v
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId": res.OrderID,
		"totals":  res.Totals,
		"session": view,
	}})
}
