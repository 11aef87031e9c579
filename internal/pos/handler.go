// Package pos exposes the terminal-facing HTTP API: sessions and their carts,
// scanning, search, checkout and the pricing and label tools.
package pos

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/directory"
	"github.com/noah-isme/backend-kasir/internal/security"
	"github.com/noah-isme/backend-kasir/internal/session"
)

var posNopLogger = zerolog.Nop()

// Catalog is the product side of the back office.
type Catalog interface {
	LookupBarcode(ctx context.Context, code string) (backoffice.Product, error)
	Search(ctx context.Context, query string, limit int) ([]backoffice.Product, error)
	FeeTypes(ctx context.Context) ([]cart.FeeType, error)
}

// Directory serves tenant reference lists.
type Directory interface {
	Customers(ctx context.Context) ([]directory.Customer, error)
	Customer(ctx context.Context, id string) (directory.Customer, error)
	Workers(ctx context.Context) ([]directory.Worker, error)
	Worker(ctx context.Context, id string) (directory.Worker, error)
	TaxRates(ctx context.Context) ([]directory.TaxRate, error)
}

// Sessions persists terminal sessions.
type Sessions interface {
	Create(ctx context.Context) (*session.State, error)
	Load(ctx context.Context, id string) (*session.State, error)
	Update(ctx context.Context, id string, fn func(*session.State) error) (*session.State, error)
	Reset(ctx context.Context, id string) (*session.State, error)
	Delete(ctx context.Context, id string) error
}

// Checkouter submits a session as an order.
type Checkouter interface {
	Checkout(ctx context.Context, sessionID, idemKey string) (checkout.Result, error)
}

// Deps wires a Handler.
type Deps struct {
	Sessions  Sessions
	Catalog   Catalog
	Directory Directory
	Checkout  Checkouter
	Scan      ScanConfig
	Labels    LabelConfig
	Validate  *validator.Validate
	Logger    *zerolog.Logger
}

// Handler serves /api/v1/pos.
type Handler struct {
	sessions  Sessions
	catalog   Catalog
	directory Directory
	checkout  Checkouter
	terminals *Terminals
	labels    LabelConfig
	validate  *validator.Validate
	log       *zerolog.Logger
}

// New builds the handler and its terminal registry.
func New(d Deps) *Handler {
	h := &Handler{
		sessions:  d.Sessions,
		catalog:   d.Catalog,
		directory: d.Directory,
		checkout:  d.Checkout,
		labels:    d.Labels.withDefaults(),
		validate:  d.Validate,
		log:       d.Logger,
	}
	if h.validate == nil {
		h.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	h.terminals = NewTerminals(d.Scan, d.Catalog, h.applyScanned, d.Logger)
	return h
}

func (h *Handler) logger() *zerolog.Logger {
	if h.log == nil {
		return &posNopLogger
	}
	return h.log
}

// Middlewares are applied to individual route groups.
type Middlewares struct {
	// ScanLimit throttles the scan endpoints.
	ScanLimit func(http.Handler) http.Handler
	// Idempotency guards checkout.
	Idempotency func(http.Handler) http.Handler
	// Journal records actions that change or discard a sale under the
	// given action name.
	Journal func(action string) func(http.Handler) http.Handler
	// JournalList serves the session journal when set.
	JournalList http.HandlerFunc
}

func passthrough(next http.Handler) http.Handler { return next }

// Routes returns the POS router.
func (h *Handler) Routes(mw Middlewares) chi.Router {
	if mw.ScanLimit == nil {
		mw.ScanLimit = passthrough
	}
	if mw.Idempotency == nil {
		mw.Idempotency = passthrough
	}
	if mw.Journal == nil {
		mw.Journal = func(string) func(http.Handler) http.Handler { return passthrough }
	}
	r := chi.NewRouter()
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionID}", func(s chi.Router) {
		s.Get("/", h.GetSession)
		s.With(mw.Journal("session.delete")).Delete("/", h.DeleteSession)
		s.With(mw.Journal("session.reset")).Post("/reset", h.ResetSession)
		if mw.JournalList != nil {
			s.Get("/journal", mw.JournalList)
		}

		s.With(mw.ScanLimit).Post("/scan", h.Scan)
		s.With(mw.ScanLimit).Post("/scan/input", h.ScanInput)
		s.Post("/focus", h.Focus)
		s.Post("/blur", h.Blur)
		s.Get("/search", h.Search)
		s.Post("/search/input", h.SearchInput)
		s.Get("/search/results", h.SearchResults)

		s.Post("/lines", h.AddLine)
		s.Patch("/lines/{kind}/{productID}", h.UpdateLine)
		s.With(mw.Journal("line.void")).Delete("/lines/{kind}/{productID}", h.RemoveLine)

		s.Post("/fees", h.AddFee)
		s.Patch("/fees/{feeID}", h.UpdateFee)
		s.Delete("/fees/{feeID}", h.RemoveFee)

		s.Post("/discount", h.AddDiscount)
		s.Patch("/discount", h.SetDiscount)
		s.Delete("/discount", h.RemoveDiscount)

		s.Put("/customer", h.SelectCustomer)
		s.Delete("/customer", h.ClearCustomer)
		s.Put("/worker", h.SelectWorker)
		s.Put("/payment-method", h.SetPaymentMethod)

		s.With(mw.Idempotency, mw.Journal("session.checkout")).Post("/checkout", h.Checkout)
	})

	r.Get("/fee-types", h.FeeTypes)
	r.Get("/tax-rates", h.TaxRates)
	r.Get("/customers", h.Customers)
	r.Get("/workers", h.Workers)

	r.Post("/pricing/reconcile", h.Reconcile)
	r.Post("/labels/layout", h.LabelLayout)
	r.Get("/labels/barcode.png", h.LabelBarcode)
	return r
}

// decode reads and validates a JSON payload.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if limit, ok := security.TooLarge(err); ok {
			return common.NewAppError("PAYLOAD_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err).
				WithDetails(map[string]any{"limit": limit})
		}
		return common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err)
	}
	return h.validate.StructCtx(r.Context(), dst)
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

// sessionView is the representation of a session returned by every endpoint
// that reads or mutates one.
type sessionView struct {
	*session.State
	Totals cart.Totals `json:"totals"`
}

func viewOf(st *session.State) sessionView {
	return sessionView{State: st, Totals: st.Cart.Totals()}
}

func writeSession(w http.ResponseWriter, status int, st *session.State) {
	common.Data(w, status, viewOf(st))
}

// mutate applies fn to the session under its lock and renders the result.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(*session.State) error) {
	st, err := h.sessions.Update(r.Context(), sessionID(r), fn)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, st)
}
