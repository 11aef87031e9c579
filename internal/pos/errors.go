package pos

import (
	"context"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-kasir/internal/backoffice"
	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/directory"
	"github.com/noah-isme/backend-kasir/internal/label"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/session"
)

// toAppError classifies domain errors for the HTTP layer.
func toAppError(err error) *common.AppError {
	if appErr, ok := common.AsAppError(err); ok {
		return appErr
	}
	var integrity *checkout.IntegrityError
	if errors.As(err, &integrity) {
		return common.NewAppError("INTEGRITY", integrity.Remediation(), http.StatusUnprocessableEntity, err).
			WithDetails(map[string]any{"lines": integrity.Gaps})
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		return common.NewAppError("VALIDATION", "invalid payload", http.StatusBadRequest, err).
			WithDetails(map[string]any{"fields": fields})
	}
	var apiErr *backoffice.APIError
	if errors.As(err, &apiErr) {
		return common.NewAppError("UPSTREAM_ERROR", apiErr.Message, http.StatusBadGateway, err)
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return common.NewAppError("SESSION_NOT_FOUND", "session not found", http.StatusNotFound, err)
	case errors.Is(err, cart.ErrLineNotFound), errors.Is(err, cart.ErrFeeNotFound):
		return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, directory.ErrNotFound), errors.Is(err, backoffice.ErrNotFound):
		return common.NewAppError("NOT_FOUND", err.Error(), http.StatusNotFound, err)
	case errors.Is(err, cart.ErrDiscountExists), errors.Is(err, cart.ErrNoDiscount), errors.Is(err, cart.ErrNoFeeTypes):
		return common.NewAppError("CONFLICT", err.Error(), http.StatusConflict, err)
	case errors.Is(err, checkout.ErrEmptyCart):
		return common.NewAppError("EMPTY_CART", "cart is empty", http.StatusConflict, err)
	case errors.Is(err, checkout.ErrWorkerRequired):
		return common.NewAppError("WORKER_REQUIRED", "select a worker before checkout", http.StatusConflict, err)
	case errors.Is(err, cart.ErrInvalidInput), errors.Is(err, pricing.ErrInvalidInput), errors.Is(err, label.ErrEmptyBarcode):
		return common.NewAppError("BAD_REQUEST", err.Error(), http.StatusBadRequest, err)
	case errors.Is(err, directory.ErrTenantMissing):
		return common.NewAppError("TENANT_REQUIRED", "tenant required", http.StatusBadRequest, err)
	case errors.Is(err, backoffice.ErrUnavailable):
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "back office unavailable", http.StatusBadGateway, err)
	case errors.Is(err, lock.ErrLost):
		return common.NewAppError("SESSION_CHANGED", "session changed while the request ran, retry", http.StatusConflict, err)
	case errors.Is(err, lock.ErrBusy):
		return common.NewAppError("SESSION_BUSY", "session is being modified, retry", http.StatusConflict, err)
	case errors.Is(err, session.ErrStoreUnavailable):
		return common.NewAppError("UNAVAILABLE", "session store unavailable", http.StatusServiceUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("TIMEOUT", "request timed out", http.StatusGatewayTimeout, err)
	}
	return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		h.logger().Error().Err(err).Str("path", r.URL.Path).Msg("pos_request_failed")
	}
	common.WriteAppError(w, appErr)
}
