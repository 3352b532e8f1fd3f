package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/domain/auth"
	"github.com/xenking/eventpass/internal/domain/catalog"
	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/ticket"
)

// fail maps err to a status and writes the error body. Unexpected errors are
// logged and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	lg := zctx.From(r.Context())
	switch {
	case status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	case status == http.StatusConflict || status == http.StatusPaymentRequired:
		lg.Info("Request rejected", zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		bad       *badRequestError
		rejection *promo.Rejection
		invalid   *promo.InvalidCodeError
		repriced  *checkout.RepricedError
		quantity  *checkout.QuantityError
		unknownTT *checkout.TicketTypeNotFoundError
		mismatch  *checkout.AmountMismatchError
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, bad.msg
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid or missing API key"
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity, rejection.Reason.Message()
	case errors.As(err, &repriced):
		return http.StatusConflict, "the discount changed before payment; nothing was charged, please start again"
	case errors.Is(err, checkout.ErrOrderNotPending):
		return http.StatusConflict, "order was already processed"
	case errors.Is(err, checkout.ErrPaymentDeclined), errors.As(err, &mismatch):
		return http.StatusPaymentRequired, "payment was not authorized"
	case errors.Is(err, checkout.ErrEmptyItems):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrDuplicateTicketType),
		errors.As(err, &quantity),
		errors.As(err, &unknownTT):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, invalid.Error()
	case errors.Is(err, promo.ErrDuplicateCode):
		return http.StatusConflict, "discount code already exists"
	case errors.Is(err, ticket.ErrNotReissuable):
		return http.StatusConflict, "ticket cannot be reissued"
	case errors.Is(err, catalog.ErrEventNotFound):
		return http.StatusNotFound, "event not found"
	case errors.Is(err, checkout.ErrOrderNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, promo.ErrNotFound):
		return http.StatusNotFound, "discount code not found"
	case errors.Is(err, ticket.ErrNotFound):
		return http.StatusNotFound, "ticket not found"
	case promo.IsStorageFailure(err), errors.Is(err, promo.ErrLockTimeout):
		return http.StatusServiceUnavailable, "temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
