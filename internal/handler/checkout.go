package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
)

// publicScope resolves the tenant from the event in the path. Inactive and
// unknown events are both not found.
func (h *Handler) publicScope(r *http.Request) (promo.Scope, error) {
	eventID, err := pathID(r, "eventID")
	if err != nil {
		return promo.Scope{}, err
	}
	ev, err := h.catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		return promo.Scope{}, err
	}
	return promo.Scope{AccountID: ev.AccountID, EventID: ev.ID}, nil
}

func (h *Handler) listTicketTypes(w http.ResponseWriter, r *http.Request) {
	scope, err := h.publicScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	types, err := h.catalog.ListTicketTypes(r.Context(), scope.EventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, tt := range types {
				if !tt.Active {
					continue
				}
				encodeTicketType(e, tt)
			}
		})
	})
}

// previewCode answers whether a code would apply to the cart and for how
// much. Rejections are a 200 with ok=false; nothing is reserved.
func (h *Handler) previewCode(w http.ResponseWriter, r *http.Request) {
	scope, err := h.publicScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req previewRequest
	if err := readObject(r, req.field); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	q, _, err := h.checkout.Quote(r.Context(), scope, toLineRequests(req.Items), req.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !q.OK && q.Message == "" {
		q.Message = q.Reason.Message()
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

func (h *Handler) startCheckout(w http.ResponseWriter, r *http.Request) {
	scope, err := h.publicScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req orderRequest
	if err := readObject(r, req.field); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.checkout.Start(r.Context(), checkout.StartRequest{
		Scope:      scope,
		BuyerEmail: req.Email,
		Lines:      toLineRequests(req.Items),
		Code:       req.Code,
		ReturnURL:  h.cfg.PublicBaseURL + returnPath,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			if res.Completed != nil {
				encodeResultFields(e, res.Completed)
				return
			}
			encodeOrderFields(e, res.Order)
			e.Field("redirect_url", func(e *jx.Encoder) { e.Str(res.RedirectURL) })
			e.Field("token", func(e *jx.Encoder) { e.Str(res.Token) })
		})
	})
}

// completeCheckout is where the gateway sends the buyer back. Webpay posts
// token_ws on success and TBK_TOKEN when the buyer aborted.
func (h *Handler) completeCheckout(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token_ws")
	if token == "" {
		if aborted := r.FormValue("TBK_TOKEN"); aborted != "" {
			err := h.checkout.Abort(r.Context(), aborted)
			if err != nil && !errors.Is(err, checkout.ErrOrderNotFound) && !errors.Is(err, checkout.ErrOrderNotPending) {
				h.fail(w, r, err)
				return
			}
			writeError(w, http.StatusPaymentRequired, "payment was cancelled")
			return
		}
		writeError(w, http.StatusBadRequest, "token_ws is required")
		return
	}

	res, err := h.checkout.Complete(r.Context(), token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeResult(e, res) })
}
