package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/domain/catalog"
	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/ticket"
)

// adminScope resolves the event in the path and checks it belongs to the
// key's account. Events of other accounts are not found.
func (h *Handler) adminScope(r *http.Request) (promo.Scope, error) {
	eventID, err := pathID(r, "eventID")
	if err != nil {
		return promo.Scope{}, err
	}
	ev, err := h.catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		return promo.Scope{}, err
	}
	if ev.AccountID != apiKeyFrom(r.Context()).AccountID {
		return promo.Scope{}, catalog.ErrEventNotFound
	}
	return promo.Scope{AccountID: ev.AccountID, EventID: ev.ID}, nil
}

func (h *Handler) listDiscountCodes(w http.ResponseWriter, r *http.Request) {
	scope, err := h.adminScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	codes, err := h.codes.ListDiscountCodes(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range codes {
				encodeDiscountCode(e, &codes[i])
			}
		})
	})
}

func (h *Handler) createDiscountCode(w http.ResponseWriter, r *http.Request) {
	scope, err := h.adminScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createCodeRequest
	if err := readObject(r, req.field); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	dc, err := h.codes.CreateDiscountCode(r.Context(), scope, promo.NewDiscountCode{
		Code:         req.Code,
		TicketTypeID: req.TicketTypeID,
		Amount:       req.Amount,
		MaxUses:      req.MaxUses,
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
		Active:       active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Discount code created",
		zap.Int64("code_id", dc.ID),
		zap.Int64("event_id", dc.EventID),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeDiscountCode(e, dc) })
}

func (h *Handler) setDiscountCodeActive(w http.ResponseWriter, r *http.Request) {
	scope, err := h.adminScope(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := pathID(r, "codeID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req setActiveRequest
	if err := readObject(r, req.field); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.codes.SetActive(r.Context(), scope, id, *req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// placeBoxOffice sells tickets at the counter. The buyer pays on site so no
// gateway is involved.
func (h *Handler) placeBoxOffice(w http.ResponseWriter, r *http.Request) {
	scope, err := h.adminScope(r)
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

	res, err := h.checkout.PlaceBoxOffice(r.Context(), checkout.BoxOfficeRequest{
		Scope:      scope,
		BuyerEmail: req.Email,
		Lines:      toLineRequests(req.Items),
		Code:       req.Code,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeResult(e, res) })
}

var resultStatus = map[ticket.Result]int{
	ticket.ResultOK:          http.StatusOK,
	ticket.ResultAlreadyUsed: http.StatusConflict,
	ticket.ResultNotFound:    http.StatusNotFound,
	ticket.ResultDenied:      http.StatusForbidden,
}

func (h *Handler) validateTicket(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if r.ContentLength != 0 {
		if err := readObject(r, req.field); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	out, err := h.tickets.Validate(r.Context(), ticket.Scan{
		AccountID:     apiKeyFrom(r.Context()).AccountID,
		Code:          chi.URLParam(r, "code"),
		AccessPointID: req.AccessPointID,
		Note:          req.Note,
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	status, ok := resultStatus[out.Result]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("result", func(e *jx.Encoder) { e.Str(string(out.Result)) })
			e.Field("message", func(e *jx.Encoder) { e.Str(out.Message) })
			if out.Ticket != nil {
				e.Field("ticket", func(e *jx.Encoder) { encodeTicket(e, out.Ticket) })
			}
		})
	})
}

func (h *Handler) reissueTicket(w http.ResponseWriter, r *http.Request) {
	info := apiKeyFrom(r.Context())
	t, err := h.tickets.Reissue(r.Context(), info.AccountID, chi.URLParam(r, "code"), "api_key:"+info.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeTicket(e, t) })
}

func (h *Handler) cancelTicket(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := readObject(r, req.field); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if err := h.check(&req); err != nil {
		h.fail(w, r, err)
		return
	}

	info := apiKeyFrom(r.Context())
	t, err := h.tickets.Cancel(r.Context(), info.AccountID, chi.URLParam(r, "code"), "api_key:"+info.Name, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Ticket cancelled", zap.String("order_id", t.OrderID))
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeTicket(e, t) })
}

// clientIP prefers the first X-Forwarded-For hop set by the load balancer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
