package handler

import (
	"github.com/go-faster/jx"

	"github.com/xenking/eventpass/internal/domain/catalog"
	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/ticket"
)

func encodeTicketType(e *jx.Encoder, tt catalog.TicketType) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(tt.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(tt.Name) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, tt.Price) })
		e.Field("exempt", func(e *jx.Encoder) { e.Bool(tt.Exempt) })
	})
}

func encodeQuote(e *jx.Encoder, q promo.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("ok", func(e *jx.Encoder) { e.Bool(q.OK) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(q.Kind)) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, q.Amount) })
		e.Field("reason", func(e *jx.Encoder) { e.Str(string(q.Reason)) })
		e.Field("message", func(e *jx.Encoder) { e.Str(q.Message) })
	})
}

// encodeOrderFields writes the order summary shared by every order response.
func encodeOrderFields(e *jx.Encoder, o *checkout.Order) {
	e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
	e.Field("payment_method", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
	e.Field("subtotal", func(e *jx.Encoder) { encodeMoney(e, o.Subtotal) })
	e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, o.Discount) })
	e.Field("total", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
	if o.Code != "" {
		e.Field("code", func(e *jx.Encoder) { e.Str(o.Code) })
		e.Field("discount_kind", func(e *jx.Encoder) { e.Str(string(o.DiscountKind)) })
	}
	e.Field("lines", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, l := range o.Lines {
				e.Obj(func(e *jx.Encoder) {
					e.Field("ticket_type_id", func(e *jx.Encoder) { e.Int64(l.TicketTypeID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
					e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
					e.Field("unit_price", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
				})
			}
		})
	})
}

func encodeResult(e *jx.Encoder, res *checkout.Result) {
	e.Obj(func(e *jx.Encoder) {
		encodeResultFields(e, res)
	})
}

func encodeResultFields(e *jx.Encoder, res *checkout.Result) {
	encodeOrderFields(e, res.Order)
	if res.Order.PaymentReference != "" {
		e.Field("payment_reference", func(e *jx.Encoder) { e.Str(res.Order.PaymentReference) })
	}
	e.Field("tickets", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, t := range res.Tickets {
				e.Obj(func(e *jx.Encoder) {
					e.Field("code", func(e *jx.Encoder) { e.Str(t.Code) })
					e.Field("ticket_type_id", func(e *jx.Encoder) { e.Int64(t.TicketTypeID) })
					e.Field("name", func(e *jx.Encoder) { e.Str(t.Name) })
				})
			}
		})
	})
	e.Field("shared_code", func(e *jx.Encoder) {
		sc := res.SharedCode
		if sc == nil {
			e.Null()
			return
		}
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Str(sc.Code) })
			e.Field("max_uses", func(e *jx.Encoder) { e.Int(sc.MaxUses) })
			e.Field("expires_at", func(e *jx.Encoder) { encodeTimePtr(e, sc.ExpiresAt) })
		})
	})
}

func encodeDiscountCode(e *jx.Encoder, c *promo.DiscountCode) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		e.Field("event_id", func(e *jx.Encoder) { e.Int64(c.EventID) })
		e.Field("ticket_type_id", func(e *jx.Encoder) { encodeInt64Ptr(e, c.TicketTypeID) })
		e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, c.Amount) })
		e.Field("max_uses", func(e *jx.Encoder) { e.Int(c.MaxUses) })
		e.Field("uses", func(e *jx.Encoder) { e.Int(c.Uses) })
		e.Field("valid_from", func(e *jx.Encoder) { encodeTimePtr(e, c.ValidFrom) })
		e.Field("valid_to", func(e *jx.Encoder) { encodeTimePtr(e, c.ValidTo) })
		e.Field("active", func(e *jx.Encoder) { e.Bool(c.Active) })
	})
}

func encodeTicket(e *jx.Encoder, t *ticket.Ticket) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(t.Code) })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(t.OrderID) })
		e.Field("event_id", func(e *jx.Encoder) { e.Int64(t.EventID) })
		e.Field("ticket_type_id", func(e *jx.Encoder) { e.Int64(t.TicketTypeID) })
		e.Field("type_name", func(e *jx.Encoder) { e.Str(t.TypeName) })
		e.Field("buyer_email", func(e *jx.Encoder) { e.Str(t.BuyerEmail) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(t.Status)) })
		e.Field("used_at", func(e *jx.Encoder) { encodeTimePtr(e, t.UsedAt) })
	})
}
