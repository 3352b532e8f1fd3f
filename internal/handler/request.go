package handler

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/xenking/eventpass/internal/domain/checkout"
)

type lineRequest struct {
	TicketTypeID int64 `json:"ticket_type_id" validate:"gt=0"`
	Quantity     int   `json:"quantity" validate:"gt=0"`
}

func decodeLines(d *jx.Decoder) ([]lineRequest, error) {
	var lines []lineRequest
	err := d.Arr(func(d *jx.Decoder) error {
		var l lineRequest
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "ticket_type_id":
				l.TicketTypeID, err = d.Int64()
			case "quantity":
				l.Quantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

func toLineRequests(lines []lineRequest) []checkout.LineRequest {
	out := make([]checkout.LineRequest, len(lines))
	for i, l := range lines {
		out[i] = checkout.LineRequest{TicketTypeID: l.TicketTypeID, Quantity: l.Quantity}
	}
	return out
}

type previewRequest struct {
	Code  string        `json:"code" validate:"required,max=64"`
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func (p *previewRequest) field(d *jx.Decoder, key string) (err error) {
	switch key {
	case "code":
		p.Code, err = d.Str()
	case "items":
		p.Items, err = decodeLines(d)
	default:
		err = d.Skip()
	}
	return err
}

type orderRequest struct {
	Email string        `json:"email" validate:"required,email,max=254"`
	Items []lineRequest `json:"items" validate:"required,min=1,dive"`
	Code  string        `json:"code" validate:"max=64"`
}

func (o *orderRequest) field(d *jx.Decoder, key string) (err error) {
	switch key {
	case "email":
		o.Email, err = d.Str()
	case "items":
		o.Items, err = decodeLines(d)
	case "code":
		if d.Next() == jx.Null {
			return d.Null()
		}
		o.Code, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

type createCodeRequest struct {
	Code         string          `json:"code" validate:"required,max=64"`
	TicketTypeID *int64          `json:"ticket_type_id" validate:"omitempty,gt=0"`
	Amount       decimal.Decimal `json:"amount"`
	MaxUses      int             `json:"max_uses" validate:"gte=1"`
	ValidFrom    *time.Time      `json:"valid_from"`
	ValidTo      *time.Time      `json:"valid_to"`
	Active       *bool           `json:"active"`
}

func (c *createCodeRequest) field(d *jx.Decoder, key string) (err error) {
	switch key {
	case "code":
		c.Code, err = d.Str()
	case "ticket_type_id":
		c.TicketTypeID, err = decodeInt64Ptr(d)
	case "amount":
		c.Amount, err = decodeMoney(d)
	case "max_uses":
		c.MaxUses, err = d.Int()
	case "valid_from":
		c.ValidFrom, err = decodeTimePtr(d)
	case "valid_to":
		c.ValidTo, err = decodeTimePtr(d)
	case "active":
		var v bool
		v, err = d.Bool()
		c.Active = &v
	default:
		err = d.Skip()
	}
	return err
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (s *setActiveRequest) field(d *jx.Decoder, key string) error {
	if key != "active" {
		return d.Skip()
	}
	v, err := d.Bool()
	s.Active = &v
	return err
}

type validateRequest struct {
	AccessPointID *int64 `json:"access_point_id" validate:"omitempty,gt=0"`
	Note          string `json:"note" validate:"max=500"`
}

func (v *validateRequest) field(d *jx.Decoder, key string) (err error) {
	switch key {
	case "access_point_id":
		v.AccessPointID, err = decodeInt64Ptr(d)
	case "note":
		v.Note, err = d.Str()
	default:
		err = d.Skip()
	}
	return err
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (c *cancelRequest) field(d *jx.Decoder, key string) (err error) {
	if key != "reason" {
		return d.Skip()
	}
	c.Reason, err = d.Str()
	return err
}

// check runs struct validation and turns the first few failures into a
// client-facing message.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return badRequest("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.SplitN(fe.Namespace(), ".", 2)
	name := fe.Field()
	if len(field) == 2 {
		name = field[1]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email", name)
	case "min", "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", name, minOf(fe))
	case "max":
		return fmt.Sprintf("%s is too long", name)
	default:
		return fmt.Sprintf("%s is invalid", name)
	}
}

func minOf(fe validator.FieldError) string {
	if fe.Tag() == "gt" {
		// gt=0 on integers.
		return "1"
	}
	return fe.Param()
}
