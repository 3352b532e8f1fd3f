package promo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrDuplicateCode is returned when a code already exists for the account.
var ErrDuplicateCode = errors.New("discount code already exists")

// InvalidCodeError describes a rejected administrative edit.
type InvalidCodeError struct {
	Field  string
	Reason string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid discount code %s: %s", e.Field, e.Reason)
}

// AdminStore persists administrative changes to discount codes.
type AdminStore interface {
	CreateDiscountCode(ctx context.Context, c *DiscountCode) error
	ListDiscountCodes(ctx context.Context, scope Scope) ([]DiscountCode, error)
	SetDiscountCodeActive(ctx context.Context, scope Scope, id int64, active bool) error
	TicketTypeInEvent(ctx context.Context, scope Scope, ticketTypeID int64) (bool, error)
}

// NewDiscountCode is the input for creating a discount code.
type NewDiscountCode struct {
	Code         string
	TicketTypeID *int64
	Amount       decimal.Decimal
	MaxUses      int
	ValidFrom    *time.Time
	ValidTo      *time.Time
	Active       bool
}

// Admin manages discount codes on behalf of an account. It never touches
// usage counters.
type Admin struct {
	store AdminStore
	now   func() time.Time
}

// NewAdmin creates an Admin backed by store.
func NewAdmin(store AdminStore) *Admin {
	return &Admin{store: store, now: time.Now}
}

// CreateDiscountCode validates and stores a new code for scope.
func (a *Admin) CreateDiscountCode(ctx context.Context, scope Scope, in NewDiscountCode) (*DiscountCode, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, &InvalidCodeError{Field: "code", Reason: "must not be empty"}
	}
	dc, err := a.Template(ctx, scope, in)
	if err != nil {
		return nil, err
	}
	dc.Code = code

	if err := a.store.CreateDiscountCode(ctx, &dc); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create discount code")
	}
	return &dc, nil
}

// Template validates everything in `in` except the code text and returns the
// discount code it describes with Code left empty. Bulk imports stamp one
// template with many codes.
func (a *Admin) Template(ctx context.Context, scope Scope, in NewDiscountCode) (DiscountCode, error) {
	switch {
	case !in.Amount.IsPositive() || !in.Amount.IsInteger():
		return DiscountCode{}, &InvalidCodeError{Field: "amount", Reason: "must be a positive whole amount"}
	case in.MaxUses < 1:
		return DiscountCode{}, &InvalidCodeError{Field: "max_uses", Reason: "must be at least 1"}
	case in.ValidFrom != nil && in.ValidTo != nil && dateOf(*in.ValidTo).Before(dateOf(*in.ValidFrom)):
		return DiscountCode{}, &InvalidCodeError{Field: "valid_to", Reason: "must not be before valid_from"}
	}

	if in.TicketTypeID != nil {
		ok, err := a.store.TicketTypeInEvent(ctx, scope, *in.TicketTypeID)
		if err != nil {
			return DiscountCode{}, errors.Wrap(err, "check ticket type")
		}
		if !ok {
			return DiscountCode{}, &InvalidCodeError{Field: "ticket_type_id", Reason: "does not belong to the event"}
		}
	}

	return DiscountCode{
		AccountID:    scope.AccountID,
		EventID:      scope.EventID,
		TicketTypeID: in.TicketTypeID,
		Amount:       in.Amount,
		MaxUses:      in.MaxUses,
		ValidFrom:    in.ValidFrom,
		ValidTo:      in.ValidTo,
		Active:       in.Active,
		CreatedAt:    a.now(),
	}, nil
}

// ListDiscountCodes returns the codes of one event.
func (a *Admin) ListDiscountCodes(ctx context.Context, scope Scope) ([]DiscountCode, error) {
	codes, err := a.store.ListDiscountCodes(ctx, scope)
	if err != nil {
		return nil, errors.Wrap(err, "list discount codes")
	}
	return codes, nil
}

// SetActive enables or disables a code. Codes outside scope are not found.
func (a *Admin) SetActive(ctx context.Context, scope Scope, id int64, active bool) error {
	if err := a.store.SetDiscountCodeActive(ctx, scope, id, active); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "set discount code active")
	}
	return nil
}
