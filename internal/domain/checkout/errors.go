package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/eventpass/internal/domain/promo"
)

// Sentinel errors for checkout.
var (
	ErrEmptyItems          = errors.New("items required")
	ErrDuplicateTicketType = errors.New("ticket type listed more than once")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrPaymentDeclined     = errors.New("payment declined")
)

// QuantityError reports a line quantity outside the allowed range.
type QuantityError struct {
	TicketTypeID int64
	Quantity     int
	Max          int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("quantity %d for ticket type %d must be between 1 and %d", e.Quantity, e.TicketTypeID, e.Max)
}

// TicketTypeNotFoundError reports a ticket type that is unknown, inactive or
// belongs to another event.
type TicketTypeNotFoundError struct {
	TicketTypeID int64
}

func (e *TicketTypeNotFoundError) Error() string {
	return fmt.Sprintf("ticket type %d not found", e.TicketTypeID)
}

// RepricedError means the committed discount differs from the quote the buyer
// was charged for. Nothing was charged; the buyer has to start again.
type RepricedError struct {
	Quoted  decimal.Decimal
	Applied decimal.Decimal
	Reason  promo.Reason
}

func (e *RepricedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("discount no longer available: %s", e.Reason)
	}
	return fmt.Sprintf("discount changed from %s to %s", e.Quoted, e.Applied)
}

// AmountMismatchError means the gateway confirmed a different amount than the
// order total.
type AmountMismatchError struct {
	Expected decimal.Decimal
	Got      decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount %s does not match order total %s", e.Got, e.Expected)
}
