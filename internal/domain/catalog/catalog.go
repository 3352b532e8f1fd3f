package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrEventNotFound is returned when an event does not exist or is inactive.
var ErrEventNotFound = errors.New("event not found")

// Event is a ticketed event owned by one account.
type Event struct {
	ID        int64
	AccountID int64
	Slug      string
	Name      string
	StartsAt  *time.Time
	Active    bool
}

// TicketType is a purchasable ticket of an event. Exempt types (parking
// add-ons) do not count as group tickets.
type TicketType struct {
	ID        int64
	EventID   int64
	AccountID int64
	Name      string
	Price     decimal.Decimal
	Exempt    bool
	Active    bool
}

// Repository defines read operations for events and ticket types.
type Repository interface {
	GetEvent(ctx context.Context, id int64) (*Event, error)
	ListTicketTypes(ctx context.Context, eventID int64) ([]TicketType, error)
	GetTicketTypes(ctx context.Context, eventID int64, ids []int64) ([]TicketType, error)
}
