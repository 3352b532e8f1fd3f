// Package ticket handles admission: scanning tickets at the door,
// cancelling them and reissuing lost ones.
package ticket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Status is the admission state of a ticket.
type Status string

const (
	StatusAvailable Status = "available"
	StatusUsed      Status = "used"
	StatusVoid      Status = "void"
)

// Result is the outcome recorded for every scan.
type Result string

const (
	ResultOK          Result = "OK"
	ResultAlreadyUsed Result = "ALREADY_USED"
	ResultNotFound    Result = "NOT_FOUND"
	ResultDenied      Result = "DENIED"
)

var (
	ErrNotFound      = errors.New("ticket not found")
	ErrNotReissuable = errors.New("ticket cannot be reissued")
)

// Ticket is a single admission.
type Ticket struct {
	ID           int64
	Code         string
	OrderID      string
	AccountID    int64
	EventID      int64
	TicketTypeID int64
	TypeName     string
	BuyerEmail   string
	Status       Status
	UsedAt       *time.Time
	ReplacedBy   *int64
}

// AccessPoint is a gate where tickets are scanned.
type AccessPoint struct {
	ID        int64
	AccountID int64
	EventID   int64
	Name      string
}

// LogEntry is one row of the validation log.
type LogEntry struct {
	TicketID      *int64
	AccountID     int64
	AccessPointID *int64
	ScannedCode   string
	Result        Result
	Note          string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// ActionLog records administrative actions on a ticket.
type ActionLog struct {
	TicketID  int64
	Action    string
	Actor     string
	Detail    string
	CreatedAt time.Time
}

// Store opens transactions over tickets.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is bound to one database transaction.
type Tx interface {
	LockTicket(ctx context.Context, code string) (*Ticket, error)
	GetAccessPoint(ctx context.Context, id int64) (*AccessPoint, error)
	MarkUsed(ctx context.Context, id int64, at time.Time) error
	LogValidation(ctx context.Context, e LogEntry) error
	Issue(ctx context.Context, t *Ticket) error
	// Void marks a ticket void. replacedBy is nil for a plain cancel.
	Void(ctx context.Context, id int64, replacedBy *int64) error
	LogAction(ctx context.Context, a ActionLog) error
}
