// Package promo implements discount-code and shared-purchase-code redemption:
// pure evaluation and allocation rules plus the transactional coordinator that
// is the only writer of usage counters.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind identifies which promotion produced a discount.
type Kind string

const (
	KindNone   Kind = ""
	KindFixed  Kind = "fixed"
	KindShared Kind = "shared"
)

// Scope pins every lookup to one tenant account and one event.
type Scope struct {
	AccountID int64
	EventID   int64
}

// DiscountCode is a fixed-amount code owned by one account and one event.
type DiscountCode struct {
	ID           int64
	AccountID    int64
	EventID      int64
	Code         string
	TicketTypeID *int64
	Amount       decimal.Decimal
	MaxUses      int
	Uses         int
	ValidFrom    *time.Time
	ValidTo      *time.Time
	Active       bool
	CreatedAt    time.Time
}

// SharedCode is the courtesy code minted after a multi-ticket purchase.
type SharedCode struct {
	ID        int64
	Code      string
	OrderID   string
	AccountID int64
	EventID   int64
	MaxUses   int
	UsedCount int
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Remaining returns the number of uses left, never negative.
func (c *SharedCode) Remaining() int {
	return max(0, c.MaxUses-c.UsedCount)
}

// CartItem is one priced line of a checkout attempt.
type CartItem struct {
	TicketTypeID int64
	Quantity     int
	UnitPrice    decimal.Decimal
	Exempt       bool
}

// Cart is the list of priced lines a promotion is evaluated against.
type Cart []CartItem

// Subtotal sums unit price times quantity across all lines.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

// NonExemptUnits counts ticket units that are not exempt add-ons.
func (c Cart) NonExemptUnits() int {
	var n int
	for _, it := range c {
		if !it.Exempt && it.Quantity > 0 {
			n += it.Quantity
		}
	}
	return n
}

func (c Cart) hasTicketType(id int64) bool {
	for _, it := range c {
		if it.TicketTypeID == id && it.Quantity > 0 {
			return true
		}
	}
	return false
}

// Quote is the read-only answer to a preview.
type Quote struct {
	OK      bool
	Kind    Kind
	Amount  decimal.Decimal
	Reason  Reason
	Message string
}

// Redemption reports the effect of a commit.
type Redemption struct {
	Applied      bool
	Kind         Kind
	CodeID       int64
	Code         string
	Amount       decimal.Decimal
	ConsumedUses int
	Reason       Reason
}

// RedemptionRecord is the audit row written next to a counter update.
type RedemptionRecord struct {
	Kind         Kind
	CodeID       int64
	OrderID      string
	Amount       decimal.Decimal
	ConsumedUses int
	CreatedAt    time.Time
}

// ErrNotFound is returned by stores when no code matches the scope.
var ErrNotFound = errors.New("promotion code not found")

// ErrLockTimeout marks a lock wait that was abandoned by the database.
var ErrLockTimeout = errors.New("promotion lock wait timeout")

// StorageError reports a failed store operation. The surrounding checkout
// must abort; retrying the whole checkout is safe.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "promotion store: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageFailure reports whether err aborts a checkout attempt.
func IsStorageFailure(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Reader provides lock-free lookups for previews.
type Reader interface {
	FindDiscountCode(ctx context.Context, scope Scope, code string) (*DiscountCode, error)
	FindSharedCode(ctx context.Context, scope Scope, code string) (*SharedCode, error)
}

// TxStore is bound to an open transaction. Lock methods take an exclusive
// row lock held until that transaction ends.
type TxStore interface {
	LockDiscountCode(ctx context.Context, scope Scope, code string) (*DiscountCode, error)
	LockSharedCode(ctx context.Context, scope Scope, code string) (*SharedCode, error)
	IncrementDiscountUses(ctx context.Context, id int64) error
	ConsumeSharedUses(ctx context.Context, id int64, n int) error
	RecordRedemption(ctx context.Context, rec RedemptionRecord) error
	CreateSharedCode(ctx context.Context, c *SharedCode) error
}
