package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/eventpass/internal/domain/promo"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusDeclined Status = "declined"
	StatusRepriced Status = "repriced"
	StatusFailed   Status = "failed"
)

// PaymentMethod records how an order was settled.
type PaymentMethod string

const (
	PaymentWebpay    PaymentMethod = "webpay"
	PaymentBoxOffice PaymentMethod = "box_office"
	PaymentFree      PaymentMethod = "free"
)

// Line is a priced snapshot of one ticket type in an order.
type Line struct {
	TicketTypeID int64           `json:"ticket_type_id"`
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Exempt       bool            `json:"exempt"`
}

// Order is a checkout attempt and, once paid, a purchase.
type Order struct {
	ID               string
	AccountID        int64
	EventID          int64
	BuyerEmail       string
	Status           Status
	PaymentMethod    PaymentMethod
	Lines            []Line
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
	Code             string
	DiscountKind     promo.Kind
	PaymentToken     string
	PaymentReference string
	FailureReason    string
	SharedCode       string
	CreatedAt        time.Time
	PaidAt           *time.Time
}

// Scope returns the account and event the order belongs to.
func (o *Order) Scope() promo.Scope {
	return promo.Scope{AccountID: o.AccountID, EventID: o.EventID}
}

// Cart converts the order lines to the cart promotions are evaluated on.
func (o *Order) Cart() promo.Cart {
	cart := make(promo.Cart, len(o.Lines))
	for i, l := range o.Lines {
		cart[i] = promo.CartItem{
			TicketTypeID: l.TicketTypeID,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			Exempt:       l.Exempt,
		}
	}
	return cart
}

// Ticket is an admission issued for an order.
type Ticket struct {
	Code         string
	OrderID      string
	TicketTypeID int64
	Name         string
}

// Store persists orders outside of the finalizing transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	FindByToken(ctx context.Context, token string) (*Order, error)
	AttachPayment(ctx context.Context, orderID, token string) error
	MarkFailed(ctx context.Context, orderID string, status Status, reason string) error
}

// Tx is bound to one database transaction. Promotion counter updates made
// through it commit or roll back together with the order.
type Tx interface {
	promo.TxStore
	CreateOrder(ctx context.Context, o *Order) error
	LockOrder(ctx context.Context, id string) (*Order, error)
	CreateTickets(ctx context.Context, o *Order) ([]Ticket, error)
	FinalizeOrder(ctx context.Context, o *Order) error
}

// AuthorizeRequest asks the gateway to start a payment.
type AuthorizeRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	ReturnURL string
}

// Authorization is the gateway's handle for a started payment.
type Authorization struct {
	Token       string
	RedirectURL string
}

// Confirmation is the gateway's final word on a payment.
type Confirmation struct {
	Authorized bool
	Amount     decimal.Decimal
	Reference  string
}

// Gateway is the payment provider boundary.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Confirm(ctx context.Context, token string) (*Confirmation, error)
}

// Redeemer is the promotion coordinator as seen by checkout.
type Redeemer interface {
	Preview(ctx context.Context, scope promo.Scope, code string, cart promo.Cart) (promo.Quote, error)
	Commit(ctx context.Context, tx promo.TxStore, scope promo.Scope, code, orderID string, cart promo.Cart) (promo.Redemption, error)
	MintSharedCode(ctx context.Context, tx promo.TxStore, req promo.MintRequest) (*promo.SharedCode, error)
}
