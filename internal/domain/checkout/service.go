package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/domain/catalog"
	"github.com/xenking/eventpass/internal/domain/promo"
)

// Config holds per-order purchase limits.
type Config struct {
	// MaxQuantity bounds every line.
	MaxQuantity int
	// MaxExemptQuantity bounds the exempt units of a whole order.
	MaxExemptQuantity int
}

// LineRequest is one requested ticket type and quantity. Prices always come
// from the catalog.
type LineRequest struct {
	TicketTypeID int64
	Quantity     int
}

// StartRequest begins an online checkout.
type StartRequest struct {
	Scope      promo.Scope
	BuyerEmail string
	Lines      []LineRequest
	Code       string
	ReturnURL  string
}

// StartResult carries the redirect to the gateway. Orders with nothing to pay
// are finalized right away and Completed is set instead.
type StartResult struct {
	Order       *Order
	RedirectURL string
	Token       string
	Completed   *Result
}

// BoxOfficeRequest is a staff sale settled outside the gateway.
type BoxOfficeRequest struct {
	Scope      promo.Scope
	BuyerEmail string
	Lines      []LineRequest
	Code       string
}

// Result is a finalized order.
type Result struct {
	Order      *Order
	Tickets    []Ticket
	Redemption promo.Redemption
	SharedCode *promo.SharedCode
}

// Service sequences order creation, promotion redemption and payment.
type Service struct {
	catalog  catalog.Repository
	redeemer Redeemer
	store    Store
	gateway  Gateway
	cfg      Config
	now      func() time.Time
	newID    func() string
}

// NewService creates a checkout Service.
func NewService(
	catalog catalog.Repository,
	redeemer Redeemer,
	store Store,
	gateway Gateway,
	cfg Config,
) *Service {
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 10
	}
	if cfg.MaxExemptQuantity <= 0 {
		cfg.MaxExemptQuantity = 1
	}
	return &Service{
		catalog:  catalog,
		redeemer: redeemer,
		store:    store,
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Quote prices the requested lines and previews code against them without
// creating anything.
func (s *Service) Quote(ctx context.Context, scope promo.Scope, lines []LineRequest, code string) (promo.Quote, promo.Cart, error) {
	priced, err := s.priceLines(ctx, scope, lines)
	if err != nil {
		return promo.Quote{}, nil, err
	}
	cart := cartOf(priced)
	q, err := s.redeemer.Preview(ctx, scope, code, cart)
	if err != nil {
		return promo.Quote{}, nil, errors.Wrap(err, "preview code")
	}
	return q, cart, nil
}

// Start prices the cart, quotes the code, stores a pending order and asks the
// gateway to authorize the total. A rejected code blocks the checkout with a
// *promo.Rejection so the buyer can correct it before paying.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	o, err := s.newOrder(ctx, req.Scope, req.BuyerEmail, req.Lines, req.Code)
	if err != nil {
		return nil, err
	}

	if o.Code != "" {
		q, err := s.redeemer.Preview(ctx, req.Scope, o.Code, o.Cart())
		if err != nil {
			return nil, errors.Wrap(err, "preview code")
		}
		if !q.OK {
			return nil, &promo.Rejection{Reason: q.Reason}
		}
		o.Discount = q.Amount
		o.DiscountKind = q.Kind
	}
	o.Total = totalOf(o.Subtotal, o.Discount)

	if o.Total.IsZero() {
		o.PaymentMethod = PaymentFree
		res, err := s.settle(ctx, o, true)
		if err != nil {
			return nil, err
		}
		return &StartResult{Order: res.Order, Completed: res}, nil
	}

	if err := s.store.WithTx(ctx, func(tx Tx) error {
		return tx.CreateOrder(ctx, o)
	}); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	auth, err := s.gateway.Authorize(ctx, AuthorizeRequest{
		OrderID:   o.ID,
		Amount:    o.Total,
		ReturnURL: req.ReturnURL,
	})
	if err != nil {
		s.markFailed(ctx, o, StatusFailed, err)
		return nil, errors.Wrap(err, "authorize payment")
	}
	if err := s.store.AttachPayment(ctx, o.ID, auth.Token); err != nil {
		return nil, errors.Wrap(err, "attach payment")
	}
	o.PaymentToken = auth.Token

	return &StartResult{Order: o, RedirectURL: auth.RedirectURL, Token: auth.Token}, nil
}

// Complete finalizes the pending order behind a gateway token. Tickets, the
// promotion commit and the shared-code mint share one transaction that is
// kept only if the committed discount still matches the quote and the gateway
// confirms the exact total.
func (s *Service) Complete(ctx context.Context, token string) (*Result, error) {
	pending, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if pending.Status != StatusPending {
		return nil, ErrOrderNotPending
	}

	var res *Result
	err = s.store.WithTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, pending.ID)
		if err != nil {
			return errors.Wrap(err, "lock order")
		}
		if o.Status != StatusPending {
			return ErrOrderNotPending
		}

		tickets, red, err := s.redeem(ctx, tx, o)
		if err != nil {
			return err
		}
		if err := checkQuoted(o, red); err != nil {
			return err
		}

		conf, err := s.gateway.Confirm(ctx, token)
		if err != nil {
			return errors.Wrap(err, "confirm payment")
		}
		if !conf.Authorized {
			return ErrPaymentDeclined
		}
		if !conf.Amount.Equal(o.Total) {
			return &AmountMismatchError{Expected: o.Total, Got: conf.Amount}
		}
		o.PaymentReference = conf.Reference

		shared, err := s.finish(ctx, tx, o)
		if err != nil {
			return err
		}
		res = &Result{Order: o, Tickets: tickets, Redemption: red, SharedCode: shared}
		return nil
	})
	if err != nil {
		var (
			repriced *RepricedError
			mismatch *AmountMismatchError
		)
		switch {
		case errors.As(err, &repriced):
			s.markFailed(ctx, pending, StatusRepriced, err)
		case errors.Is(err, ErrPaymentDeclined), errors.As(err, &mismatch):
			s.markFailed(ctx, pending, StatusDeclined, err)
		}
		return nil, err
	}

	zctx.From(ctx).Info("Order paid",
		zap.String("order_id", res.Order.ID),
		zap.String("total", res.Order.Total.String()),
		zap.Int("tickets", len(res.Tickets)),
	)
	return res, nil
}

// Abort marks the pending order behind token failed after the buyer cancelled
// at the gateway. Pending orders hold no promotion capacity so nothing else
// needs releasing.
func (s *Service) Abort(ctx context.Context, token string) error {
	o, err := s.store.FindByToken(ctx, token)
	if err != nil {
		return err
	}
	if o.Status != StatusPending {
		return ErrOrderNotPending
	}
	if err := s.store.MarkFailed(ctx, o.ID, StatusFailed, "aborted"); err != nil {
		return errors.Wrap(err, "mark order aborted")
	}
	zctx.From(ctx).Info("Payment aborted by buyer", zap.String("order_id", o.ID))
	return nil
}

// PlaceBoxOffice sells tickets at the box office in a single transaction. A
// shared code that lost capacity meanwhile is applied to what is left.
func (s *Service) PlaceBoxOffice(ctx context.Context, req BoxOfficeRequest) (*Result, error) {
	o, err := s.newOrder(ctx, req.Scope, req.BuyerEmail, req.Lines, req.Code)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = PaymentBoxOffice
	return s.settle(ctx, o, false)
}

// settle creates and finalizes o in one transaction without the gateway. With
// strict set, the committed discount must equal the quoted one.
func (s *Service) settle(ctx context.Context, o *Order, strict bool) (*Result, error) {
	var res *Result
	err := s.store.WithTx(ctx, func(tx Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}

		tickets, red, err := s.redeem(ctx, tx, o)
		if err != nil {
			return err
		}
		if strict {
			if err := checkQuoted(o, red); err != nil {
				return err
			}
		} else if o.Code != "" {
			if !red.Applied {
				return &promo.Rejection{Reason: red.Reason}
			}
			o.Discount = red.Amount
			o.DiscountKind = red.Kind
			o.Total = totalOf(o.Subtotal, o.Discount)
		}

		shared, err := s.finish(ctx, tx, o)
		if err != nil {
			return err
		}
		res = &Result{Order: o, Tickets: tickets, Redemption: red, SharedCode: shared}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// redeem issues the tickets and commits the order's code exactly once.
func (s *Service) redeem(ctx context.Context, tx Tx, o *Order) ([]Ticket, promo.Redemption, error) {
	tickets, err := tx.CreateTickets(ctx, o)
	if err != nil {
		return nil, promo.Redemption{}, errors.Wrap(err, "create tickets")
	}
	if o.Code == "" {
		return tickets, promo.Redemption{}, nil
	}

	red, err := s.redeemer.Commit(ctx, tx, o.Scope(), o.Code, o.ID, o.Cart())
	if err != nil {
		return nil, promo.Redemption{}, errors.Wrap(err, "commit code")
	}
	return tickets, red, nil
}

// finish mints the group code and marks the order paid.
func (s *Service) finish(ctx context.Context, tx Tx, o *Order) (*promo.SharedCode, error) {
	shared, err := s.redeemer.MintSharedCode(ctx, tx, promo.MintRequest{
		Scope:   o.Scope(),
		OrderID: o.ID,
		Cart:    o.Cart(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "mint shared code")
	}
	if shared != nil {
		o.SharedCode = shared.Code
	}

	paidAt := s.now()
	o.Status = StatusPaid
	o.PaidAt = &paidAt
	if err := tx.FinalizeOrder(ctx, o); err != nil {
		return nil, errors.Wrap(err, "finalize order")
	}
	return shared, nil
}

func (s *Service) newOrder(ctx context.Context, scope promo.Scope, email string, lines []LineRequest, code string) (*Order, error) {
	priced, err := s.priceLines(ctx, scope, lines)
	if err != nil {
		return nil, err
	}
	o := &Order{
		ID:            s.newID(),
		AccountID:     scope.AccountID,
		EventID:       scope.EventID,
		BuyerEmail:    email,
		Status:        StatusPending,
		PaymentMethod: PaymentWebpay,
		Lines:         priced,
		Discount:      decimal.Zero,
		Code:          promo.NormalizeCode(code),
		CreatedAt:     s.now(),
	}
	o.Subtotal = cartOf(priced).Subtotal()
	o.Total = o.Subtotal
	return o, nil
}

// priceLines validates quantities and resolves prices from the catalog. Ticket
// types outside scope are reported as not found.
func (s *Service) priceLines(ctx context.Context, scope promo.Scope, lines []LineRequest) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || l.Quantity > s.cfg.MaxQuantity {
			return nil, &QuantityError{TicketTypeID: l.TicketTypeID, Quantity: l.Quantity, Max: s.cfg.MaxQuantity}
		}
		if _, dup := seen[l.TicketTypeID]; dup {
			return nil, ErrDuplicateTicketType
		}
		seen[l.TicketTypeID] = struct{}{}
		ids = append(ids, l.TicketTypeID)
	}

	types, err := s.catalog.GetTicketTypes(ctx, scope.EventID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get ticket types")
	}
	byID := make(map[int64]catalog.TicketType, len(types))
	for _, tt := range types {
		byID[tt.ID] = tt
	}

	priced := make([]Line, len(lines))
	exempt := 0
	for i, l := range lines {
		tt, ok := byID[l.TicketTypeID]
		if !ok || !tt.Active || tt.AccountID != scope.AccountID || tt.EventID != scope.EventID {
			return nil, &TicketTypeNotFoundError{TicketTypeID: l.TicketTypeID}
		}
		if tt.Exempt {
			exempt += l.Quantity
			if exempt > s.cfg.MaxExemptQuantity {
				return nil, &QuantityError{TicketTypeID: tt.ID, Quantity: l.Quantity, Max: s.cfg.MaxExemptQuantity}
			}
		}
		priced[i] = Line{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Quantity:     l.Quantity,
			UnitPrice:    tt.Price,
			Exempt:       tt.Exempt,
		}
	}
	return priced, nil
}

func (s *Service) markFailed(ctx context.Context, o *Order, status Status, cause error) {
	if err := s.store.MarkFailed(ctx, o.ID, status, cause.Error()); err != nil {
		zctx.From(ctx).Warn("Mark order failed",
			zap.String("order_id", o.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

func checkQuoted(o *Order, red promo.Redemption) error {
	if o.Code == "" {
		return nil
	}
	if !red.Applied || !red.Amount.Equal(o.Discount) {
		return &RepricedError{Quoted: o.Discount, Applied: red.Amount, Reason: red.Reason}
	}
	return nil
}

func cartOf(lines []Line) promo.Cart {
	o := Order{Lines: lines}
	return o.Cart()
}

func totalOf(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}
