package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/eventpass/internal/domain/checkout"
	"github.com/xenking/eventpass/internal/domain/promo"
)

const (
	orderColumns = `id::text, account_id, event_id, buyer_email, status, payment_method, lines,
		subtotal, discount, total, code, discount_kind, coalesce(payment_token, ''),
		payment_reference, failure_reason, shared_code, created_at, paid_at`

	createOrderSQL = `INSERT INTO orders (id, account_id, event_id, buyer_email, status, payment_method,
		lines, subtotal, discount, total, code, discount_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	findOrderByTokenSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_token = $1`

	lockOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	attachPaymentSQL = `UPDATE orders SET payment_token = $2 WHERE id = $1 AND status = 'pending'`

	markOrderFailedSQL = `UPDATE orders SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = 'pending'`

	finalizeOrderSQL = `UPDATE orders
		SET status = $2, payment_method = $3, discount = $4, total = $5, code = $6,
			discount_kind = $7, payment_reference = $8, shared_code = $9, paid_at = $10
		WHERE id = $1`

	createTicketSQL = `INSERT INTO tickets (code, order_id, account_id, event_id, ticket_type_id, type_name, buyer_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

var (
	_ checkout.Store = (*OrderStore)(nil)
	_ checkout.Tx    = orderTx{}
)

// OrderStore implements checkout.Store. Its transactions also carry the
// promotion counters, so a failed checkout reverts both.
type OrderStore struct {
	db *DB
}

// NewOrderStore returns an OrderStore over d.
func NewOrderStore(d *DB) *OrderStore {
	return &OrderStore{db: d}
}

// WithTx runs fn in one transaction with a bounded lock wait.
func (s *OrderStore) WithTx(ctx context.Context, fn func(tx checkout.Tx) error) error {
	return s.db.withTx(ctx, func(tx pgx.Tx) error {
		return fn(orderTx{promoTx: promoTx{tx: tx}})
	})
}

// FindByToken returns the order waiting on a gateway token.
func (s *OrderStore) FindByToken(ctx context.Context, token string) (*checkout.Order, error) {
	o, err := queryOrder(ctx, s.db.pool, findOrderByTokenSQL, token)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// AttachPayment stores the gateway token on a pending order.
func (s *OrderStore) AttachPayment(ctx context.Context, orderID, token string) error {
	tag, err := s.db.pool.Exec(ctx, attachPaymentSQL, orderID, token)
	if err != nil {
		return fmt.Errorf("attaching payment to order %q: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrOrderNotPending
	}
	return nil
}

// MarkFailed moves a pending order to a terminal failure status. Orders
// that already left pending are left untouched.
func (s *OrderStore) MarkFailed(ctx context.Context, orderID string, status checkout.Status, reason string) error {
	if _, err := s.db.pool.Exec(ctx, markOrderFailedSQL, orderID, string(status), reason); err != nil {
		return fmt.Errorf("marking order %q %s: %w", orderID, status, err)
	}
	return nil
}

// orderTx implements checkout.Tx.
type orderTx struct {
	promoTx
}

func (t orderTx) CreateOrder(ctx context.Context, o *checkout.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}

	_, err = t.tx.Exec(ctx, createOrderSQL,
		o.ID, o.AccountID, o.EventID, o.BuyerEmail, string(o.Status), string(o.PaymentMethod),
		linesJSON, o.Subtotal, o.Discount, o.Total, o.Code, string(o.DiscountKind), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, mapError(err))
	}
	return nil
}

func (t orderTx) LockOrder(ctx context.Context, id string) (*checkout.Order, error) {
	o, err := queryOrder(ctx, t.tx, lockOrderSQL, id)
	return o, mapError(err)
}

// CreateTickets issues one ticket per unit across all lines with a fresh
// UUID code.
func (t orderTx) CreateTickets(ctx context.Context, o *checkout.Order) ([]checkout.Ticket, error) {
	batch := &pgx.Batch{}
	var tickets []checkout.Ticket
	for _, l := range o.Lines {
		for range l.Quantity {
			tk := checkout.Ticket{
				Code:         uuid.New().String(),
				OrderID:      o.ID,
				TicketTypeID: l.TicketTypeID,
				Name:         l.Name,
			}
			batch.Queue(createTicketSQL, tk.Code, o.ID, o.AccountID, o.EventID, l.TicketTypeID, l.Name, o.BuyerEmail)
			tickets = append(tickets, tk)
		}
	}

	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("creating tickets for order %q: %w", o.ID, mapError(err))
	}
	return tickets, nil
}

func (t orderTx) FinalizeOrder(ctx context.Context, o *checkout.Order) error {
	tag, err := t.tx.Exec(ctx, finalizeOrderSQL,
		o.ID, string(o.Status), string(o.PaymentMethod), o.Discount, o.Total, o.Code,
		string(o.DiscountKind), o.PaymentReference, o.SharedCode, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("finalizing order %q: %w", o.ID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return checkout.ErrOrderNotFound
	}
	return nil
}

func queryOrder(ctx context.Context, q querier, sql string, arg any) (*checkout.Order, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (checkout.Order, error) {
	var (
		o             checkout.Order
		status        string
		paymentMethod string
		discountKind  string
		linesJSON     []byte
	)
	err := row.Scan(
		&o.ID, &o.AccountID, &o.EventID, &o.BuyerEmail, &status, &paymentMethod, &linesJSON,
		&o.Subtotal, &o.Discount, &o.Total, &o.Code, &discountKind, &o.PaymentToken,
		&o.PaymentReference, &o.FailureReason, &o.SharedCode, &o.CreatedAt, &o.PaidAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = checkout.Status(status)
	o.PaymentMethod = checkout.PaymentMethod(paymentMethod)
	o.DiscountKind = promo.Kind(discountKind)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling order lines: %w", err)
	}
	return o, nil
}
