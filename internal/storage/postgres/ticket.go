package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/eventpass/internal/domain/ticket"
)

const (
	lockTicketSQL = `SELECT id, code::text, order_id::text, account_id, event_id, ticket_type_id,
		type_name, buyer_email, status, used_at, replaced_by
		FROM tickets WHERE code = $1 FOR UPDATE`

	getAccessPointSQL = `SELECT id, account_id, event_id, name FROM access_points WHERE id = $1`

	markTicketUsedSQL = `UPDATE tickets SET status = 'used', used_at = $2 WHERE id = $1`

	logValidationSQL = `INSERT INTO validation_logs
		(ticket_id, account_id, access_point_id, scanned_code, result, note, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	issueTicketSQL = `INSERT INTO tickets
		(code, order_id, account_id, event_id, ticket_type_id, type_name, buyer_email, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	voidTicketSQL = `UPDATE tickets SET status = 'void', replaced_by = $2 WHERE id = $1`

	logTicketActionSQL = `INSERT INTO ticket_action_logs (ticket_id, action, actor, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var (
	_ ticket.Store = (*TicketStore)(nil)
	_ ticket.Tx    = ticketTx{}
)

// TicketStore implements ticket.Store.
type TicketStore struct {
	db *DB
}

// NewTicketStore returns a TicketStore over d.
func NewTicketStore(d *DB) *TicketStore {
	return &TicketStore{db: d}
}

func (s *TicketStore) WithTx(ctx context.Context, fn func(tx ticket.Tx) error) error {
	return s.db.withTx(ctx, func(tx pgx.Tx) error {
		return fn(ticketTx{tx: tx})
	})
}

type ticketTx struct {
	tx pgx.Tx
}

func (t ticketTx) LockTicket(ctx context.Context, code string) (*ticket.Ticket, error) {
	var (
		tk     ticket.Ticket
		status string
	)
	err := t.tx.QueryRow(ctx, lockTicketSQL, code).Scan(
		&tk.ID, &tk.Code, &tk.OrderID, &tk.AccountID, &tk.EventID, &tk.TicketTypeID,
		&tk.TypeName, &tk.BuyerEmail, &status, &tk.UsedAt, &tk.ReplacedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("locking ticket: %w", mapError(err))
	}
	tk.Status = ticket.Status(status)
	return &tk, nil
}

func (t ticketTx) GetAccessPoint(ctx context.Context, id int64) (*ticket.AccessPoint, error) {
	var ap ticket.AccessPoint
	err := t.tx.QueryRow(ctx, getAccessPointSQL, id).Scan(&ap.ID, &ap.AccountID, &ap.EventID, &ap.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("getting access point %d: %w", id, err)
	}
	return &ap, nil
}

func (t ticketTx) MarkUsed(ctx context.Context, id int64, at time.Time) error {
	if _, err := t.tx.Exec(ctx, markTicketUsedSQL, id, at); err != nil {
		return fmt.Errorf("marking ticket %d used: %w", id, mapError(err))
	}
	return nil
}

func (t ticketTx) LogValidation(ctx context.Context, e ticket.LogEntry) error {
	_, err := t.tx.Exec(ctx, logValidationSQL,
		e.TicketID, e.AccountID, e.AccessPointID, e.ScannedCode, string(e.Result),
		e.Note, e.IP, e.UserAgent, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("logging validation: %w", err)
	}
	return nil
}

func (t ticketTx) Issue(ctx context.Context, tk *ticket.Ticket) error {
	err := t.tx.QueryRow(ctx, issueTicketSQL,
		tk.Code, tk.OrderID, tk.AccountID, tk.EventID, tk.TicketTypeID, tk.TypeName, tk.BuyerEmail, string(tk.Status),
	).Scan(&tk.ID)
	if err != nil {
		return fmt.Errorf("issuing ticket: %w", mapError(err))
	}
	return nil
}

func (t ticketTx) Void(ctx context.Context, id int64, replacedBy *int64) error {
	if _, err := t.tx.Exec(ctx, voidTicketSQL, id, replacedBy); err != nil {
		return fmt.Errorf("voiding ticket %d: %w", id, mapError(err))
	}
	return nil
}

func (t ticketTx) LogAction(ctx context.Context, a ticket.ActionLog) error {
	if _, err := t.tx.Exec(ctx, logTicketActionSQL, a.TicketID, a.Action, a.Actor, a.Detail, a.CreatedAt); err != nil {
		return fmt.Errorf("logging ticket action: %w", err)
	}
	return nil
}
