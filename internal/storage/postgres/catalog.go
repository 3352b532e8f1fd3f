package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/eventpass/internal/domain/catalog"
)

const (
	getEventSQL = `SELECT id, account_id, slug, name, starts_at, active
		FROM events WHERE id = $1 AND active = TRUE`

	ticketTypeColumns = `id, event_id, account_id, name, price, exempt, active`

	listTicketTypesSQL = `SELECT ` + ticketTypeColumns + `
		FROM ticket_types WHERE event_id = $1 AND active = TRUE ORDER BY price DESC, id`

	getTicketTypesSQL = `SELECT ` + ticketTypeColumns + `
		FROM ticket_types WHERE event_id = $1 AND id = ANY($2)`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	q querier
}

// NewCatalogRepository returns a CatalogRepository reading from d's pool.
func NewCatalogRepository(d *DB) *CatalogRepository {
	return &CatalogRepository{q: d.pool}
}

// GetEvent returns an active event by ID.
func (r *CatalogRepository) GetEvent(ctx context.Context, id int64) (*catalog.Event, error) {
	var e catalog.Event
	err := r.q.QueryRow(ctx, getEventSQL, id).Scan(
		&e.ID, &e.AccountID, &e.Slug, &e.Name, &e.StartsAt, &e.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrEventNotFound
		}
		return nil, fmt.Errorf("getting event %d: %w", id, err)
	}
	return &e, nil
}

// ListTicketTypes returns the active ticket types of an event, most
// expensive first.
func (r *CatalogRepository) ListTicketTypes(ctx context.Context, eventID int64) ([]catalog.TicketType, error) {
	rows, err := r.q.Query(ctx, listTicketTypesSQL, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing ticket types of event %d: %w", eventID, err)
	}
	return pgx.CollectRows(rows, scanTicketType)
}

// GetTicketTypes returns the ticket types of an event matching ids, active
// or not. Callers decide what an inactive type means.
func (r *CatalogRepository) GetTicketTypes(ctx context.Context, eventID int64, ids []int64) ([]catalog.TicketType, error) {
	rows, err := r.q.Query(ctx, getTicketTypesSQL, eventID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting ticket types of event %d: %w", eventID, err)
	}
	return pgx.CollectRows(rows, scanTicketType)
}

func scanTicketType(row pgx.CollectableRow) (catalog.TicketType, error) {
	var t catalog.TicketType
	err := row.Scan(&t.ID, &t.EventID, &t.AccountID, &t.Name, &t.Price, &t.Exempt, &t.Active)
	return t, err
}
