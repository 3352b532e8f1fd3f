package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/eventpass/internal/domain/promo"
)

const (
	discountCodeColumns = `id, account_id, event_id, code, ticket_type_id, amount, max_uses, uses,
		valid_from, valid_to, active, created_at`

	findDiscountCodeSQL = `SELECT ` + discountCodeColumns + `
		FROM discount_codes
		WHERE account_id = $1 AND event_id = $2 AND lower(code) = lower($3)`

	lockDiscountCodeSQL = findDiscountCodeSQL + ` FOR UPDATE`

	sharedCodeColumns = `id, code, order_id::text, account_id, event_id, max_uses, used_count,
		active, expires_at, created_at`

	findSharedCodeSQL = `SELECT ` + sharedCodeColumns + `
		FROM shared_codes
		WHERE account_id = $1 AND event_id = $2 AND lower(code) = lower($3)`

	lockSharedCodeSQL = findSharedCodeSQL + ` FOR UPDATE`

	incrementDiscountUsesSQL = `UPDATE discount_codes
		SET uses = uses + 1, updated_at = now()
		WHERE id = $1`

	consumeSharedUsesSQL = `UPDATE shared_codes
		SET used_count = used_count + $2
		WHERE id = $1`

	recordRedemptionSQL = `INSERT INTO redemptions (kind, code_id, order_id, amount, consumed_uses, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	createSharedCodeSQL = `INSERT INTO shared_codes
		(code, order_id, account_id, event_id, max_uses, used_count, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	createDiscountCodeSQL = `INSERT INTO discount_codes
		(account_id, event_id, code, ticket_type_id, amount, max_uses, valid_from, valid_to, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	importDiscountCodeSQL = `INSERT INTO discount_codes
		(account_id, event_id, code, ticket_type_id, amount, max_uses, valid_from, valid_to, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`

	listDiscountCodesSQL = `SELECT ` + discountCodeColumns + `
		FROM discount_codes
		WHERE account_id = $1 AND event_id = $2
		ORDER BY id`

	setDiscountCodeActiveSQL = `UPDATE discount_codes
		SET active = $4, updated_at = now()
		WHERE id = $3 AND account_id = $1 AND event_id = $2`

	ticketTypeInEventSQL = `SELECT EXISTS (
		SELECT 1 FROM ticket_types WHERE id = $3 AND account_id = $1 AND event_id = $2)`
)

var (
	_ promo.Reader     = (*PromoStore)(nil)
	_ promo.AdminStore = (*PromoStore)(nil)
	_ promo.TxStore    = promoTx{}
)

// PromoStore serves lock-free promotion lookups and admin edits.
type PromoStore struct {
	q querier
}

// NewPromoStore returns a PromoStore reading from d's pool.
func NewPromoStore(d *DB) *PromoStore {
	return &PromoStore{q: d.pool}
}

func (s *PromoStore) FindDiscountCode(ctx context.Context, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	return queryDiscountCode(ctx, s.q, findDiscountCodeSQL, scope, code)
}

func (s *PromoStore) FindSharedCode(ctx context.Context, scope promo.Scope, code string) (*promo.SharedCode, error) {
	return querySharedCode(ctx, s.q, findSharedCodeSQL, scope, code)
}

// CreateDiscountCode inserts c and sets its ID. A code that already exists
// for the account, ignoring case, yields promo.ErrDuplicateCode.
func (s *PromoStore) CreateDiscountCode(ctx context.Context, c *promo.DiscountCode) error {
	err := s.q.QueryRow(ctx, createDiscountCodeSQL,
		c.AccountID, c.EventID, c.Code, c.TicketTypeID, c.Amount, c.MaxUses,
		c.ValidFrom, c.ValidTo, c.Active, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		if isPgCode(err, codeUniqueViolation) {
			return promo.ErrDuplicateCode
		}
		return fmt.Errorf("creating discount code %q: %w", c.Code, err)
	}
	return nil
}

// InsertDiscountCodes batch-inserts codes and reports how many rows were
// written. Codes that already exist for the account are skipped.
func (s *PromoStore) InsertDiscountCodes(ctx context.Context, codes []promo.DiscountCode) (int64, error) {
	if len(codes) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for i := range codes {
		c := &codes[i]
		batch.Queue(importDiscountCodeSQL,
			c.AccountID, c.EventID, c.Code, c.TicketTypeID, c.Amount, c.MaxUses,
			c.ValidFrom, c.ValidTo, c.Active, c.CreatedAt,
		)
	}

	br := s.q.SendBatch(ctx, batch)
	var inserted int64
	for range codes {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return inserted, fmt.Errorf("importing discount codes: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return inserted, fmt.Errorf("importing discount codes: %w", err)
	}
	return inserted, nil
}

func (s *PromoStore) ListDiscountCodes(ctx context.Context, scope promo.Scope) ([]promo.DiscountCode, error) {
	rows, err := s.q.Query(ctx, listDiscountCodesSQL, scope.AccountID, scope.EventID)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, scanDiscountCode)
	if err != nil {
		return nil, fmt.Errorf("listing discount codes: %w", err)
	}
	return codes, nil
}

func (s *PromoStore) SetDiscountCodeActive(ctx context.Context, scope promo.Scope, id int64, active bool) error {
	tag, err := s.q.Exec(ctx, setDiscountCodeActiveSQL, scope.AccountID, scope.EventID, id, active)
	if err != nil {
		return fmt.Errorf("updating discount code %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

func (s *PromoStore) TicketTypeInEvent(ctx context.Context, scope promo.Scope, ticketTypeID int64) (bool, error) {
	var ok bool
	if err := s.q.QueryRow(ctx, ticketTypeInEventSQL, scope.AccountID, scope.EventID, ticketTypeID).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking ticket type %d: %w", ticketTypeID, err)
	}
	return ok, nil
}

// promoTx implements promo.TxStore on an open transaction.
type promoTx struct {
	tx pgx.Tx
}

func (t promoTx) LockDiscountCode(ctx context.Context, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	dc, err := queryDiscountCode(ctx, t.tx, lockDiscountCodeSQL, scope, code)
	return dc, mapError(err)
}

func (t promoTx) LockSharedCode(ctx context.Context, scope promo.Scope, code string) (*promo.SharedCode, error) {
	sc, err := querySharedCode(ctx, t.tx, lockSharedCodeSQL, scope, code)
	return sc, mapError(err)
}

func (t promoTx) IncrementDiscountUses(ctx context.Context, id int64) error {
	if _, err := t.tx.Exec(ctx, incrementDiscountUsesSQL, id); err != nil {
		return fmt.Errorf("incrementing uses for discount code %d: %w", id, mapError(err))
	}
	return nil
}

func (t promoTx) ConsumeSharedUses(ctx context.Context, id int64, n int) error {
	if _, err := t.tx.Exec(ctx, consumeSharedUsesSQL, id, n); err != nil {
		return fmt.Errorf("consuming %d uses of shared code %d: %w", n, id, mapError(err))
	}
	return nil
}

func (t promoTx) RecordRedemption(ctx context.Context, rec promo.RedemptionRecord) error {
	_, err := t.tx.Exec(ctx, recordRedemptionSQL,
		string(rec.Kind), rec.CodeID, rec.OrderID, rec.Amount, rec.ConsumedUses, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording redemption for order %q: %w", rec.OrderID, mapError(err))
	}
	return nil
}

func (t promoTx) CreateSharedCode(ctx context.Context, c *promo.SharedCode) error {
	err := t.tx.QueryRow(ctx, createSharedCodeSQL,
		c.Code, c.OrderID, c.AccountID, c.EventID, c.MaxUses, c.UsedCount, c.Active, c.ExpiresAt, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating shared code for order %q: %w", c.OrderID, mapError(err))
	}
	return nil
}

func queryDiscountCode(ctx context.Context, q querier, sql string, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	rows, err := q.Query(ctx, sql, scope.AccountID, scope.EventID, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	dc, err := pgx.CollectExactlyOneRow(rows, scanDiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	return &dc, nil
}

func querySharedCode(ctx context.Context, q querier, sql string, scope promo.Scope, code string) (*promo.SharedCode, error) {
	rows, err := q.Query(ctx, sql, scope.AccountID, scope.EventID, code)
	if err != nil {
		return nil, fmt.Errorf("finding shared code %q: %w", code, err)
	}
	sc, err := pgx.CollectExactlyOneRow(rows, scanSharedCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("finding shared code %q: %w", code, err)
	}
	return &sc, nil
}

func scanDiscountCode(row pgx.CollectableRow) (promo.DiscountCode, error) {
	var (
		c       promo.DiscountCode
		maxUses int32
		uses    int32
	)
	err := row.Scan(
		&c.ID, &c.AccountID, &c.EventID, &c.Code, &c.TicketTypeID, &c.Amount, &maxUses, &uses,
		&c.ValidFrom, &c.ValidTo, &c.Active, &c.CreatedAt,
	)
	c.MaxUses = int(maxUses)
	c.Uses = int(uses)
	return c, err
}

func scanSharedCode(row pgx.CollectableRow) (promo.SharedCode, error) {
	var (
		c         promo.SharedCode
		maxUses   int32
		usedCount int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.OrderID, &c.AccountID, &c.EventID, &maxUses, &usedCount,
		&c.Active, &c.ExpiresAt, &c.CreatedAt,
	)
	c.MaxUses = int(maxUses)
	c.UsedCount = int(usedCount)
	return c, err
}
