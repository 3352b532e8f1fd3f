// Command seed-db loads a demo account, event, and API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/domain/auth"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/storage/postgres"
)

type seedFile struct {
	Account string `json:"account"`
	Event   struct {
		Slug     string     `json:"slug"`
		Name     string     `json:"name"`
		StartsAt *time.Time `json:"starts_at"`
	} `json:"event"`
	TicketTypes []struct {
		Name   string          `json:"name"`
		Price  decimal.Decimal `json:"price"`
		Exempt bool            `json:"exempt"`
	} `json:"ticket_types"`
	DiscountCodes []struct {
		Code       string          `json:"code"`
		TicketType string          `json:"ticket_type"`
		Amount     decimal.Decimal `json:"amount"`
		MaxUses    int             `json:"max_uses"`
		ValidFrom  string          `json:"valid_from"`
		ValidTo    string          `json:"valid_to"`
	} `json:"discount_codes"`
	AccessPoints []string `json:"access_points"`
}

const (
	findAccountSQL = `SELECT id FROM accounts WHERE name = $1 ORDER BY id LIMIT 1`

	createAccountSQL = `INSERT INTO accounts (name) VALUES ($1) RETURNING id`

	upsertEventSQL = `INSERT INTO events (account_id, slug, name, starts_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, slug) DO UPDATE SET name = EXCLUDED.name, starts_at = EXCLUDED.starts_at
		RETURNING id`

	upsertTicketTypeSQL = `WITH existing AS (
			UPDATE ticket_types SET price = $4, exempt = $5
			WHERE account_id = $1 AND event_id = $2 AND name = $3
			RETURNING id
		)
		INSERT INTO ticket_types (account_id, event_id, name, price, exempt)
		SELECT $1, $2, $3, $4, $5 WHERE NOT EXISTS (SELECT 1 FROM existing)
		RETURNING id`

	findTicketTypeSQL = `SELECT id FROM ticket_types WHERE account_id = $1 AND event_id = $2 AND name = $3`

	createAccessPointSQL = `INSERT INTO access_points (account_id, event_id, name)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM access_points WHERE event_id = $2 AND name = $3)`
)

func main() {
	var (
		databaseURL string
		seedPath    string
		apiKey      string
		pepper      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/event.json", "path to the seed JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or EVENTPASS_SEED_API_KEY env)")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or EVENTPASS_API_KEY_PEPPER env)")
	flag.Parse()

	databaseURL = orEnv(databaseURL, "DATABASE_URL")
	apiKey = orEnv(apiKey, "EVENTPASS_SEED_API_KEY")
	pepper = orEnv(pepper, "EVENTPASS_API_KEY_PEPPER")

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	switch {
	case databaseURL == "":
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	case apiKey == "" || pepper == "":
		lg.Fatal("API key and pepper are required: set --api-key and --api-key-pepper")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, seedPath, apiKey, []byte(pepper)); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, seedPath, apiKey string, pepper []byte) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed file")
	}

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	db := postgres.New(pool, 0)

	scope, err := seedEvent(ctx, pool, &seed)
	if err != nil {
		return errors.Wrap(err, "seed event")
	}
	lg.Info("Seeded event", zap.Int64("account_id", scope.AccountID), zap.Int64("event_id", scope.EventID))

	types := make(map[string]int64, len(seed.TicketTypes))
	for _, tt := range seed.TicketTypes {
		var id int64
		err := pool.QueryRow(ctx, upsertTicketTypeSQL, scope.AccountID, scope.EventID, tt.Name, tt.Price, tt.Exempt).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// The update branch returns nothing from the insert.
			err = pool.QueryRow(ctx, findTicketTypeSQL, scope.AccountID, scope.EventID, tt.Name).Scan(&id)
		}
		if err != nil {
			return errors.Wrapf(err, "seed ticket type %s", tt.Name)
		}
		types[tt.Name] = id
		lg.Info("Seeded ticket type", zap.String("name", tt.Name), zap.Int64("id", id))
	}

	admin := promo.NewAdmin(postgres.NewPromoStore(db))
	for _, dc := range seed.DiscountCodes {
		in := promo.NewDiscountCode{Code: dc.Code, Amount: dc.Amount, MaxUses: dc.MaxUses, Active: true}
		if dc.TicketType != "" {
			id, ok := types[dc.TicketType]
			if !ok {
				return errors.Errorf("discount code %s: unknown ticket type %q", dc.Code, dc.TicketType)
			}
			in.TicketTypeID = &id
		}
		if in.ValidFrom, err = parseDay(dc.ValidFrom); err != nil {
			return errors.Wrapf(err, "discount code %s", dc.Code)
		}
		if in.ValidTo, err = parseDay(dc.ValidTo); err != nil {
			return errors.Wrapf(err, "discount code %s", dc.Code)
		}
		if _, err := admin.CreateDiscountCode(ctx, scope, in); err != nil {
			if errors.Is(err, promo.ErrDuplicateCode) {
				lg.Info("Discount code exists", zap.String("code", dc.Code))
				continue
			}
			return errors.Wrapf(err, "seed discount code %s", dc.Code)
		}
		lg.Info("Seeded discount code", zap.String("code", dc.Code))
	}

	for _, name := range seed.AccessPoints {
		if _, err := pool.Exec(ctx, createAccessPointSQL, scope.AccountID, scope.EventID, name); err != nil {
			return errors.Wrapf(err, "seed access point %s", name)
		}
	}

	key := &auth.APIKeyInfo{
		AccountID: scope.AccountID,
		KeyHash:   auth.HashKey(pepper, apiKey),
		Name:      "Seed admin key",
		Scopes:    []string{"*"},
	}
	if err := postgres.NewAPIKeyRepository(db).Create(ctx, key); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	lg.Info("Seeded API key", zap.Int64("id", key.ID), zap.String("name", key.Name))
	return nil
}

func seedEvent(ctx context.Context, pool *pgxpool.Pool, seed *seedFile) (promo.Scope, error) {
	var scope promo.Scope
	err := pool.QueryRow(ctx, findAccountSQL, seed.Account).Scan(&scope.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := pool.QueryRow(ctx, createAccountSQL, seed.Account).Scan(&scope.AccountID); err != nil {
			return scope, errors.Wrap(err, "create account")
		}
	} else if err != nil {
		return scope, errors.Wrap(err, "find account")
	}
	err = pool.QueryRow(ctx, upsertEventSQL,
		scope.AccountID, seed.Event.Slug, seed.Event.Name, seed.Event.StartsAt,
	).Scan(&scope.EventID)
	if err != nil {
		return scope, errors.Wrap(err, "upsert event")
	}
	return scope, nil
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
