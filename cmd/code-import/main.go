// Command code-import loads discount-code lists into an event.
//
//	code-import -account 1 -event 2 -amount 5000 codes1.gz codes2.gz
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/eventpass/internal/codeimport"
	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/storage/postgres"
)

type options struct {
	databaseURL string
	accountID   int64
	eventID     int64
	ticketType  int64
	amount      string
	maxUses     int
	validFrom   string
	validTo     string
	inactive    bool
	batchSize   int
	expected    uint
	files       []string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Int64Var(&opts.accountID, "account", 0, "account owning the event")
	flag.Int64Var(&opts.eventID, "event", 0, "event the codes apply to")
	flag.Int64Var(&opts.ticketType, "ticket-type", 0, "restrict codes to one ticket type (0 for any)")
	flag.StringVar(&opts.amount, "amount", "", "discount amount per code")
	flag.IntVar(&opts.maxUses, "max-uses", 1, "uses allowed per code")
	flag.StringVar(&opts.validFrom, "valid-from", "", "first valid day, YYYY-MM-DD")
	flag.StringVar(&opts.validTo, "valid-to", "", "last valid day, YYYY-MM-DD")
	flag.BoolVar(&opts.inactive, "inactive", false, "import codes deactivated")
	flag.IntVar(&opts.batchSize, "batch", 1000, "codes per insert batch")
	flag.UintVar(&opts.expected, "expected-codes", 1_000_000, "expected codes per file, sizes the bloom filters")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] FILE...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	opts.files = flag.Args()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}

	lg, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Error("Code import failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	if opts.databaseURL == "" {
		return errors.New("database URL is required: set --database-url or DATABASE_URL")
	}
	if len(opts.files) == 0 {
		return errors.New("no input files")
	}
	in, err := opts.discountCode()
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL, postgres.PoolConfig{MaxConns: 4})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()
	store := postgres.NewPromoStore(postgres.New(pool, 0))

	scope := promo.Scope{AccountID: opts.accountID, EventID: opts.eventID}
	tmpl, err := promo.NewAdmin(store).Template(ctx, scope, in)
	if err != nil {
		return errors.Wrap(err, "code template")
	}

	imp, err := codeimport.New(store, codeimport.Config{
		Files:         opts.files,
		Template:      tmpl,
		BatchSize:     opts.batchSize,
		ExpectedCodes: opts.expected,
		Logger:        lg,
	})
	if err != nil {
		return err
	}
	_, err = imp.Run(ctx)
	return err
}

func (o options) discountCode() (promo.NewDiscountCode, error) {
	amount, err := decimal.NewFromString(o.amount)
	if err != nil {
		return promo.NewDiscountCode{}, errors.Wrap(err, "parse -amount")
	}
	in := promo.NewDiscountCode{
		Amount:  amount,
		MaxUses: o.maxUses,
		Active:  !o.inactive,
	}
	if o.ticketType != 0 {
		in.TicketTypeID = &o.ticketType
	}
	if in.ValidFrom, err = parseDay(o.validFrom); err != nil {
		return promo.NewDiscountCode{}, errors.Wrap(err, "parse -valid-from")
	}
	if in.ValidTo, err = parseDay(o.validTo); err != nil {
		return promo.NewDiscountCode{}, errors.Wrap(err, "parse -valid-to")
	}
	return in, nil
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
