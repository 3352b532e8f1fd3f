package promo

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xenking/eventpass/internal/domain/promo"

// CoordinatorConfig tunes a Coordinator. Zero values are usable.
type CoordinatorConfig struct {
	// Location is the business time zone used for date-only validity
	// windows. Defaults to UTC.
	Location *time.Location
	// SharedCodeTTL bounds the lifetime of minted shared codes. Zero means
	// no expiry.
	SharedCodeTTL time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now            func() time.Time
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Coordinator is the transactional boundary around promotion codes. Preview
// never writes; Commit is the only path that changes usage counters.
type Coordinator struct {
	reader    Reader
	loc       *time.Location
	sharedTTL time.Duration
	now       func() time.Time
	newToken  func() string

	tracer      trace.Tracer
	previews    metric.Int64Counter
	redemptions metric.Int64Counter
}

// NewCoordinator creates a Coordinator reading codes from reader.
func NewCoordinator(reader Reader, cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	previews, err := meter.Int64Counter("eventpass.promo.previews",
		metric.WithDescription("Promotion code previews by kind and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create previews counter")
	}
	redemptions, err := meter.Int64Counter("eventpass.promo.redemptions",
		metric.WithDescription("Promotion code commits by kind and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create redemptions counter")
	}

	return &Coordinator{
		reader:      reader,
		loc:         cfg.Location,
		sharedTTL:   cfg.SharedCodeTTL,
		now:         cfg.Now,
		newToken:    newSharedToken,
		tracer:      cfg.TracerProvider.Tracer(instrumentationName),
		previews:    previews,
		redemptions: redemptions,
	}, nil
}

// Preview quotes code against cart without taking locks or writing. Discount
// codes take precedence over shared codes with the same text. The returned
// error is non-nil only for storage failures.
func (c *Coordinator) Preview(ctx context.Context, scope Scope, code string, cart Cart) (Quote, error) {
	ctx, span := c.tracer.Start(ctx, "promo.Preview", trace.WithAttributes(
		attribute.Int64("eventpass.account_id", scope.AccountID),
		attribute.Int64("eventpass.event_id", scope.EventID),
	))
	defer span.End()

	q, err := c.preview(ctx, scope, NormalizeCode(code), cart)
	if err != nil {
		c.previews.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Quote{}, c.failSpan(span, err)
	}

	outcome := "ok"
	if !q.OK {
		outcome = string(q.Reason)
	}
	c.previews.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(q.Kind)),
		attribute.String("outcome", outcome),
	))
	return q, nil
}

func (c *Coordinator) preview(ctx context.Context, scope Scope, code string, cart Cart) (Quote, error) {
	if code == "" {
		return rejectedQuote(KindNone, ReasonNotFound), nil
	}
	now := c.clock()

	dc, err := c.reader.FindDiscountCode(ctx, scope, code)
	switch {
	case err == nil:
		amount, err := EvaluateDiscount(dc, cart, now)
		if err != nil {
			return quoteFromErr(KindFixed, err)
		}
		return Quote{OK: true, Kind: KindFixed, Amount: amount}, nil
	case !errors.Is(err, ErrNotFound):
		return Quote{}, &StorageError{Op: "find discount code", Err: err}
	}

	sc, err := c.reader.FindSharedCode(ctx, scope, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return rejectedQuote(KindNone, ReasonNotFound), nil
	case err != nil:
		return Quote{}, &StorageError{Op: "find shared code", Err: err}
	}

	if err := CheckShared(sc, now); err != nil {
		return quoteFromErr(KindShared, err)
	}
	alloc := Allocate(sc.Remaining(), cart)
	if alloc.Consumed == 0 {
		return rejectedQuote(KindShared, ReasonNoEligibleItems), nil
	}
	return Quote{OK: true, Kind: KindShared, Amount: alloc.Amount}, nil
}

// Commit locks the code row through tx, re-validates it against cart and
// persists the usage counter together with an audit record for orderID.
//
// A validation failure returns a Redemption with Applied=false and the
// reason; the order may continue without a discount. A shared code that lost
// capacity to concurrent commits is applied to what is left, possibly a
// smaller amount than previewed. Any returned error is a *StorageError and the
// enclosing transaction must be rolled back.
func (c *Coordinator) Commit(ctx context.Context, tx TxStore, scope Scope, code, orderID string, cart Cart) (Redemption, error) {
	ctx, span := c.tracer.Start(ctx, "promo.Commit", trace.WithAttributes(
		attribute.Int64("eventpass.account_id", scope.AccountID),
		attribute.Int64("eventpass.event_id", scope.EventID),
		attribute.String("eventpass.order_id", orderID),
	))
	defer span.End()

	r, err := c.commit(ctx, tx, scope, NormalizeCode(code), orderID, cart)
	if err != nil {
		c.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		return Redemption{}, c.failSpan(span, err)
	}

	outcome := "applied"
	if !r.Applied {
		outcome = string(r.Reason)
	}
	span.SetAttributes(
		attribute.String("eventpass.promo.kind", string(r.Kind)),
		attribute.Int("eventpass.promo.consumed_uses", r.ConsumedUses),
	)
	c.redemptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(r.Kind)),
		attribute.String("outcome", outcome),
	))
	return r, nil
}

func (c *Coordinator) commit(ctx context.Context, tx TxStore, scope Scope, code, orderID string, cart Cart) (Redemption, error) {
	if code == "" {
		return Redemption{Reason: ReasonNotFound}, nil
	}
	now := c.clock()

	dc, err := tx.LockDiscountCode(ctx, scope, code)
	switch {
	case err == nil:
		return c.commitDiscount(ctx, tx, dc, orderID, cart, now)
	case !errors.Is(err, ErrNotFound):
		return Redemption{}, &StorageError{Op: "lock discount code", Err: err}
	}

	sc, err := tx.LockSharedCode(ctx, scope, code)
	switch {
	case errors.Is(err, ErrNotFound):
		return Redemption{Reason: ReasonNotFound}, nil
	case err != nil:
		return Redemption{}, &StorageError{Op: "lock shared code", Err: err}
	}
	return c.commitShared(ctx, tx, sc, orderID, cart, now)
}

func (c *Coordinator) commitDiscount(ctx context.Context, tx TxStore, dc *DiscountCode, orderID string, cart Cart, now time.Time) (Redemption, error) {
	r := Redemption{Kind: KindFixed, CodeID: dc.ID, Code: dc.Code}

	amount, err := EvaluateDiscount(dc, cart, now)
	if err != nil {
		reason, ok := ReasonOf(err)
		if !ok {
			return Redemption{}, err
		}
		r.Reason = reason
		return r, nil
	}

	if err := tx.IncrementDiscountUses(ctx, dc.ID); err != nil {
		return Redemption{}, &StorageError{Op: "increment discount uses", Err: err}
	}
	r.Applied = true
	r.Amount = amount
	r.ConsumedUses = 1

	return r, c.record(ctx, tx, r, orderID, now)
}

func (c *Coordinator) commitShared(ctx context.Context, tx TxStore, sc *SharedCode, orderID string, cart Cart, now time.Time) (Redemption, error) {
	r := Redemption{Kind: KindShared, CodeID: sc.ID, Code: sc.Code}

	if err := CheckShared(sc, now); err != nil {
		reason, ok := ReasonOf(err)
		if !ok {
			return Redemption{}, err
		}
		r.Reason = reason
		return r, nil
	}

	remaining := sc.Remaining()
	alloc := Allocate(remaining, cart)
	if alloc.Consumed == 0 {
		r.Reason = ReasonNoEligibleItems
		return r, nil
	}
	consumed := min(alloc.Consumed, remaining)

	if err := tx.ConsumeSharedUses(ctx, sc.ID, consumed); err != nil {
		return Redemption{}, &StorageError{Op: "consume shared uses", Err: err}
	}
	r.Applied = true
	r.Amount = alloc.Amount
	r.ConsumedUses = consumed

	return r, c.record(ctx, tx, r, orderID, now)
}

func (c *Coordinator) record(ctx context.Context, tx TxStore, r Redemption, orderID string, now time.Time) error {
	err := tx.RecordRedemption(ctx, RedemptionRecord{
		Kind:         r.Kind,
		CodeID:       r.CodeID,
		OrderID:      orderID,
		Amount:       r.Amount,
		ConsumedUses: r.ConsumedUses,
		CreatedAt:    now,
	})
	if err != nil {
		return &StorageError{Op: "record redemption", Err: err}
	}
	return nil
}

// MintRequest describes a finished order that may earn a shared code.
type MintRequest struct {
	Scope   Scope
	OrderID string
	Cart    Cart
}

// MintSharedCode creates the courtesy code for an order with more than one
// non-exempt ticket, sized to that count minus the purchaser's own ticket.
// It returns nil without error when the order does not qualify.
func (c *Coordinator) MintSharedCode(ctx context.Context, tx TxStore, req MintRequest) (*SharedCode, error) {
	units := req.Cart.NonExemptUnits()
	if units <= 1 {
		return nil, nil
	}

	now := c.now()
	sc := &SharedCode{
		Code:      c.newToken(),
		OrderID:   req.OrderID,
		AccountID: req.Scope.AccountID,
		EventID:   req.Scope.EventID,
		MaxUses:   units - 1,
		Active:    true,
		CreatedAt: now,
	}
	if c.sharedTTL > 0 {
		exp := now.Add(c.sharedTTL)
		sc.ExpiresAt = &exp
	}

	if err := tx.CreateSharedCode(ctx, sc); err != nil {
		return nil, &StorageError{Op: "create shared code", Err: err}
	}
	return sc, nil
}

func (c *Coordinator) clock() time.Time {
	return c.now().In(c.loc)
}

func (c *Coordinator) failSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// NormalizeCode trims and upper-cases a code as typed by a buyer.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func quoteFromErr(kind Kind, err error) (Quote, error) {
	reason, ok := ReasonOf(err)
	if !ok {
		return Quote{}, err
	}
	return rejectedQuote(kind, reason), nil
}

func rejectedQuote(kind Kind, reason Reason) Quote {
	return Quote{Kind: kind, Reason: reason, Message: reason.Message()}
}

func newSharedToken() string {
	id := uuid.New()
	return "GRP-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
