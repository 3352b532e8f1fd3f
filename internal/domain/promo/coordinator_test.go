package promo_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/eventpass/internal/domain/promo"
	"github.com/xenking/eventpass/internal/domain/promo/promotest"
)

var (
	eventX = promo.Scope{AccountID: 1, EventID: 10}
	eventY = promo.Scope{AccountID: 1, EventID: 20}
)

func newCoordinator(t *testing.T, store *promotest.Store) *promo.Coordinator {
	t.Helper()
	c, err := promo.NewCoordinator(store, promo.CoordinatorConfig{})
	require.NoError(t, err)
	return c
}

func newCoordinatorAt(t *testing.T, store *promotest.Store, loc *time.Location, now time.Time) *promo.Coordinator {
	t.Helper()
	c, err := promo.NewCoordinator(store, promo.CoordinatorConfig{
		Location: loc,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return c
}

func oneTicketCart(price int64) promo.Cart {
	return promo.Cart{{TicketTypeID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(price)}}
}

func commit(t *testing.T, store *promotest.Store, c *promo.Coordinator, scope promo.Scope, code, orderID string, cart promo.Cart) promo.Redemption {
	t.Helper()
	var r promo.Redemption
	err := store.WithTx(context.Background(), func(tx *promotest.Tx) error {
		var err error
		r, err = c.Commit(context.Background(), tx, scope, code, orderID, cart)
		return err
	})
	require.NoError(t, err)
	return r
}

func TestPreview_Scenarios(t *testing.T) {
	ctx := context.Background()
	cart := promo.Cart{
		{TicketTypeID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10000)},
	}

	t.Run("A: fixed code applies", func(t *testing.T) {
		store := promotest.New()
		store.AddDiscountCode(promo.DiscountCode{
			AccountID: 1, EventID: 10, Code: "SAVE5K",
			Amount: decimal.NewFromInt(5000), MaxUses: 1, Active: true,
		})

		q, err := newCoordinator(t, store).Preview(ctx, eventX, "save5k", cart)
		require.NoError(t, err)
		assert.True(t, q.OK)
		assert.Equal(t, promo.KindFixed, q.Kind)
		assert.True(t, decimal.NewFromInt(5000).Equal(q.Amount))
	})

	t.Run("B: exhausted fixed code", func(t *testing.T) {
		store := promotest.New()
		store.AddDiscountCode(promo.DiscountCode{
			AccountID: 1, EventID: 10, Code: "SAVE5K",
			Amount: decimal.NewFromInt(5000), MaxUses: 1, Uses: 1, Active: true,
		})

		q, err := newCoordinator(t, store).Preview(ctx, eventX, "SAVE5K", cart)
		require.NoError(t, err)
		assert.False(t, q.OK)
		assert.Equal(t, promo.ReasonExhausted, q.Reason)
		assert.NotEmpty(t, q.Message)
	})

	t.Run("C: shared code largest first", func(t *testing.T) {
		store := promotest.New()
		store.AddSharedCode(promo.SharedCode{
			AccountID: 1, EventID: 10, Code: "GRP-ABC", OrderID: "o-1", MaxUses: 2, Active: true,
		})
		mixed := promo.Cart{
			{TicketTypeID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(10000)},
			{TicketTypeID: 2, Quantity: 2, UnitPrice: decimal.NewFromInt(5000)},
		}

		q, err := newCoordinator(t, store).Preview(ctx, eventX, "grp-abc", mixed)
		require.NoError(t, err)
		assert.True(t, q.OK)
		assert.Equal(t, promo.KindShared, q.Kind)
		assert.True(t, decimal.NewFromInt(15000).Equal(q.Amount), "got %s", q.Amount)
	})

	t.Run("D: shared code with only exempt items", func(t *testing.T) {
		store := promotest.New()
		store.AddSharedCode(promo.SharedCode{
			AccountID: 1, EventID: 10, Code: "GRP-ABC", OrderID: "o-1", MaxUses: 2, Active: true,
		})
		parking := promo.Cart{{TicketTypeID: 9, Quantity: 1, UnitPrice: decimal.NewFromInt(3000), Exempt: true}}

		q, err := newCoordinator(t, store).Preview(ctx, eventX, "GRP-ABC", parking)
		require.NoError(t, err)
		assert.False(t, q.OK)
		assert.Equal(t, promo.ReasonNoEligibleItems, q.Reason)
		assert.True(t, q.Amount.IsZero())
	})

	t.Run("E: code from another event is not found", func(t *testing.T) {
		store := promotest.New()
		store.AddDiscountCode(promo.DiscountCode{
			AccountID: 1, EventID: 10, Code: "SAVE5K",
			Amount: decimal.NewFromInt(5000), MaxUses: 1, Active: true,
		})
		store.AddSharedCode(promo.SharedCode{
			AccountID: 1, EventID: 10, Code: "GRP-ABC", OrderID: "o-1", MaxUses: 2, Active: true,
		})
		c := newCoordinator(t, store)

		for _, code := range []string{"SAVE5K", "GRP-ABC"} {
			q, err := c.Preview(ctx, eventY, code, cart)
			require.NoError(t, err)
			assert.False(t, q.OK)
			assert.Equal(t, promo.ReasonNotFound, q.Reason)
			assert.Equal(t, promo.KindNone, q.Kind)

			r := commit(t, store, c, eventY, code, "o-2", cart)
			assert.False(t, r.Applied)
			assert.Equal(t, promo.ReasonNotFound, r.Reason)
		}
		assert.Empty(t, store.Redemptions())
	})

	t.Run("other account with same event id is not found", func(t *testing.T) {
		store := promotest.New()
		store.AddDiscountCode(promo.DiscountCode{
			AccountID: 2, EventID: 10, Code: "SAVE5K",
			Amount: decimal.NewFromInt(5000), MaxUses: 1, Active: true,
		})

		q, err := newCoordinator(t, store).Preview(ctx, eventX, "SAVE5K", cart)
		require.NoError(t, err)
		assert.Equal(t, promo.ReasonNotFound, q.Reason)
	})

	t.Run("blank code", func(t *testing.T) {
		q, err := newCoordinator(t, promotest.New()).Preview(ctx, eventX, "   ", cart)
		require.NoError(t, err)
		assert.Equal(t, promo.ReasonNotFound, q.Reason)
	})
}

func TestPreview_DiscountCodeTakesPrecedence(t *testing.T) {
	store := promotest.New()
	store.AddDiscountCode(promo.DiscountCode{
		AccountID: 1, EventID: 10, Code: "SAME", Amount: decimal.NewFromInt(100), MaxUses: 1, Active: true,
	})
	store.AddSharedCode(promo.SharedCode{
		AccountID: 1, EventID: 10, Code: "SAME", OrderID: "o-1", MaxUses: 5, Active: true,
	})

	q, err := newCoordinator(t, store).Preview(context.Background(), eventX, "same", oneTicketCart(9000))
	require.NoError(t, err)
	assert.Equal(t, promo.KindFixed, q.Kind)
	assert.True(t, decimal.NewFromInt(100).Equal(q.Amount))
}

func TestPreview_IsSideEffectFree(t *testing.T) {
	store := promotest.New()
	fixedID := store.AddDiscountCode(promo.DiscountCode{
		AccountID: 1, EventID: 10, Code: "FIXED", Amount: decimal.NewFromInt(100), MaxUses: 1, Active: true,
	})
	sharedID := store.AddSharedCode(promo.SharedCode{
		AccountID: 1, EventID: 10, Code: "GRP", OrderID: "o-1", MaxUses: 1, Active: true,
	})
	c := newCoordinator(t, store)

	for range 5 {
		for _, code := range []string{"FIXED", "GRP"} {
			q, err := c.Preview(context.Background(), eventX, code, oneTicketCart(5000))
			require.NoError(t, err)
			assert.True(t, q.OK)
		}
	}

	assert.Equal(t, 0, store.DiscountCode(fixedID).Uses)
	assert.Equal(t, 0, store.SharedCode(sharedID).UsedCount)
	assert.Empty(t, store.Redemptions())
}

func TestCoordinator_ValidityWindowUsesBusinessTimeZone(t *testing.T) {
	santiago, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	lastDay := time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC)
	lateEvening := time.Date(2026, time.July, 15, 23, 0, 0, 0, santiago)
	require.Equal(t, 16, lateEvening.UTC().Day(), "already the next day in UTC")

	tests := []struct {
		name   string
		loc    *time.Location
		now    time.Time
		ok     bool
		reason promo.Reason
	}{
		{name: "last local evening", loc: santiago, now: lateEvening, ok: true},
		{name: "next local day", loc: santiago, now: time.Date(2026, time.July, 16, 9, 0, 0, 0, santiago), reason: promo.ReasonExpired},
		{name: "same instant read in UTC", loc: time.UTC, now: lateEvening, reason: promo.ReasonExpired},
		{name: "before first day", loc: santiago, now: time.Date(2026, time.June, 30, 23, 30, 0, 0, santiago), reason: promo.ReasonNotYetValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := promotest.New()
			id := store.AddDiscountCode(promo.DiscountCode{
				AccountID: 1, EventID: 10, Code: "WINTER", Amount: decimal.NewFromInt(1000), MaxUses: 5, Active: true,
				ValidFrom: ptr(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)),
				ValidTo:   &lastDay,
			})
			c := newCoordinatorAt(t, store, tt.loc, tt.now)

			q, err := c.Preview(context.Background(), eventX, "WINTER", oneTicketCart(5000))
			require.NoError(t, err)
			assert.Equal(t, tt.ok, q.OK)
			assert.Equal(t, tt.reason, q.Reason)

			r := commit(t, store, c, eventX, "WINTER", "o-1", oneTicketCart(5000))
			assert.Equal(t, tt.ok, r.Applied)
			assert.Equal(t, tt.reason, r.Reason)
			if tt.ok {
				assert.Equal(t, 1, store.DiscountCode(id).Uses)
			} else {
				assert.Equal(t, 0, store.DiscountCode(id).Uses)
			}
		})
	}
}

func TestCoordinator_ExpiredSharedCode(t *testing.T) {
	expiresAt := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	newStore := func() (*promotest.Store, int64) {
		store := promotest.New()
		id := store.AddSharedCode(promo.SharedCode{
			AccountID: 1, EventID: 10, Code: "GRP-OLD", OrderID: "o-0",
			MaxUses: 3, UsedCount: 1, Active: true, ExpiresAt: &expiresAt,
		})
		return store, id
	}

	t.Run("preview", func(t *testing.T) {
		store, _ := newStore()
		c := newCoordinatorAt(t, store, time.UTC, expiresAt.Add(time.Minute))

		q, err := c.Preview(context.Background(), eventX, "GRP-OLD", oneTicketCart(1000))
		require.NoError(t, err)
		assert.False(t, q.OK)
		assert.Equal(t, promo.KindShared, q.Kind)
		assert.Equal(t, promo.ReasonExpired, q.Reason)
		assert.True(t, q.Amount.IsZero())
	})

	t.Run("commit", func(t *testing.T) {
		store, id := newStore()
		c := newCoordinatorAt(t, store, time.UTC, expiresAt.Add(time.Minute))

		r := commit(t, store, c, eventX, "GRP-OLD", "o-1", oneTicketCart(1000))
		assert.False(t, r.Applied)
		assert.Equal(t, promo.ReasonExpired, r.Reason)
		assert.Equal(t, 0, r.ConsumedUses)
		assert.Equal(t, 1, store.SharedCode(id).UsedCount)
		assert.Empty(t, store.Redemptions())
	})

	t.Run("commit before expiry", func(t *testing.T) {
		store, id := newStore()
		c := newCoordinatorAt(t, store, time.UTC, expiresAt.Add(-time.Minute))

		r := commit(t, store, c, eventX, "GRP-OLD", "o-1", oneTicketCart(1000))
		assert.True(t, r.Applied)
		assert.Equal(t, 2, store.SharedCode(id).UsedCount)
	})
}

func TestMintSharedCode_ExpiryFromClock(t *testing.T) {
	now := time.Date(2026, time.August, 1, 18, 0, 0, 0, time.UTC)
	store := promotest.New()
	c, err := promo.NewCoordinator(store, promo.CoordinatorConfig{
		SharedCodeTTL: 48 * time.Hour,
		Now:           func() time.Time { return now },
	})
	require.NoError(t, err)

	var minted *promo.SharedCode
	require.NoError(t, store.WithTx(context.Background(), func(tx *promotest.Tx) error {
		var err error
		minted, err = c.MintSharedCode(context.Background(), tx, promo.MintRequest{
			Scope:   eventX,
			OrderID: "o-1",
			Cart:    promo.Cart{{TicketTypeID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(1000)}},
		})
		return err
	}))
	require.NotNil(t, minted)
	require.NotNil(t, minted.ExpiresAt)
	assert.True(t, now.Add(48*time.Hour).Equal(*minted.ExpiresAt))
	assert.True(t, now.Equal(minted.CreatedAt))
}

func TestCommit_DiscountCode(t *testing.T) {
	store := promotest.New()
	id := store.AddDiscountCode(promo.DiscountCode{
		AccountID: 1, EventID: 10, Code: "SAVE5K", Amount: decimal.NewFromInt(5000), MaxUses: 2, Active: true,
	})
	c := newCoordinator(t, store)

	bigCart := promo.Cart{{TicketTypeID: 1, Quantity: 6, UnitPrice: decimal.NewFromInt(10000)}}
	r := commit(t, store, c, eventX, "save5k", "o-1", bigCart)

	assert.True(t, r.Applied)
	assert.Equal(t, promo.KindFixed, r.Kind)
	assert.Equal(t, 1, r.ConsumedUses, "one redemption per order regardless of cart size")
	assert.True(t, decimal.NewFromInt(5000).Equal(r.Amount))
	assert.Equal(t, 1, store.DiscountCode(id).Uses)

	recs := store.Redemptions()
	require.Len(t, recs, 1)
	assert.Equal(t, "o-1", recs[0].OrderID)
	assert.Equal(t, id, recs[0].CodeID)
}

func TestCommit_RejectionLeavesCounterAlone(t *testing.T) {
	store := promotest.New()
	id := store.AddDiscountCode(promo.DiscountCode{
		AccountID: 1, EventID: 10, Code: "ONCE", Amount: decimal.NewFromInt(5000), MaxUses: 1, Uses: 1, Active: true,
	})
	c := newCoordinator(t, store)

	r := commit(t, store, c, eventX, "ONCE", "o-1", oneTicketCart(10000))
	assert.False(t, r.Applied)
	assert.Equal(t, promo.ReasonExhausted, r.Reason)
	assert.Equal(t, 1, store.DiscountCode(id).Uses)
	assert.Empty(t, store.Redemptions())
}

func TestCommit_SharedCodeDegradesToRemainingCapacity(t *testing.T) {
	store := promotest.New()
	id := store.AddSharedCode(promo.SharedCode{
		AccountID: 1, EventID: 10, Code: "GRP", OrderID: "o-0", MaxUses: 3, UsedCount: 2, Active: true,
	})
	c := newCoordinator(t, store)

	cart := promo.Cart{
		{TicketTypeID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(4000)},
		{TicketTypeID: 2, Quantity: 2, UnitPrice: decimal.NewFromInt(9000)},
	}
	r := commit(t, store, c, eventX, "GRP", "o-1", cart)

	assert.True(t, r.Applied)
	assert.Equal(t, 1, r.ConsumedUses)
	assert.True(t, decimal.NewFromInt(9000).Equal(r.Amount), "got %s", r.Amount)
	assert.Equal(t, 3, store.SharedCode(id).UsedCount)

	r = commit(t, store, c, eventX, "GRP", "o-2", cart)
	assert.False(t, r.Applied)
	assert.Equal(t, promo.ReasonExhausted, r.Reason)
	assert.Equal(t, 0, r.ConsumedUses)
}

func TestCommit_RollbackRevertsCounter(t *testing.T) {
	store := promotest.New()
	id := store.AddDiscountCode(promo.DiscountCode{
		AccountID: 1, EventID: 10, Code: "SAVE", Amount: decimal.NewFromInt(500), MaxUses: 1, Active: true,
	})
	c := newCoordinator(t, store)
	errDeclined := errors.New("payment declined")

	err := store.WithTx(context.Background(), func(tx *promotest.Tx) error {
		r, err := c.Commit(context.Background(), tx, eventX, "SAVE", "o-1", oneTicketCart(1000))
		require.NoError(t, err)
		require.True(t, r.Applied)
		return errDeclined
	})
	require.ErrorIs(t, err, errDeclined)

	assert.Equal(t, 0, store.DiscountCode(id).Uses)
	assert.Empty(t, store.Redemptions())
}

// The in-memory store serializes whole transactions, so the concurrent tests
// below check counter and audit accounting under parallel callers, not row
// locking. Lock contention is covered against PostgreSQL by
// TestPromoStore_ConcurrentSharedCommits.
func TestCommit_ConcurrentSingleUnitCommits(t *testing.T) {
	const (
		maxUses  = 3
		attempts = 20
	)
	store := promotest.New()
	id := store.AddSharedCode(promo.SharedCode{
		AccountID: 1, EventID: 10, Code: "GRP-RUSH", OrderID: "o-0", MaxUses: maxUses, Active: true,
	})
	c := newCoordinator(t, store)

	var applied, consumed, empty atomic.Int64
	var g errgroup.Group
	for i := range attempts {
		g.Go(func() error {
			return store.WithTx(context.Background(), func(tx *promotest.Tx) error {
				r, err := c.Commit(context.Background(), tx, eventX, "GRP-RUSH", orderID(i), oneTicketCart(1000))
				if err != nil {
					return err
				}
				consumed.Add(int64(r.ConsumedUses))
				if r.Applied {
					applied.Add(1)
				} else {
					empty.Add(1)
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(maxUses), applied.Load())
	assert.Equal(t, int64(maxUses), consumed.Load())
	assert.Equal(t, int64(attempts-maxUses), empty.Load())
	assert.Equal(t, maxUses, store.SharedCode(id).UsedCount)
	assert.Len(t, store.Redemptions(), maxUses)
}

func TestCommit_ConcurrentMultiUnitCommitsNeverOverspend(t *testing.T) {
	const maxUses = 5
	store := promotest.New()
	id := store.AddSharedCode(promo.SharedCode{
		AccountID: 1, EventID: 10, Code: "GRP", OrderID: "o-0", MaxUses: maxUses, Active: true,
	})
	c := newCoordinator(t, store)
	cart := promo.Cart{{TicketTypeID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(1000)}}

	var consumed atomic.Int64
	var g errgroup.Group
	for i := range 8 {
		g.Go(func() error {
			return store.WithTx(context.Background(), func(tx *promotest.Tx) error {
				r, err := c.Commit(context.Background(), tx, eventX, "GRP", orderID(i), cart)
				consumed.Add(int64(r.ConsumedUses))
				return err
			})
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(maxUses), consumed.Load())
	assert.Equal(t, maxUses, store.SharedCode(id).UsedCount)
}

func TestCommit_StorageFailure(t *testing.T) {
	boom := errors.New("connection reset")
	c, err := promo.NewCoordinator(promotest.New(), promo.CoordinatorConfig{})
	require.NoError(t, err)

	tests := []struct {
		name string
		tx   *failingTx
	}{
		{name: "lock", tx: &failingTx{lockErr: boom}},
		{name: "increment", tx: &failingTx{code: usableCode(), incErr: boom}},
		{name: "audit", tx: &failingTx{code: usableCode(), recordErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Commit(context.Background(), tt.tx, eventX, "SAVE", "o-1", oneTicketCart(1000))
			require.ErrorIs(t, err, boom)
			assert.True(t, promo.IsStorageFailure(err))
		})
	}
}

func TestCommit_LockTimeoutIsStorageFailure(t *testing.T) {
	c, err := promo.NewCoordinator(promotest.New(), promo.CoordinatorConfig{})
	require.NoError(t, err)

	_, err = c.Commit(context.Background(), &failingTx{lockErr: promo.ErrLockTimeout}, eventX, "SAVE", "o-1", oneTicketCart(1000))
	require.ErrorIs(t, err, promo.ErrLockTimeout)
	assert.True(t, promo.IsStorageFailure(err))
}

func TestMintSharedCode(t *testing.T) {
	store := promotest.New()
	c := newCoordinator(t, store)

	tests := []struct {
		name        string
		cart        promo.Cart
		wantMinted  bool
		wantMaxUses int
	}{
		{
			name: "group of three plus parking",
			cart: promo.Cart{
				{TicketTypeID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(1000)},
				{TicketTypeID: 9, Quantity: 1, UnitPrice: decimal.NewFromInt(500), Exempt: true},
			},
			wantMinted:  true,
			wantMaxUses: 2,
		},
		{
			name: "single ticket plus parking",
			cart: promo.Cart{
				{TicketTypeID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(1000)},
				{TicketTypeID: 9, Quantity: 1, UnitPrice: decimal.NewFromInt(500), Exempt: true},
			},
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var minted *promo.SharedCode
			err := store.WithTx(context.Background(), func(tx *promotest.Tx) error {
				var err error
				minted, err = c.MintSharedCode(context.Background(), tx, promo.MintRequest{
					Scope: eventX, OrderID: orderID(i), Cart: tt.cart,
				})
				return err
			})
			require.NoError(t, err)

			if !tt.wantMinted {
				assert.Nil(t, minted)
				return
			}
			require.NotNil(t, minted)
			assert.Equal(t, tt.wantMaxUses, minted.MaxUses)
			assert.Equal(t, 0, minted.UsedCount)
			assert.True(t, minted.Active)
			assert.Nil(t, minted.ExpiresAt)
			assert.Equal(t, minted, ptrTo(store.SharedCode(minted.ID)))
		})
	}
}

func TestMintedCodeIsRedeemableByTheGroup(t *testing.T) {
	store := promotest.New()
	c := newCoordinator(t, store)

	var minted *promo.SharedCode
	require.NoError(t, store.WithTx(context.Background(), func(tx *promotest.Tx) error {
		var err error
		minted, err = c.MintSharedCode(context.Background(), tx, promo.MintRequest{
			Scope:   eventX,
			OrderID: "o-1",
			Cart:    promo.Cart{{TicketTypeID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(1000)}},
		})
		return err
	}))
	require.NotNil(t, minted)

	q, err := c.Preview(context.Background(), eventX, minted.Code, oneTicketCart(1000))
	require.NoError(t, err)
	assert.True(t, q.OK)
	assert.Equal(t, promo.KindShared, q.Kind)
}

// --- Mock implementations ---

type failingTx struct {
	code      *promo.DiscountCode
	lockErr   error
	incErr    error
	recordErr error
}

func (f *failingTx) LockDiscountCode(_ context.Context, _ promo.Scope, _ string) (*promo.DiscountCode, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	return f.code, nil
}

func (f *failingTx) LockSharedCode(_ context.Context, _ promo.Scope, _ string) (*promo.SharedCode, error) {
	return nil, promo.ErrNotFound
}

func (f *failingTx) IncrementDiscountUses(_ context.Context, _ int64) error { return f.incErr }

func (f *failingTx) ConsumeSharedUses(_ context.Context, _ int64, _ int) error { return nil }

func (f *failingTx) RecordRedemption(_ context.Context, _ promo.RedemptionRecord) error {
	return f.recordErr
}

func (f *failingTx) CreateSharedCode(_ context.Context, _ *promo.SharedCode) error { return nil }

// --- Helpers ---

func usableCode() *promo.DiscountCode {
	return &promo.DiscountCode{
		ID: 1, AccountID: 1, EventID: 10, Code: "SAVE", Amount: decimal.NewFromInt(100), MaxUses: 1, Active: true,
	}
}

func orderID(i int) string {
	return "o-" + string(rune('a'+i))
}

func ptrTo(c promo.SharedCode) *promo.SharedCode { return &c }

func ptr[T any](v T) *T { return &v }
