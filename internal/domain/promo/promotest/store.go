// Package promotest provides an in-memory promotion store with
// serializable transactions for tests.
package promotest

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/go-faster/errors"

	"github.com/xenking/eventpass/internal/domain/promo"
)

var (
	_ promo.Reader     = (*Store)(nil)
	_ promo.AdminStore = (*Store)(nil)
	_ promo.TxStore    = (*Tx)(nil)
)

// ErrCheckViolation mirrors the database CHECK constraints on counters.
var ErrCheckViolation = errors.New("usage counter exceeds quota")

type state struct {
	nextID      int64
	discounts   map[int64]promo.DiscountCode
	shared      map[int64]promo.SharedCode
	ticketTypes map[int64]promo.Scope
	redemptions []promo.RedemptionRecord
}

func (s *state) clone() *state {
	return &state{
		nextID:      s.nextID,
		discounts:   maps.Clone(s.discounts),
		shared:      maps.Clone(s.shared),
		ticketTypes: maps.Clone(s.ticketTypes),
		redemptions: slices.Clone(s.redemptions),
	}
}

// Store keeps committed state behind a read lock so lookups never wait on a
// running transaction. Transactions run one at a time on a private copy, so
// Lock* methods never contend and cannot reveal missing row locks.
type Store struct {
	txMu sync.Mutex

	mu    sync.RWMutex
	state *state
}

// New returns an empty Store.
func New() *Store {
	return &Store{state: &state{
		discounts:   make(map[int64]promo.DiscountCode),
		shared:      make(map[int64]promo.SharedCode),
		ticketTypes: make(map[int64]promo.Scope),
	}}
}

// AddDiscountCode stores c and returns its assigned ID.
func (s *Store) AddDiscountCode(c promo.DiscountCode) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	c.ID = s.state.nextID
	s.state.discounts[c.ID] = c
	return c.ID
}

// AddSharedCode stores c and returns its assigned ID.
func (s *Store) AddSharedCode(c promo.SharedCode) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	c.ID = s.state.nextID
	s.state.shared[c.ID] = c
	return c.ID
}

// AddTicketType registers a ticket type as belonging to scope.
func (s *Store) AddTicketType(scope promo.Scope, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ticketTypes[id] = scope
}

// DiscountCode returns the committed copy of a discount code.
func (s *Store) DiscountCode(id int64) promo.DiscountCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.discounts[id]
}

// SharedCode returns the committed copy of a shared code.
func (s *Store) SharedCode(id int64) promo.SharedCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.shared[id]
}

// SharedCodes returns all committed shared codes.
func (s *Store) SharedCodes() []promo.SharedCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.state.shared))
}

// Redemptions returns the committed audit trail.
func (s *Store) Redemptions() []promo.RedemptionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.redemptions)
}

// WithTx runs fn in a transaction. Changes become visible only if fn returns
// nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&Tx{st: work}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *Store) FindDiscountCode(_ context.Context, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findDiscount(s.state, scope, code)
}

func (s *Store) FindSharedCode(_ context.Context, scope promo.Scope, code string) (*promo.SharedCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findShared(s.state, scope, code)
}

func (s *Store) CreateDiscountCode(_ context.Context, c *promo.DiscountCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.state.discounts {
		if existing.AccountID == c.AccountID && strings.EqualFold(existing.Code, c.Code) {
			return promo.ErrDuplicateCode
		}
	}
	s.state.nextID++
	c.ID = s.state.nextID
	s.state.discounts[c.ID] = *c
	return nil
}

func (s *Store) ListDiscountCodes(_ context.Context, scope promo.Scope) ([]promo.DiscountCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []promo.DiscountCode
	for _, c := range s.state.discounts {
		if inScope(scope, c.AccountID, c.EventID) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b promo.DiscountCode) int { return int(a.ID - b.ID) })
	return out, nil
}

func (s *Store) SetDiscountCodeActive(_ context.Context, scope promo.Scope, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.state.discounts[id]
	if !ok || !inScope(scope, c.AccountID, c.EventID) {
		return promo.ErrNotFound
	}
	c.Active = active
	s.state.discounts[id] = c
	return nil
}

func (s *Store) TicketTypeInEvent(_ context.Context, scope promo.Scope, ticketTypeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	got, ok := s.state.ticketTypes[ticketTypeID]
	return ok && got == scope, nil
}

// Tx is a transaction-bound view of a Store.
type Tx struct {
	st *state
}

func (t *Tx) LockDiscountCode(_ context.Context, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	return findDiscount(t.st, scope, code)
}

func (t *Tx) LockSharedCode(_ context.Context, scope promo.Scope, code string) (*promo.SharedCode, error) {
	return findShared(t.st, scope, code)
}

func (t *Tx) IncrementDiscountUses(_ context.Context, id int64) error {
	c, ok := t.st.discounts[id]
	if !ok {
		return promo.ErrNotFound
	}
	if c.Uses+1 > c.MaxUses {
		return ErrCheckViolation
	}
	c.Uses++
	t.st.discounts[id] = c
	return nil
}

func (t *Tx) ConsumeSharedUses(_ context.Context, id int64, n int) error {
	c, ok := t.st.shared[id]
	if !ok {
		return promo.ErrNotFound
	}
	if c.UsedCount+n > c.MaxUses {
		return ErrCheckViolation
	}
	c.UsedCount += n
	t.st.shared[id] = c
	return nil
}

func (t *Tx) RecordRedemption(_ context.Context, rec promo.RedemptionRecord) error {
	t.st.redemptions = append(t.st.redemptions, rec)
	return nil
}

func (t *Tx) CreateSharedCode(_ context.Context, c *promo.SharedCode) error {
	for _, existing := range t.st.shared {
		if existing.OrderID == c.OrderID {
			return errors.Errorf("shared code for order %s already exists", c.OrderID)
		}
	}
	t.st.nextID++
	c.ID = t.st.nextID
	t.st.shared[c.ID] = *c
	return nil
}

func findDiscount(st *state, scope promo.Scope, code string) (*promo.DiscountCode, error) {
	for _, c := range st.discounts {
		if inScope(scope, c.AccountID, c.EventID) && strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, promo.ErrNotFound
}

func findShared(st *state, scope promo.Scope, code string) (*promo.SharedCode, error) {
	for _, c := range st.shared {
		if inScope(scope, c.AccountID, c.EventID) && strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, promo.ErrNotFound
}

func inScope(scope promo.Scope, accountID, eventID int64) bool {
	return scope.AccountID == accountID && scope.EventID == eventID
}
