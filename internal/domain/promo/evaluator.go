package promo

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// EvaluateDiscount decides whether code applies to cart at now and returns
// the discount amount. The first failing check wins:
// active, valid_from, valid_to, remaining uses, ticket type restriction.
// The amount is capped at the cart subtotal; a non-positive result is
// rejected instead of being applied for nothing.
//
// Validity bounds are calendar dates compared against the date of now in
// now's location.
func EvaluateDiscount(code *DiscountCode, cart Cart, now time.Time) (decimal.Decimal, error) {
	if len(cart) == 0 {
		return decimal.Zero, reject(ReasonEmptyCart)
	}
	if !code.Active {
		return decimal.Zero, reject(ReasonInactive)
	}

	today := dateOf(now)
	if code.ValidFrom != nil && today.Before(dateOf(*code.ValidFrom)) {
		return decimal.Zero, reject(ReasonNotYetValid)
	}
	if code.ValidTo != nil && today.After(dateOf(*code.ValidTo)) {
		return decimal.Zero, reject(ReasonExpired)
	}
	if code.Uses >= code.MaxUses {
		return decimal.Zero, reject(ReasonExhausted)
	}
	if code.TicketTypeID != nil && !cart.hasTicketType(*code.TicketTypeID) {
		return decimal.Zero, reject(ReasonTicketType)
	}

	amount := decimal.Min(code.Amount, cart.Subtotal())
	if !amount.IsPositive() {
		return decimal.Zero, reject(ReasonZeroValue)
	}
	return amount, nil
}

// CheckShared validates a shared code before allocation. Expiry is always
// checked.
func CheckShared(code *SharedCode, now time.Time) error {
	if !code.Active {
		return reject(ReasonInactive)
	}
	if code.ExpiresAt != nil && now.After(*code.ExpiresAt) {
		return reject(ReasonExpired)
	}
	if code.Remaining() <= 0 {
		return reject(ReasonExhausted)
	}
	return nil
}

// Allocation is the advisory result of spreading shared-code uses over a cart.
type Allocation struct {
	Amount   decimal.Decimal
	Consumed int
}

// Allocate spends up to remaining uses on the most expensive non-exempt units
// of cart. Items with equal prices keep their cart order.
func Allocate(remaining int, cart Cart) Allocation {
	out := Allocation{Amount: decimal.Zero}
	if remaining <= 0 {
		return out
	}

	eligible := make(Cart, 0, len(cart))
	for _, it := range cart {
		if !it.Exempt && it.Quantity > 0 {
			eligible = append(eligible, it)
		}
	}
	slices.SortStableFunc(eligible, func(a, b CartItem) int {
		return b.UnitPrice.Cmp(a.UnitPrice)
	})

	for _, it := range eligible {
		if remaining == 0 {
			break
		}
		take := min(it.Quantity, remaining)
		out.Amount = out.Amount.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(take))))
		out.Consumed += take
		remaining -= take
	}
	return out
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
