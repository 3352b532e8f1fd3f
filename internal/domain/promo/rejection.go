package promo

import "github.com/go-faster/errors"

// Reason is a machine-readable cause for a rejected promotion.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonInactive        Reason = "inactive"
	ReasonNotYetValid     Reason = "not_yet_valid"
	ReasonExpired         Reason = "expired"
	ReasonExhausted       Reason = "exhausted"
	ReasonTicketType      Reason = "ticket_type_not_in_cart"
	ReasonZeroValue       Reason = "zero_value"
	ReasonEmptyCart       Reason = "empty_cart"
	ReasonNoEligibleItems Reason = "no_eligible_items"
)

var messages = map[Reason]string{
	ReasonNotFound:        "Code not found",
	ReasonInactive:        "Code is not active",
	ReasonNotYetValid:     "Code is not valid yet",
	ReasonExpired:         "Code has expired",
	ReasonExhausted:       "Code has no uses left",
	ReasonTicketType:      "Code does not apply to the selected tickets",
	ReasonZeroValue:       "Code gives no discount for this cart",
	ReasonEmptyCart:       "Cart is empty",
	ReasonNoEligibleItems: "Code does not apply to the selected tickets",
}

// Message returns the buyer-facing text for the reason.
func (r Reason) Message() string {
	if m, ok := messages[r]; ok {
		return m
	}
	return "Code cannot be applied"
}

// ErrRejected matches every *Rejection via errors.Is.
var ErrRejected = errors.New("promotion rejected")

// Rejection is a recoverable validation failure. The buyer can fix the code
// or continue without it.
type Rejection struct {
	Reason Reason
}

func (e *Rejection) Error() string {
	return "promotion rejected: " + string(e.Reason)
}

func (e *Rejection) Is(target error) bool { return target == ErrRejected }

func reject(r Reason) error { return &Rejection{Reason: r} }

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}
