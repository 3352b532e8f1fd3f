package ticket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Scan is a ticket code read at an access point by an account's staff.
type Scan struct {
	AccountID     int64
	Code          string
	AccessPointID *int64
	Note          string
	IP            string
	UserAgent     string
}

// Outcome is the answer shown to door staff.
type Outcome struct {
	Result  Result
	Ticket  *Ticket
	Message string
}

// Service validates, cancels and reissues tickets.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a ticket Service.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Validate admits the ticket behind scan.Code at most once. The ticket row is
// locked so two gates scanning the same code cannot both succeed. Every scan
// is logged, including unknown codes.
func (s *Service) Validate(ctx context.Context, scan Scan) (*Outcome, error) {
	var out *Outcome
	err := s.store.WithTx(ctx, func(tx Tx) error {
		now := s.now()
		entry := LogEntry{
			AccountID:     scan.AccountID,
			AccessPointID: scan.AccessPointID,
			ScannedCode:   scan.Code,
			Note:          scan.Note,
			IP:            scan.IP,
			UserAgent:     scan.UserAgent,
			CreatedAt:     now,
		}

		var err error
		out, err = s.validate(ctx, tx, scan, now)
		if err != nil {
			return err
		}

		entry.Result = out.Result
		if out.Ticket != nil {
			entry.TicketID = &out.Ticket.ID
		}
		if err := tx.LogValidation(ctx, entry); err != nil {
			return errors.Wrap(err, "log validation")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) validate(ctx context.Context, tx Tx, scan Scan, now time.Time) (*Outcome, error) {
	if _, err := uuid.Parse(scan.Code); err != nil {
		return &Outcome{Result: ResultNotFound, Message: "Ticket not found"}, nil
	}

	t, err := tx.LockTicket(ctx, scan.Code)
	switch {
	case errors.Is(err, ErrNotFound):
		return &Outcome{Result: ResultNotFound, Message: "Ticket not found"}, nil
	case err != nil:
		return nil, errors.Wrap(err, "lock ticket")
	}

	if t.AccountID != scan.AccountID {
		// Never echo another account's ticket details.
		return &Outcome{Result: ResultDenied, Message: "Ticket is not valid for this account"}, nil
	}

	if scan.AccessPointID != nil {
		ap, err := tx.GetAccessPoint(ctx, *scan.AccessPointID)
		switch {
		case errors.Is(err, ErrNotFound):
			return &Outcome{Result: ResultDenied, Ticket: t, Message: "Unknown access point"}, nil
		case err != nil:
			return nil, errors.Wrap(err, "get access point")
		}
		if ap.AccountID != t.AccountID || ap.EventID != t.EventID {
			return &Outcome{Result: ResultDenied, Ticket: t, Message: "Ticket is not valid at this access point"}, nil
		}
	}

	switch t.Status {
	case StatusVoid:
		return &Outcome{Result: ResultDenied, Ticket: t, Message: "Ticket was voided"}, nil
	case StatusUsed:
		return &Outcome{Result: ResultAlreadyUsed, Ticket: t, Message: "Ticket already used"}, nil
	}

	if err := tx.MarkUsed(ctx, t.ID, now); err != nil {
		return nil, errors.Wrap(err, "mark used")
	}
	t.Status = StatusUsed
	t.UsedAt = &now
	return &Outcome{Result: ResultOK, Ticket: t, Message: "Welcome"}, nil
}

// Reissue voids an unused ticket and issues a replacement with a new code.
func (s *Service) Reissue(ctx context.Context, accountID int64, code, actor string) (*Ticket, error) {
	if _, err := uuid.Parse(code); err != nil {
		return nil, ErrNotFound
	}

	var replacement *Ticket
	err := s.store.WithTx(ctx, func(tx Tx) error {
		old, err := tx.LockTicket(ctx, code)
		if err != nil {
			return err
		}
		if old.AccountID != accountID {
			return ErrNotFound
		}
		if old.Status != StatusAvailable {
			return ErrNotReissuable
		}

		t := *old
		t.ID = 0
		t.Code = uuid.New().String()
		t.UsedAt = nil
		t.ReplacedBy = nil
		if err := tx.Issue(ctx, &t); err != nil {
			return errors.Wrap(err, "issue ticket")
		}
		if err := tx.Void(ctx, old.ID, &t.ID); err != nil {
			return errors.Wrap(err, "void ticket")
		}
		if err := tx.LogAction(ctx, ActionLog{
			TicketID:  old.ID,
			Action:    "reissue",
			Actor:     actor,
			Detail:    "replaced by " + t.Code,
			CreatedAt: s.now(),
		}); err != nil {
			return errors.Wrap(err, "log action")
		}
		replacement = &t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// Cancel voids the ticket behind code so it no longer admits anyone. A ticket
// that is already void is returned unchanged and nothing is logged.
func (s *Service) Cancel(ctx context.Context, accountID int64, code, actor, reason string) (*Ticket, error) {
	if _, err := uuid.Parse(code); err != nil {
		return nil, ErrNotFound
	}

	var out *Ticket
	err := s.store.WithTx(ctx, func(tx Tx) error {
		t, err := tx.LockTicket(ctx, code)
		if err != nil {
			return err
		}
		if t.AccountID != accountID {
			return ErrNotFound
		}
		out = t
		if t.Status == StatusVoid {
			return nil
		}

		if err := tx.Void(ctx, t.ID, nil); err != nil {
			return errors.Wrap(err, "void ticket")
		}
		if err := tx.LogAction(ctx, ActionLog{
			TicketID:  t.ID,
			Action:    "cancel",
			Actor:     actor,
			Detail:    reason,
			CreatedAt: s.now(),
		}); err != nil {
			return errors.Wrap(err, "log action")
		}
		t.Status = StatusVoid
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
