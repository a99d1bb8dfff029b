// Package monthly manages subscription tickets: issuing, renewal, and
// the periodic expiry-notification scan. Delivery of the notification
// text is behind the Notifier interface; the engine only decides who to
// notify and records that it happened.
package monthly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/plate"
	"github.com/parkd/parkd/internal/repository"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	"github.com/parkd/parkd/internal/uow"
)

// Notifier delivers an expiry warning for one ticket.
type Notifier interface {
	NotifyExpiring(ctx context.Context, t domain.MonthlyTicket, daysLeft int) error
}

// LogNotifier is the default Notifier: it only logs. Real delivery
// (email, SMS) plugs in behind the same interface.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) NotifyExpiring(_ context.Context, t domain.MonthlyTicket, daysLeft int) error {
	n.Log.Info("monthly ticket expiring",
		"ticket_id", t.ID,
		"plate", t.Plate,
		"customer", t.CustomerName,
		"email", t.Email,
		"end_at", t.EndAt,
		"days_left", daysLeft,
	)
	return nil
}

type Config struct {
	NotifyDaysBefore int
}

type Service struct {
	store    *postgresrepo.Store
	uow      *uow.UoW
	notifier Notifier
	cfg      Config
	log      *slog.Logger
}

func New(store *postgresrepo.Store, notifier Notifier, cfg Config, log *slog.Logger) *Service {
	if cfg.NotifyDaysBefore <= 0 {
		cfg.NotifyDaysBefore = 7
	}

	if notifier == nil {
		notifier = LogNotifier{Log: log}
	}

	return &Service{
		store:    store,
		uow:      uow.NewUoW(store),
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

type IssueParams struct {
	Plate        string
	Class        domain.VehicleClass
	CustomerName string
	Phone        string
	IDNumber     string
	Email        string
	AreaID       *int64
	StartAt      time.Time
	Months       int
	// PricePerMonth overrides the rule's monthly rate when positive.
	PricePerMonth int64
	StaffID       int64
	Note          *string
}

// Issue sells a new monthly ticket and records the payment, one
// transaction. The price comes from the active pricing rule's monthly
// rate unless the caller overrides it.
//
// Returns:
//   - error: monthly.ErrTicketOverlap if an active ticket already covers
//     part of the window.
//   - error: monthly.ErrNoMonthlyPrice if no price can be resolved.
func (s *Service) Issue(ctx context.Context, p IssueParams) (*domain.MonthlyTicket, error) {
	const op = "service.monthly.Issue"

	normalized := plate.Normalize(p.Plate)
	if err := plate.Validate(normalized); err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	if p.Months <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidDuration)
	}

	endAt := p.StartAt.AddDate(0, p.Months, 0)

	var out *domain.MonthlyTicket

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		sessions := s.store.Sessions().With(tx)
		pricing := s.store.Pricing().With(tx)

		vehicle, err := sessions.UpsertVehicle(ctx, normalized, p.Class)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		overlap, err := pricing.HasOverlappingTicket(ctx, vehicle.ID, p.StartAt, endAt)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if overlap {
			return fmt.Errorf("%s:%w", op, ErrTicketOverlap)
		}

		perMonth := p.PricePerMonth
		if perMonth <= 0 {
			perMonth, err = s.monthlyRate(ctx, pricing, p.Class, p.AreaID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}
		total := perMonth * int64(p.Months)

		ticket := &domain.MonthlyTicket{
			VehicleID:    vehicle.ID,
			CustomerName: p.CustomerName,
			Phone:        p.Phone,
			IDNumber:     p.IDNumber,
			Email:        p.Email,
			AreaID:       p.AreaID,
			StartAt:      p.StartAt,
			EndAt:        endAt,
			Price:        total,
			Note:         p.Note,
		}

		ticketID, err := pricing.InsertTicket(ctx, ticket)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		payment := &domain.PaymentRecord{
			ID:          uuid.New(),
			VehicleID:   vehicle.ID,
			AreaID:      p.AreaID,
			TicketID:    ticketID,
			StaffID:     &p.StaffID,
			Amount:      total,
			Months:      p.Months,
			Description: fmt.Sprintf("monthly ticket %s x%d", normalized, p.Months),
		}
		if err := pricing.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		out, err = pricing.GetTicket(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Renew extends a ticket by whole months and records the payment. The
// extension starts from the current end of validity, or from now when
// the ticket already lapsed.
func (s *Service) Renew(ctx context.Context, ticketID int64, months int, pricePerMonth int64, staffID int64) (*domain.MonthlyTicket, error) {
	const op = "service.monthly.Renew"

	if months <= 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidDuration)
	}

	var out *domain.MonthlyTicket

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		pricing := s.store.Pricing().With(tx)

		ticket, err := pricing.GetTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrTicketNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		perMonth := pricePerMonth
		if perMonth <= 0 {
			perMonth, err = s.monthlyRate(ctx, pricing, ticket.Class, ticket.AreaID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}
		total := perMonth * int64(months)

		from := ticket.EndAt
		if now := time.Now().UTC(); from.Before(now) {
			from = now
		}
		newEnd := from.AddDate(0, months, 0)

		if err := pricing.ExtendTicket(ctx, ticketID, newEnd, ticket.Price+total); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		payment := &domain.PaymentRecord{
			ID:          uuid.New(),
			VehicleID:   ticket.VehicleID,
			AreaID:      ticket.AreaID,
			TicketID:    ticket.ID,
			StaffID:     &staffID,
			Amount:      total,
			Months:      months,
			Description: fmt.Sprintf("renewal %s x%d", ticket.Plate, months),
		}
		if err := pricing.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		out, err = pricing.GetTicket(ctx, ticketID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Service) monthlyRate(
	ctx context.Context,
	pricing *postgresrepo.PricingRepo,
	class domain.VehicleClass,
	areaID *int64,
) (int64, error) {
	if areaID == nil {
		return 0, ErrNoMonthlyPrice
	}

	rule, err := pricing.ActiveRule(ctx, class, *areaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrNoMonthlyPrice
		}
		return 0, err
	}
	if rule.MonthlyPrice == nil {
		return 0, ErrNoMonthlyPrice
	}

	return *rule.MonthlyPrice, nil
}

// Deactivate turns a ticket off without refunding.
func (s *Service) Deactivate(ctx context.Context, ticketID int64) error {
	const op = "service.monthly.Deactivate"

	if err := s.store.Pricing().SetTicketActive(ctx, ticketID, false); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// List returns tickets matching an optional search and window.
func (s *Service) List(ctx context.Context, q string, from, to *time.Time) ([]domain.MonthlyTicket, error) {
	const op = "service.monthly.List"

	out, err := s.store.Pricing().ListTickets(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// NotifyExpiring finds active tickets ending within the configured
// window, notifies each holder once per end date, and records the fact.
// Notification failures skip the record so a later scan retries.
//
// Returns the number of notifications delivered.
func (s *Service) NotifyExpiring(ctx context.Context) (int, error) {
	const op = "service.monthly.NotifyExpiring"

	now := time.Now().UTC()
	window := time.Duration(s.cfg.NotifyDaysBefore) * 24 * time.Hour

	tickets, err := s.store.Pricing().ExpiringTickets(ctx, now, window)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	sent := 0
	for _, t := range tickets {
		daysLeft := int(t.EndAt.Sub(now).Hours() / 24)
		if daysLeft < 0 {
			daysLeft = 0
		}

		if err := s.notifier.NotifyExpiring(ctx, t, daysLeft); err != nil {
			s.log.Error("expiry notification failed",
				"ticket_id", t.ID, "plate", t.Plate, "error", err)
			continue
		}

		if err := s.store.Pricing().MarkNotified(ctx, t.ID, t.EndAt); err != nil {
			s.log.Error("failed to record notification",
				"ticket_id", t.ID, "error", err)
			continue
		}
		sent++
	}

	return sent, nil
}
