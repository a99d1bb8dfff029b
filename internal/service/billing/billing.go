// Package billing computes parking fees. Timestamps are stored in UTC;
// day/night classification happens in the facility's civil time zone.
package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/repository"
	postgres "github.com/parkd/parkd/internal/repository/postgres"
)

// Morning shift is [06:00, 18:00) local; night is [18:00, 06:00 next day).
const (
	morningStartHour = 6
	morningEndHour   = 18
)

var ErrExitBeforeEntry = errors.New("exit time before entry time")

// BilledHours is the total duration rounded up to whole hours, with a
// one-hour minimum. Every visit bills at least one hour no matter how
// short.
func BilledHours(entry, exit time.Time) int {
	secs := exit.Sub(entry).Seconds()
	h := int(math.Ceil(secs / 3600))
	if h < 1 {
		h = 1
	}
	return h
}

func isDaytime(local time.Time) bool {
	h := local.Hour()
	return h >= morningStartHour && h < morningEndHour
}

// splitHours walks the billed hours one at a time and classifies each
// hour slice by the local clock at its start.
func splitHours(entryLocal time.Time, hours int) (day, night int) {
	for i := range hours {
		if isDaytime(entryLocal.Add(time.Duration(i) * time.Hour)) {
			day++
		} else {
			night++
		}
	}
	return day, night
}

// countShifts counts the morning and night shifts the stay overlaps.
// Touching a shift for any positive duration counts the whole shift.
// The scan runs from the day before entry to the day after exit so a
// night shift straddling midnight is never missed.
func countShifts(entryLocal, exitLocal time.Time) (morning, night int) {
	if !exitLocal.After(entryLocal) {
		return 0, 0
	}

	loc := entryLocal.Location()
	day := time.Date(entryLocal.Year(), entryLocal.Month(), entryLocal.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -1)
	end := time.Date(exitLocal.Year(), exitLocal.Month(), exitLocal.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, 1)

	for !day.After(end) {
		morningStart := day.Add(morningStartHour * time.Hour)
		morningEnd := day.Add(morningEndHour * time.Hour)
		nightStart := morningEnd
		nightEnd := day.AddDate(0, 0, 1).Add(morningStartHour * time.Hour)

		if morningEnd.After(entryLocal) && morningStart.Before(exitLocal) {
			morning++
		}
		if nightEnd.After(entryLocal) && nightStart.Before(exitLocal) {
			night++
		}

		day = day.AddDate(0, 0, 1)
	}

	return morning, night
}

func i64(v int64) *int64 { return &v }

// Compute prices a visit against one pricing rule. It is pure: no
// monthly-ticket lookup, no persistence.
//
// Under the hourly regime a missing night rate falls back to the day
// rate; under the block regime missing shift prices count as zero.
func Compute(rule *domain.PricingRule, entry, exit time.Time, loc *time.Location) (domain.FeeResult, error) {
	if exit.Before(entry) {
		return domain.FeeResult{}, ErrExitBeforeEntry
	}

	hours := BilledHours(entry, exit)
	entryLocal := entry.In(loc)
	exitLocal := exit.In(loc)

	if rule == nil {
		return domain.FeeResult{Hours: hours}, nil
	}

	res := domain.FeeResult{
		Hours:         hours,
		PricingRuleID: i64(rule.ID),
		Regime:        rule.Regime,
	}

	switch rule.Regime {
	case domain.RegimeHourly:
		dayRate := int64(0)
		if rule.HourlyDay != nil {
			dayRate = *rule.HourlyDay
		}
		nightRate := dayRate
		if rule.HourlyNight != nil {
			nightRate = *rule.HourlyNight
		}

		dayHours, nightHours := splitHours(entryLocal, hours)
		res.MorningShifts = dayHours
		res.NightShifts = nightHours
		res.Amount = i64(int64(dayHours)*dayRate + int64(nightHours)*nightRate)

	case domain.RegimeBlock:
		morningPrice := int64(0)
		if rule.MorningPrice != nil {
			morningPrice = *rule.MorningPrice
		}
		nightPrice := int64(0)
		if rule.NightPrice != nil {
			nightPrice = *rule.NightPrice
		}

		morning, nightShifts := countShifts(entryLocal, exitLocal)
		res.MorningShifts = morning
		res.NightShifts = nightShifts
		res.Amount = i64(int64(morning)*morningPrice + int64(nightShifts)*nightPrice)

	default:
		return domain.FeeResult{}, fmt.Errorf("billing.Compute: unknown regime %q", rule.Regime)
	}

	return res, nil
}

// Service resolves tickets and rules from storage and delegates the
// arithmetic to Compute.
type Service struct {
	store *postgres.Store
	loc   *time.Location
}

func NewService(store *postgres.Store, loc *time.Location) *Service {
	return &Service{store: store, loc: loc}
}

func (s *Service) Location() *time.Location { return s.loc }

// ForVisit prices a visit inside the caller's transaction.
//
// Precedence: an active monthly ticket zeroes the fee; otherwise the
// pricing rule for (class, area) applies; with neither, the amount is
// nil and the visit records as unpriced.
func (s *Service) ForVisit(
	ctx context.Context,
	tx postgres.DB,
	vehicleID int64,
	class domain.VehicleClass,
	areaID int64,
	entryAt, exitAt time.Time,
) (domain.FeeResult, error) {
	const op = "billing.Service.ForVisit"

	if exitAt.Before(entryAt) {
		return domain.FeeResult{}, fmt.Errorf("%s:%w", op, ErrExitBeforeEntry)
	}

	pricing := s.store.Pricing().With(tx)

	ticket, err := pricing.ActiveTicketFor(ctx, vehicleID, exitAt)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.FeeResult{}, fmt.Errorf("%s:%w", op, err)
	}
	if ticket != nil && ticket.Class == class {
		return domain.FeeResult{
			Hours:         BilledHours(entryAt, exitAt),
			Amount:        i64(0),
			MonthlyTicket: true,
			TicketID:      i64(ticket.ID),
		}, nil
	}

	rule, err := pricing.ActiveRule(ctx, class, areaID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Compute(nil, entryAt, exitAt, s.loc)
		}
		return domain.FeeResult{}, fmt.Errorf("%s:%w", op, err)
	}

	fee, err := Compute(rule, entryAt, exitAt, s.loc)
	if err != nil {
		return domain.FeeResult{}, fmt.Errorf("%s:%w", op, err)
	}

	return fee, nil
}
