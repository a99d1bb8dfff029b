// Package ledger serves the read paths: session history, occupancy
// views, the slot event trail, and payment listings. Hot occupancy
// reads go through the cache.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/plate"
	redisx "github.com/parkd/parkd/internal/redis"
	"github.com/parkd/parkd/internal/repository"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	redisrepo "github.com/parkd/parkd/internal/repository/redis"
)

type Config struct {
	AvailabilityTTL time.Duration
	SlotMapTTL      time.Duration
	DefaultPage     int
	MaxPage         int
}

type Service struct {
	store *postgresrepo.Store
	cache *redisrepo.Cache
	cfg   Config
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}

	if cfg.SlotMapTTL <= 0 {
		cfg.SlotMapTTL = 30 * time.Second
	}

	if cfg.DefaultPage <= 0 {
		cfg.DefaultPage = 100
	}

	if cfg.MaxPage <= 0 {
		cfg.MaxPage = 500
	}

	return &Service{
		store: store,
		cache: cache,
		cfg:   cfg,
	}
}

// FindOpen returns the open session for a plate.
//
// Returns:
//   - error: ledger.ErrSessionNotFound if the plate has no open session.
//   - error: repository.ErrIntegrity if more than one open session exists.
func (s *Service) FindOpen(ctx context.Context, rawPlate string) (*domain.Session, error) {
	const op = "service.ledger.FindOpen"

	sess, err := s.store.Sessions().OpenByPlate(ctx, plate.Normalize(rawPlate), false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return sess, nil
}

// ListOpen returns all vehicles currently inside, newest entry first.
func (s *Service) ListOpen(ctx context.Context) ([]domain.SessionWithRefs, error) {
	const op = "service.ledger.ListOpen"

	out, err := s.store.Sessions().ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListHistory returns the most recent sessions, open or closed.
func (s *Service) ListHistory(ctx context.Context, limit int) ([]domain.SessionWithRefs, error) {
	const op = "service.ledger.ListHistory"

	if limit <= 0 {
		limit = s.cfg.DefaultPage
	}

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	out, err := s.store.Sessions().ListHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// Availability returns the cached occupancy counts for an area.
//
// Returns:
//   - error: ledger.ErrAreaNotFound if the area does not exist.
func (s *Service) Availability(ctx context.Context, areaID int64) (*domain.AreaCounts, error) {
	const op = "service.ledger.Availability"

	key := redisx.KeyAreaAvailability(areaID)

	counts, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.AvailabilityTTL,
		func(ctx context.Context) (domain.AreaCounts, error) {
			area, err := s.store.Areas().Get(ctx, areaID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.AreaCounts{}, ErrAreaNotFound
				}

				return domain.AreaCounts{}, err
			}

			return domain.AreaCounts{
				ID:           area.ID,
				Name:         area.Name,
				IsActive:     area.IsActive,
				CurrentCount: area.CurrentCount,
				SlotCount:    area.SlotCount,
				UpdatedAt:    area.UpdatedAt,
			}, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &counts, nil
}

// SlotMap returns the cached per-slot occupancy view of an area.
func (s *Service) SlotMap(ctx context.Context, areaID int64) ([]domain.SlotWithPlate, error) {
	const op = "service.ledger.SlotMap"

	key := redisx.KeyAreaSlotMap(areaID)

	slots, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		key,
		s.cfg.SlotMapTTL,
		func(ctx context.Context) ([]domain.SlotWithPlate, error) {
			return s.store.Slots().List(ctx, areaID, nil, nil)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return slots, nil
}

// ListSlots returns slots of an area with optional status/class filters,
// bypassing the cache.
func (s *Service) ListSlots(
	ctx context.Context,
	areaID int64,
	status *domain.SlotStatus,
	class *domain.VehicleClass,
) ([]domain.SlotWithPlate, error) {
	const op = "service.ledger.ListSlots"

	out, err := s.store.Slots().List(ctx, areaID, status, class)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListEvents returns slot events matching the filter.
func (s *Service) ListEvents(ctx context.Context, f postgresrepo.EventFilter) ([]domain.SlotEventWithRefs, error) {
	const op = "service.ledger.ListEvents"

	if f.Limit <= 0 {
		f.Limit = s.cfg.DefaultPage
	}

	if f.Limit > s.cfg.MaxPage {
		f.Limit = s.cfg.MaxPage
	}

	out, err := s.store.Events().List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// EventSummary aggregates event counts per type over a window.
func (s *Service) EventSummary(ctx context.Context, from, to time.Time) (map[domain.SlotEventType]int64, error) {
	const op = "service.ledger.EventSummary"

	out, err := s.store.Events().CountByType(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// ListPayments returns monthly-ticket payment records.
func (s *Service) ListPayments(ctx context.Context, q string, limit int) ([]domain.PaymentRecord, error) {
	const op = "service.ledger.ListPayments"

	if limit > s.cfg.MaxPage {
		limit = s.cfg.MaxPage
	}

	out, err := s.store.Pricing().ListPayments(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
