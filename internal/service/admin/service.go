// Package admin covers area and slot management: creating areas,
// editing map layouts, toggling slots, and maintaining pricing rules.
package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/parkd/parkd/internal/domain"
	redisx "github.com/parkd/parkd/internal/redis"
	"github.com/parkd/parkd/internal/repository"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	redisrepo "github.com/parkd/parkd/internal/repository/redis"
	"github.com/parkd/parkd/internal/uow"
)

type Service struct {
	store  *postgresrepo.Store
	cache  *redisrepo.Cache
	pubsub *redisx.AreasPubSub
	uow    *uow.UoW
}

func New(store *postgresrepo.Store, cache *redisrepo.Cache, pubsub *redisx.AreasPubSub) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		pubsub: pubsub,
		uow:    uow.NewUoW(store),
	}
}

// CreateArea creates an empty parking area.
//
// Returns:
//   - error: admin.ErrAreaConflict if the name is already taken.
func (s *Service) CreateArea(ctx context.Context, name string, mapRows, mapCols, cellSize int) (*domain.ParkingArea, error) {
	const op = "service.admin.CreateArea"

	area, err := s.store.Areas().Create(ctx, name, mapRows, mapCols, cellSize)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrAreaConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return area, nil
}

// GetArea retrieves one area with its layout blob.
func (s *Service) GetArea(ctx context.Context, id int64) (*domain.ParkingArea, error) {
	const op = "service.admin.GetArea"

	area, err := s.store.Areas().Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrAreaNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return area, nil
}

// ListAreas returns all areas with their occupancy tallies.
func (s *Service) ListAreas(ctx context.Context) ([]domain.AreaCounts, error) {
	const op = "service.admin.ListAreas"

	out, err := s.store.Areas().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// SetAreaActive opens or closes an area for new entries. Deactivation
// is refused while any vehicle is still inside.
//
// Returns:
//   - error: admin.ErrAreaOccupied when closing an area with occupied slots.
func (s *Service) SetAreaActive(ctx context.Context, id int64, active bool) error {
	const op = "service.admin.SetAreaActive"

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		if !active {
			occupied, err := s.store.Areas().With(tx).CountOccupied(ctx, id)
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			if occupied > 0 {
				return fmt.Errorf("%s: %w", op, ErrAreaOccupied)
			}
		}

		if err := s.store.Areas().With(tx).SetActive(ctx, id, active); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrAreaNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateArea(ctx, id)
			_ = s.pubsub.PublishAreaChanged(ctx, id)
		})

		return nil
	})

	return err
}

// MapLayout is a parsed area layout: the raw blob the editor round-trips
// plus the slot cells extracted from it.
type MapLayout struct {
	Rows     int
	Cols     int
	CellSize int
	Raw      []byte
	Slots    []postgresrepo.SlotSpec
}

// SetAreaMap replaces an area's layout and reconciles its slot table.
// Slots keyed by (row, col) are upserted; EMPTY slots missing from the
// new layout are deleted. The edit is refused while any slot in the
// area is occupied. Locked or maintenance slots that fell off the
// layout are kept and reported in the leftover count.
//
// Returns:
//   - int64: number of stale non-empty slots the layout no longer covers.
//   - error: admin.ErrInvalidLayout if cells fall outside the grid or
//     repeat a position.
//   - error: admin.ErrAreaOccupied if a vehicle is still inside.
func (s *Service) SetAreaMap(ctx context.Context, areaID int64, layout MapLayout) (int64, error) {
	const op = "service.admin.SetAreaMap"

	if err := validateLayout(layout); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var leftover int64

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		areas := s.store.Areas().With(tx)

		if _, err := areas.GetForUpdate(ctx, areaID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrAreaNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		occupied, err := areas.CountOccupied(ctx, areaID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if occupied > 0 {
			return fmt.Errorf("%s: %w", op, ErrAreaOccupied)
		}

		if err := areas.SetMap(ctx, areaID, layout.Rows, layout.Cols, layout.CellSize, layout.Raw); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := areas.UpsertSlotsFromMap(ctx, areaID, layout.Slots); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if _, err := areas.DeleteEmptySlotsNotInMap(ctx, areaID, layout.Slots); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if err := areas.RecalcSlotCount(ctx, areaID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		stale, err := s.countStaleSlots(ctx, tx, areaID, layout.Slots)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		leftover = stale

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateArea(ctx, areaID)
			_ = s.pubsub.PublishAreaChanged(ctx, areaID)
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return leftover, nil
}

func validateLayout(layout MapLayout) error {
	if layout.Rows <= 0 || layout.Cols <= 0 {
		return ErrInvalidLayout
	}

	seen := make(map[[2]int]struct{}, len(layout.Slots))
	for _, sp := range layout.Slots {
		if sp.Row < 0 || sp.Row >= layout.Rows || sp.Col < 0 || sp.Col >= layout.Cols {
			return ErrInvalidLayout
		}
		if sp.Code == "" {
			return ErrInvalidLayout
		}
		key := [2]int{sp.Row, sp.Col}
		if _, dup := seen[key]; dup {
			return ErrInvalidLayout
		}
		seen[key] = struct{}{}
	}

	return nil
}

// countStaleSlots counts non-empty slots sitting at positions the new
// layout no longer includes.
func (s *Service) countStaleSlots(
	ctx context.Context,
	tx postgresrepo.DB,
	areaID int64,
	specs []postgresrepo.SlotSpec,
) (int64, error) {
	slots, err := s.store.Slots().With(tx).List(ctx, areaID, nil, nil)
	if err != nil {
		return 0, err
	}

	keep := make(map[[2]int]struct{}, len(specs))
	for _, sp := range specs {
		keep[[2]int{sp.Row, sp.Col}] = struct{}{}
	}

	var stale int64
	for _, sl := range slots {
		if _, ok := keep[[2]int{sl.Row, sl.Col}]; !ok && sl.Status != domain.SlotEmpty {
			stale++
		}
	}

	return stale, nil
}

// UpdateSlot patches a slot's administrative fields. Status changes go
// through here for the LOCKED and MAINT transitions.
func (s *Service) UpdateSlot(
	ctx context.Context,
	slotID int64,
	status *domain.SlotStatus,
	allowedClass *domain.VehicleClass,
	code, note *string,
) (*domain.ParkingSlot, error) {
	const op = "service.admin.UpdateSlot"

	var slot *domain.ParkingSlot

	err := s.uow.Do(ctx, func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error {
		var err error
		slot, err = s.store.Slots().With(tx).Update(ctx, slotID, status, allowedClass, code, note)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		after(func(ctx context.Context) {
			_ = s.cache.InvalidateArea(ctx, slot.AreaID)
			_ = s.pubsub.PublishAreaChanged(ctx, slot.AreaID)
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return slot, nil
}

// CreateRule creates a pricing rule.
//
// Returns:
//   - error: admin.ErrRuleConflict if an active rule already covers the
//     same class and area.
func (s *Service) CreateRule(ctx context.Context, rule *domain.PricingRule) (*domain.PricingRule, error) {
	const op = "service.admin.CreateRule"

	out, err := s.store.Pricing().InsertRule(ctx, rule)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%s: %w", op, ErrRuleConflict)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// UpdateRule patches the rates or active flag of a pricing rule.
func (s *Service) UpdateRule(
	ctx context.Context,
	id int64,
	morning, night, monthly, hourlyDay, hourlyNight *int64,
	isActive *bool,
) (*domain.PricingRule, error) {
	const op = "service.admin.UpdateRule"

	out, err := s.store.Pricing().UpdateRule(ctx, id, morning, night, monthly, hourlyDay, hourlyNight, isActive)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrRuleNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// ListRules returns all pricing rules.
func (s *Service) ListRules(ctx context.Context) ([]domain.PricingRule, error) {
	const op = "service.admin.ListRules"

	out, err := s.store.Pricing().ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
