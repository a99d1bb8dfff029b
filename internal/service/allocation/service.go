// Package allocation maintains the bijection between occupied slots and
// open sessions. Every mutation runs in one serializable transaction
// with row locks taken in ascending-id order.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parkd/parkd/internal/domain"
	"github.com/parkd/parkd/internal/plate"
	redisx "github.com/parkd/parkd/internal/redis"
	"github.com/parkd/parkd/internal/repository"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	redisrepo "github.com/parkd/parkd/internal/repository/redis"
	"github.com/parkd/parkd/internal/service/billing"
	"github.com/parkd/parkd/internal/uow"
)

type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	pubsub  *redisx.AreasPubSub
	limiter *redisrepo.SlidingWindowLimiter
	billing *billing.Service
	uow     *uow.UoW
	log     *slog.Logger
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	pubsub *redisx.AreasPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	billingSvc *billing.Service,
	log *slog.Logger,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		billing: billingSvc,
		uow:     uow.NewUoW(store),
		log:     log,
	}
}

// announce invalidates the cached area views and publishes the change.
// Both collaborators are optional; the engine runs without redis.
func (s *Service) announce(ctx context.Context, areaID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateArea(ctx, areaID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishAreaChanged(ctx, areaID)
	}
}

type EntryParams struct {
	Plate           string
	Class           domain.VehicleClass
	AreaID          int64
	PreferredSlotID *int64
	// NoSlot opens the session without binding a slot; the vehicle can
	// be placed later with AssignSession.
	NoSlot     bool
	StaffID    int64
	EntryImage *string
	RLKey      string
}

type EntryResult struct {
	SessionID int64
	Vehicle   *domain.Vehicle
	Slot      *domain.ParkingSlot
	EntryAt   time.Time
}

// Entry admits a vehicle: upserts the vehicle record, reserves a slot,
// opens the session, and bumps the area counter, all in one transaction.
//
// Returns:
//   - error: allocation.ErrDuplicateActiveSession if the vehicle is
//     already inside.
//   - error: allocation.ErrNoCapacity if no matching slot is free.
//   - error: allocation.ErrSlotTaken if the preferred slot was not empty.
func (s *Service) Entry(ctx context.Context, p EntryParams) (*EntryResult, error) {
	const op = "service.allocation.Entry"

	normalized := plate.Normalize(p.Plate)
	if err := plate.Validate(normalized); err != nil {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	if s.limiter != nil && p.RLKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, p.RLKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: retry in %s:%w", op, retry, ErrRateLimited)
		}
	}

	res := &EntryResult{EntryAt: time.Now().UTC()}

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		areas := s.store.Areas().With(tx)
		slots := s.store.Slots().With(tx)
		sessions := s.store.Sessions().With(tx)

		area, err := areas.GetForUpdate(ctx, p.AreaID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrAreaNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		if !area.IsActive {
			return fmt.Errorf("%s:%w", op, ErrAreaInactive)
		}

		vehicle, err := sessions.UpsertVehicle(ctx, normalized, p.Class)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		res.Vehicle = vehicle

		open, err := sessions.HasOpenByPlate(ctx, normalized)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if open {
			return fmt.Errorf("%s:%w", op, ErrDuplicateActiveSession)
		}

		var slot *domain.ParkingSlot
		if !p.NoSlot {
			slot, err = s.pickSlot(ctx, slots, area.ID, p.Class, p.PreferredSlotID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			if err := slots.MarkOccupied(ctx, slot.ID); err != nil {
				if errors.Is(err, repository.ErrSlotUnavailable) {
					return fmt.Errorf("%s:%w", op, ErrSlotTaken)
				}
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		sess := &domain.Session{
			VehicleID:    vehicle.ID,
			AreaID:       area.ID,
			EntryStaffID: p.StaffID,
			EntryAt:      res.EntryAt,
			EntryImage:   p.EntryImage,
		}
		if slot != nil {
			sess.SlotID = &slot.ID
		}

		sessionID, err := sessions.Open(ctx, sess)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		res.SessionID = sessionID
		res.Slot = slot

		if slot != nil {
			if err := areas.IncrementCount(ctx, area.ID); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			ev := &domain.SlotEvent{
				SessionID: sessionID,
				VehicleID: &vehicle.ID,
				AreaID:    &area.ID,
				Type:      domain.EventAssign,
				ToSlotID:  &slot.ID,
				StaffID:   &p.StaffID,
			}
			if err := s.store.Events().With(tx).Insert(ctx, ev); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(func(ctx context.Context) { s.announce(ctx, area.ID) })

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (s *Service) pickSlot(
	ctx context.Context,
	slots *postgresrepo.SlotRepo,
	areaID int64,
	class domain.VehicleClass,
	preferredID *int64,
) (*domain.ParkingSlot, error) {
	if preferredID == nil {
		slot, err := slots.PickEmptyForUpdate(ctx, areaID, class)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, ErrNoCapacity
			}
			return nil, err
		}
		return slot, nil
	}

	slot, err := slots.GetForUpdate(ctx, *preferredID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	switch {
	case slot.AreaID != areaID:
		return nil, ErrDifferentArea
	case slot.Status != domain.SlotEmpty:
		return nil, ErrSlotTaken
	case slot.AllowedClass != class:
		return nil, ErrSlotClassMismatch
	}

	return slot, nil
}

type ExitResult struct {
	SessionID int64
	Vehicle   *domain.Vehicle
	ExitAt    time.Time
	Fee       domain.FeeResult
}

// Exit closes the open session for a plate: prices the visit, writes the
// exit fields, frees the slot, and drops the area counter.
//
// Returns:
//   - error: allocation.ErrSessionNotFound if the plate has no open session.
//   - error: repository.ErrIntegrity if more than one open session exists.
func (s *Service) Exit(
	ctx context.Context,
	rawPlate string,
	staffID int64,
	exitImage *string,
) (*ExitResult, error) {
	const op = "service.allocation.Exit"

	normalized := plate.Normalize(rawPlate)
	if normalized == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	res := &ExitResult{ExitAt: time.Now().UTC()}

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		sessions := s.store.Sessions().With(tx)

		sess, err := sessions.OpenByPlate(ctx, normalized, true)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSessionNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		res.SessionID = sess.ID

		vehicle, err := sessions.GetVehicle(ctx, sess.VehicleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		res.Vehicle = vehicle

		fee, err := s.billing.ForVisit(ctx, tx,
			vehicle.ID, vehicle.Class, sess.AreaID, sess.EntryAt, res.ExitAt)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		res.Fee = fee

		if err := sessions.Close(ctx, sess.ID, res.ExitAt, staffID, exitImage, fee); err != nil {
			if errors.Is(err, repository.ErrAlreadyClosed) {
				return fmt.Errorf("%s:%w", op, ErrAlreadyClosed)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if sess.SlotID != nil {
			if err := s.freeSlot(ctx, tx, sess.AreaID, *sess.SlotID); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(func(ctx context.Context) { s.announce(ctx, sess.AreaID) })

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// freeSlot flips a slot back to EMPTY and decrements the area counter.
// A counter already at zero means the invariant was broken before this
// request; the clamp is logged and the exit proceeds.
func (s *Service) freeSlot(ctx context.Context, tx postgresrepo.DB, areaID, slotID int64) error {
	if err := s.store.Slots().With(tx).MarkEmpty(ctx, slotID); err != nil {
		return err
	}

	clamped, err := s.store.Areas().With(tx).DecrementCount(ctx, areaID)
	if err != nil {
		return err
	}
	if clamped {
		s.log.Warn("area counter was already zero on release",
			"area_id", areaID, "slot_id", slotID)
	}

	return nil
}

// Quote prices the open session for a plate as of now, without mutating
// anything.
func (s *Service) Quote(ctx context.Context, rawPlate string) (*ExitResult, error) {
	const op = "service.allocation.Quote"

	normalized := plate.Normalize(rawPlate)
	if normalized == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidPlate)
	}

	sessions := s.store.Sessions()

	sess, err := sessions.OpenByPlate(ctx, normalized, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	vehicle, err := sessions.GetVehicle(ctx, sess.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now().UTC()
	fee, err := s.billing.ForVisit(ctx, nil,
		vehicle.ID, vehicle.Class, sess.AreaID, sess.EntryAt, now)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &ExitResult{
		SessionID: sess.ID,
		Vehicle:   vehicle,
		ExitAt:    now,
		Fee:       fee,
	}, nil
}

// SwapOccupiedSlots exchanges the sessions of two occupied slots. Both
// slots and both sessions are locked before any write; the slots keep
// their OCCUPIED status and one SWAP event is recorded per session.
func (s *Service) SwapOccupiedSlots(ctx context.Context, slotAID, slotBID, staffID int64) error {
	const op = "service.allocation.SwapOccupiedSlots"

	if slotAID == slotBID {
		return fmt.Errorf("%s:%w", op, ErrSameSlot)
	}

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		slots := s.store.Slots().With(tx)
		sessions := s.store.Sessions().With(tx)

		a, b, err := slots.LockPair(ctx, slotAID, slotBID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		switch {
		case a.AreaID != b.AreaID:
			return fmt.Errorf("%s:%w", op, ErrDifferentArea)
		case a.AllowedClass != b.AllowedClass:
			return fmt.Errorf("%s:%w", op, ErrSlotClassMismatch)
		case a.Status != domain.SlotOccupied || b.Status != domain.SlotOccupied:
			return fmt.Errorf("%s:%w", op, ErrNotBothOccupied)
		}

		// Session locks follow the same ascending-slot order as the
		// slot locks.
		first, second := a, b
		if second.ID < first.ID {
			first, second = second, first
		}

		sessFirst, err := sessions.OpenBySlotForUpdate(ctx, first.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrMissingActiveSession)
			}
			return fmt.Errorf("%s:%w", op, err)
		}
		sessSecond, err := sessions.OpenBySlotForUpdate(ctx, second.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrMissingActiveSession)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := sessions.SetSlot(ctx, sessFirst.ID, &second.ID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if err := sessions.SetSlot(ctx, sessSecond.ID, &first.ID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		evFirst := &domain.SlotEvent{
			SessionID:  sessFirst.ID,
			VehicleID:  &sessFirst.VehicleID,
			AreaID:     &a.AreaID,
			Type:       domain.EventSwap,
			FromSlotID: &first.ID,
			ToSlotID:   &second.ID,
			StaffID:    &staffID,
		}
		evSecond := &domain.SlotEvent{
			SessionID:  sessSecond.ID,
			VehicleID:  &sessSecond.VehicleID,
			AreaID:     &a.AreaID,
			Type:       domain.EventSwap,
			FromSlotID: &second.ID,
			ToSlotID:   &first.ID,
			StaffID:    &staffID,
		}
		if err := s.store.Events().With(tx).InsertPair(ctx, evFirst, evSecond); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) { s.announce(ctx, a.AreaID) })

		return nil
	})
}

// ReleaseSlot force-frees a slot. Any open session bound to it is
// unbound (the vehicle stays inside, slot-less) and the slot goes back
// to EMPTY whatever its previous status was.
func (s *Service) ReleaseSlot(ctx context.Context, slotID, staffID int64) error {
	const op = "service.allocation.ReleaseSlot"

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		slots := s.store.Slots().With(tx)
		sessions := s.store.Sessions().With(tx)

		slot, err := slots.GetForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		sess, err := sessions.OpenBySlotForUpdate(ctx, slot.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, err)
		}

		if sess != nil {
			if err := sessions.SetSlot(ctx, sess.ID, nil); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}

			ev := &domain.SlotEvent{
				SessionID:  sess.ID,
				VehicleID:  &sess.VehicleID,
				AreaID:     &slot.AreaID,
				Type:       domain.EventRelease,
				FromSlotID: &slot.ID,
				StaffID:    &staffID,
			}
			if err := s.store.Events().With(tx).Insert(ctx, ev); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if slot.Status == domain.SlotOccupied {
			clamped, err := s.store.Areas().With(tx).DecrementCount(ctx, slot.AreaID)
			if err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if clamped {
				s.log.Warn("area counter was already zero on release",
					"area_id", slot.AreaID, "slot_id", slot.ID)
			}
		}

		if err := slots.MarkEmpty(ctx, slot.ID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) { s.announce(ctx, slot.AreaID) })

		return nil
	})
}

// AssignSession binds an open slot-less session to an empty slot of the
// matching class and records an ASSIGN event.
func (s *Service) AssignSession(ctx context.Context, slotID, sessionID, staffID int64) error {
	const op = "service.allocation.AssignSession"

	return s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		slots := s.store.Slots().With(tx)
		sessions := s.store.Sessions().With(tx)

		slot, err := slots.GetForUpdate(ctx, slotID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSlotNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		sess, err := sessions.GetForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrSessionInvalid)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		switch {
		case !sess.Open():
			return fmt.Errorf("%s:%w", op, ErrSessionInvalid)
		case sess.SlotID != nil:
			return fmt.Errorf("%s:%w", op, ErrAlreadyAssigned)
		case sess.AreaID != slot.AreaID:
			return fmt.Errorf("%s:%w", op, ErrDifferentArea)
		}

		vehicle, err := sessions.GetVehicle(ctx, sess.VehicleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if vehicle.Class != slot.AllowedClass {
			return fmt.Errorf("%s:%w", op, ErrSlotClassMismatch)
		}

		if err := slots.MarkOccupied(ctx, slot.ID); err != nil {
			if errors.Is(err, repository.ErrSlotUnavailable) {
				return fmt.Errorf("%s:%w", op, ErrSlotTaken)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := sessions.SetSlot(ctx, sess.ID, &slot.ID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := s.store.Areas().With(tx).IncrementCount(ctx, slot.AreaID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		ev := &domain.SlotEvent{
			SessionID: sess.ID,
			VehicleID: &sess.VehicleID,
			AreaID:    &slot.AreaID,
			Type:      domain.EventAssign,
			ToSlotID:  &slot.ID,
			StaffID:   &staffID,
		}
		if err := s.store.Events().With(tx).Insert(ctx, ev); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) { s.announce(ctx, slot.AreaID) })

		return nil
	})
}

// ListUnassigned returns open sessions awaiting a slot.
func (s *Service) ListUnassigned(ctx context.Context, areaID *int64) ([]domain.UnassignedVehicle, error) {
	const op = "service.allocation.ListUnassigned"

	out, err := s.store.Sessions().ListUnassigned(ctx, areaID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
