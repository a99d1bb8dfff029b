package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/parkd/parkd/internal/domain"
	pgxdb "github.com/parkd/parkd/internal/postgres"
	"github.com/parkd/parkd/internal/repository"
)

// setupStore connects to the database named by TEST_DATABASE_URL, which
// must already carry the schema from migrations/. Tests use unique names
// so they can run against a shared database without cleanup.
func setupStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxdb.New(context.Background(), pgxdb.Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewStore(pool)
}

func uniq(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestSessionLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	area, err := store.Areas().Create(ctx, uniq("it-area"), 2, 2, 40)
	require.NoError(t, err)

	specs := []SlotSpec{
		{Code: "A1", Row: 0, Col: 0, AllowedClass: domain.ClassCar},
		{Code: "A2", Row: 0, Col: 1, AllowedClass: domain.ClassCar},
	}
	require.NoError(t, store.Areas().UpsertSlotsFromMap(ctx, area.ID, specs))
	require.NoError(t, store.Areas().RecalcSlotCount(ctx, area.ID))

	slots, err := store.Slots().List(ctx, area.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	slot := slots[0].ParkingSlot

	plate := uniq("59A1")
	veh, err := store.Sessions().UpsertVehicle(ctx, plate, domain.ClassCar)
	require.NoError(t, err)

	entryAt := time.Now().UTC().Add(-2 * time.Hour)
	sessionID, err := store.Sessions().Open(ctx, &domain.Session{
		VehicleID:    veh.ID,
		AreaID:       area.ID,
		SlotID:       &slot.ID,
		EntryStaffID: 1,
		EntryAt:      entryAt,
	})
	require.NoError(t, err)

	require.NoError(t, store.Slots().MarkOccupied(ctx, slot.ID))
	require.NoError(t, store.Areas().IncrementCount(ctx, area.ID))

	open, err := store.Sessions().HasOpenByPlate(ctx, plate)
	require.NoError(t, err)
	require.True(t, open)

	got, err := store.Areas().Get(ctx, area.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentCount)
	require.Equal(t, 2, got.SlotCount)

	occupied, err := store.Areas().CountOccupied(ctx, area.ID)
	require.NoError(t, err)
	require.Equal(t, 1, occupied)

	// Occupying the same slot twice must fail on the status guard.
	err = store.Slots().MarkOccupied(ctx, slot.ID)
	require.ErrorIs(t, err, repository.ErrSlotUnavailable)

	amount := int64(20)
	fee := domain.FeeResult{Hours: 2, Amount: &amount}
	require.NoError(t, store.Sessions().Close(ctx, sessionID, time.Now().UTC(), 1, nil, fee))

	// A second close must not double-bill.
	err = store.Sessions().Close(ctx, sessionID, time.Now().UTC(), 1, nil, fee)
	require.ErrorIs(t, err, repository.ErrAlreadyClosed)

	open, err = store.Sessions().HasOpenByPlate(ctx, plate)
	require.NoError(t, err)
	require.False(t, open)

	require.NoError(t, store.Slots().MarkEmpty(ctx, slot.ID))

	clamped, err := store.Areas().DecrementCount(ctx, area.ID)
	require.NoError(t, err)
	require.False(t, clamped)

	// The counter never goes below zero; a second release reports the clamp.
	clamped, err = store.Areas().DecrementCount(ctx, area.ID)
	require.NoError(t, err)
	require.True(t, clamped)
}

// TestConcurrentOccupySingleWinner races several takers for one slot.
// The conditional status flip admits exactly one of them.
func TestConcurrentOccupySingleWinner(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	area, err := store.Areas().Create(ctx, uniq("it-race"), 1, 1, 40)
	require.NoError(t, err)

	specs := []SlotSpec{{Code: "R1", Row: 0, Col: 0, AllowedClass: domain.ClassCar}}
	require.NoError(t, store.Areas().UpsertSlotsFromMap(ctx, area.ID, specs))

	slots, err := store.Slots().List(ctx, area.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	slotID := slots[0].ID

	const takers = 8

	var won atomic.Int32
	g, gCtx := errgroup.WithContext(ctx)
	for range takers {
		g.Go(func() error {
			err := store.Slots().MarkOccupied(gCtx, slotID)
			if err == nil {
				won.Add(1)
				return nil
			}
			if errors.Is(err, repository.ErrSlotUnavailable) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), won.Load())
}

func TestOpenByPlateNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Sessions().OpenByPlate(context.Background(), uniq("NOPE"), false)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

// Two open sessions bound to one slot is a broken invariant the lookup
// must report, not resolve by picking one.
func TestOpenBySlotDuplicateIsIntegrityFault(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	area, err := store.Areas().Create(ctx, uniq("it-dup"), 1, 1, 40)
	require.NoError(t, err)

	specs := []SlotSpec{{Code: "D1", Row: 0, Col: 0, AllowedClass: domain.ClassCar}}
	require.NoError(t, store.Areas().UpsertSlotsFromMap(ctx, area.ID, specs))

	slots, err := store.Slots().List(ctx, area.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	slotID := slots[0].ID

	for range 2 {
		veh, err := store.Sessions().UpsertVehicle(ctx, uniq("53C1"), domain.ClassCar)
		require.NoError(t, err)

		_, err = store.Sessions().Open(ctx, &domain.Session{
			VehicleID:    veh.ID,
			AreaID:       area.ID,
			SlotID:       &slotID,
			EntryStaffID: 1,
			EntryAt:      time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	_, err = store.Sessions().OpenBySlotForUpdate(ctx, slotID)
	require.ErrorIs(t, err, repository.ErrIntegrity)
}

func TestUpsertVehicleLastClassWins(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	plate := uniq("51B2")

	first, err := store.Sessions().UpsertVehicle(ctx, plate, domain.ClassCar)
	require.NoError(t, err)

	second, err := store.Sessions().UpsertVehicle(ctx, plate, domain.ClassMotorbike)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, domain.ClassMotorbike, second.Class)
}
