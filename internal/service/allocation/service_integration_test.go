package allocation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parkd/parkd/internal/domain"
	pgxdb "github.com/parkd/parkd/internal/postgres"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
	"github.com/parkd/parkd/internal/service/billing"
)

// setupService connects to TEST_DATABASE_URL (schema from migrations/
// applied) and builds an engine without the redis collaborators.
func setupService(t *testing.T) (*Service, *postgresrepo.Store) {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxdb.New(context.Background(), pgxdb.Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgresrepo.NewStore(pool)
	billingSvc := billing.NewService(store, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(store, nil, nil, nil, billingSvc, logger), store
}

var plateSeq int

// testPlate builds a unique, format-valid car plate per call.
func testPlate() string {
	plateSeq++
	return fmt.Sprintf("%02dA%06d", 51+plateSeq%40, time.Now().UnixNano()%1000000)
}

// setupArea creates an area with n empty car slots and returns the slot
// ids keyed by code (A1, A2, ...).
func setupArea(t *testing.T, store *postgresrepo.Store, n int) (*domain.ParkingArea, map[string]int64) {
	t.Helper()
	ctx := context.Background()

	area, err := store.Areas().Create(ctx,
		fmt.Sprintf("alloc-%d", time.Now().UnixNano()), 1, n, 40)
	require.NoError(t, err)

	specs := make([]postgresrepo.SlotSpec, 0, n)
	for i := range n {
		specs = append(specs, postgresrepo.SlotSpec{
			Code:         fmt.Sprintf("A%d", i+1),
			Row:          0,
			Col:          i,
			AllowedClass: domain.ClassCar,
		})
	}
	require.NoError(t, store.Areas().UpsertSlotsFromMap(ctx, area.ID, specs))
	require.NoError(t, store.Areas().RecalcSlotCount(ctx, area.ID))

	slots, err := store.Slots().List(ctx, area.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, n)

	byCode := make(map[string]int64, n)
	for _, s := range slots {
		byCode[s.Code] = s.ID
	}
	return area, byCode
}

func (s *Service) mustEnter(t *testing.T, plate string, areaID, slotID int64) *EntryResult {
	t.Helper()

	res, err := s.Entry(context.Background(), EntryParams{
		Plate:           plate,
		Class:           domain.ClassCar,
		AreaID:          areaID,
		PreferredSlotID: &slotID,
		StaffID:         1,
	})
	require.NoError(t, err)
	return res
}

func TestSwapExchangesSessions(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	area, slots := setupArea(t, store, 3)
	plateA, plateB := testPlate(), testPlate()

	svc.mustEnter(t, plateA, area.ID, slots["A1"])
	svc.mustEnter(t, plateB, area.ID, slots["A2"])

	require.NoError(t, svc.SwapOccupiedSlots(ctx, slots["A1"], slots["A2"], 7))

	// Sessions exchanged.
	sessA, err := store.Sessions().OpenByPlate(ctx, plateA, false)
	require.NoError(t, err)
	require.NotNil(t, sessA.SlotID)
	require.Equal(t, slots["A2"], *sessA.SlotID)

	sessB, err := store.Sessions().OpenByPlate(ctx, plateB, false)
	require.NoError(t, err)
	require.NotNil(t, sessB.SlotID)
	require.Equal(t, slots["A1"], *sessB.SlotID)

	// Statuses and the counter unchanged.
	for _, code := range []string{"A1", "A2"} {
		slot, err := store.Slots().Get(ctx, slots[code])
		require.NoError(t, err)
		require.Equal(t, domain.SlotOccupied, slot.Status)
	}
	got, err := store.Areas().Get(ctx, area.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.CurrentCount)

	// Exactly two SWAP audit rows, one per session.
	swap := domain.EventSwap
	events, err := store.Events().List(ctx, postgresrepo.EventFilter{
		AreaID: &area.ID,
		Type:   &swap,
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	sessionIDs := map[int64]bool{}
	for _, e := range events {
		sessionIDs[e.SessionID] = true
	}
	require.True(t, sessionIDs[sessA.ID])
	require.True(t, sessionIDs[sessB.ID])
}

func TestSwapRejections(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	area, slots := setupArea(t, store, 3)
	svc.mustEnter(t, testPlate(), area.ID, slots["A1"])

	err := svc.SwapOccupiedSlots(ctx, slots["A1"], slots["A1"], 1)
	require.ErrorIs(t, err, ErrSameSlot)

	// A2 is still EMPTY.
	err = svc.SwapOccupiedSlots(ctx, slots["A1"], slots["A2"], 1)
	require.ErrorIs(t, err, ErrNotBothOccupied)

	// An occupied slot without an open session is a half-broken state
	// the swap refuses to touch.
	require.NoError(t, store.Slots().MarkOccupied(ctx, slots["A3"]))
	err = svc.SwapOccupiedSlots(ctx, slots["A1"], slots["A3"], 1)
	require.ErrorIs(t, err, ErrMissingActiveSession)
}

func TestReleaseAndAssignRoundTrip(t *testing.T) {
	svc, store := setupService(t)
	ctx := context.Background()

	area, slots := setupArea(t, store, 2)
	plate := testPlate()
	res := svc.mustEnter(t, plate, area.ID, slots["A1"])

	require.NoError(t, svc.ReleaseSlot(ctx, slots["A1"], 2))

	sess, err := store.Sessions().OpenByPlate(ctx, plate, false)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, sess.ID)
	require.Nil(t, sess.SlotID)

	slot, err := store.Slots().Get(ctx, slots["A1"])
	require.NoError(t, err)
	require.Equal(t, domain.SlotEmpty, slot.Status)

	got, err := store.Areas().Get(ctx, area.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.CurrentCount)

	unassigned, err := svc.ListUnassigned(ctx, &area.ID)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	require.Equal(t, sess.ID, unassigned[0].SessionID)

	require.NoError(t, svc.AssignSession(ctx, slots["A2"], sess.ID, 2))

	sess, err = store.Sessions().OpenByPlate(ctx, plate, false)
	require.NoError(t, err)
	require.NotNil(t, sess.SlotID)
	require.Equal(t, slots["A2"], *sess.SlotID)

	got, err = store.Areas().Get(ctx, area.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentCount)

	// Binding it a second time is refused.
	err = svc.AssignSession(ctx, slots["A1"], sess.ID, 2)
	require.ErrorIs(t, err, ErrAlreadyAssigned)

	// One RELEASE row and two ASSIGN rows (entry + re-assign).
	release, assign := domain.EventRelease, domain.EventAssign
	relEvents, err := store.Events().List(ctx, postgresrepo.EventFilter{AreaID: &area.ID, Type: &release})
	require.NoError(t, err)
	require.Len(t, relEvents, 1)
	asgEvents, err := store.Events().List(ctx, postgresrepo.EventFilter{AreaID: &area.ID, Type: &assign})
	require.NoError(t, err)
	require.Len(t, asgEvents, 2)
}
