package billing

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parkd/parkd/internal/domain"
	pgxdb "github.com/parkd/parkd/internal/postgres"
	postgresrepo "github.com/parkd/parkd/internal/repository/postgres"
)

func setupStore(t *testing.T) *postgresrepo.Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxdb.New(context.Background(), pgxdb.Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return postgresrepo.NewStore(pool)
}

// A vehicle with an active subscription parks free, whatever rule is
// configured; a visit under a different class falls through to the
// rules again.
func TestForVisitSubscriptionOverridesRule(t *testing.T) {
	store := setupStore(t)
	svc := NewService(store, time.UTC)
	ctx := context.Background()

	area, err := store.Areas().Create(ctx,
		fmt.Sprintf("bill-%d", time.Now().UnixNano()), 1, 1, 40)
	require.NoError(t, err)

	subscriber, err := store.Sessions().UpsertVehicle(ctx,
		fmt.Sprintf("61A%06d", time.Now().UnixNano()%1000000), domain.ClassCar)
	require.NoError(t, err)

	_, err = store.Pricing().InsertRule(ctx, &domain.PricingRule{
		Class:     domain.ClassCar,
		AreaID:    &area.ID,
		Regime:    domain.RegimeHourly,
		HourlyDay: ptr(10),
		IsActive:  true,
	})
	require.NoError(t, err)

	exit := time.Now().UTC()
	entry := exit.Add(-3 * time.Hour)

	ticketID, err := store.Pricing().InsertTicket(ctx, &domain.MonthlyTicket{
		VehicleID: subscriber.ID,
		AreaID:    &area.ID,
		StartAt:   exit.AddDate(0, 0, -1),
		EndAt:     exit.AddDate(0, 1, 0),
		Price:     100,
	})
	require.NoError(t, err)

	fee, err := svc.ForVisit(ctx, nil, subscriber.ID, domain.ClassCar, area.ID, entry, exit)
	require.NoError(t, err)
	require.NotNil(t, fee.Amount)
	require.Equal(t, int64(0), *fee.Amount)
	require.True(t, fee.MonthlyTicket)
	require.NotNil(t, fee.TicketID)
	require.Equal(t, ticketID, *fee.TicketID)
	require.Equal(t, 3, fee.Hours)

	// The ticket covers the car class only; a motorbike visit of the
	// same vehicle record gets no ticket and no motorbike rule, so it
	// closes unpriced.
	fee, err = svc.ForVisit(ctx, nil, subscriber.ID, domain.ClassMotorbike, area.ID, entry, exit)
	require.NoError(t, err)
	require.False(t, fee.MonthlyTicket)
	require.Nil(t, fee.Amount)

	// A plain vehicle with no ticket pays the hourly rule.
	visitor, err := store.Sessions().UpsertVehicle(ctx,
		fmt.Sprintf("62B%06d", time.Now().UnixNano()%1000000), domain.ClassCar)
	require.NoError(t, err)

	fee, err = svc.ForVisit(ctx, nil, visitor.ID, domain.ClassCar, area.ID, entry, exit)
	require.NoError(t, err)
	require.NotNil(t, fee.Amount)
	require.Equal(t, int64(30), *fee.Amount)
	require.False(t, fee.MonthlyTicket)
	require.Equal(t, domain.RegimeHourly, fee.Regime)
}
