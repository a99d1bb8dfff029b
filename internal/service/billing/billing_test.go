package billing

import (
	"testing"
	"time"

	"github.com/parkd/parkd/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The civil zone has no DST, so a fixed offset is equivalent.
var hcm = time.FixedZone("Asia/Ho_Chi_Minh", 7*3600)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, hcm)
}

func ptr(v int64) *int64 { return &v }

func TestBilledHours(t *testing.T) {
	entry := at(2025, time.March, 10, 8, 0)

	tests := []struct {
		name string
		exit time.Time
		want int
	}{
		{"zero duration still bills one hour", entry, 1},
		{"five minutes", entry.Add(5 * time.Minute), 1},
		{"exactly one hour", entry.Add(time.Hour), 1},
		{"one hour one second rounds up", entry.Add(time.Hour + time.Second), 2},
		{"three and a half hours", entry.Add(3*time.Hour + 30*time.Minute), 4},
		{"full day", entry.Add(24 * time.Hour), 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BilledHours(entry, tt.exit))
		})
	}
}

func TestSplitHours(t *testing.T) {
	tests := []struct {
		name      string
		entry     time.Time
		hours     int
		wantDay   int
		wantNight int
	}{
		{"all daytime", at(2025, time.March, 10, 8, 0), 4, 4, 0},
		{"all night", at(2025, time.March, 10, 22, 0), 3, 0, 3},
		{"crosses 18:00", at(2025, time.March, 10, 17, 30), 2, 1, 1},
		{"crosses 06:00", at(2025, time.March, 10, 5, 0), 3, 2, 1},
		{"slice start at 18:00 exactly is night", at(2025, time.March, 10, 18, 0), 1, 0, 1},
		{"slice start at 06:00 exactly is day", at(2025, time.March, 10, 6, 0), 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			day, night := splitHours(tt.entry, tt.hours)
			assert.Equal(t, tt.wantDay, day, "day hours")
			assert.Equal(t, tt.wantNight, night, "night hours")
		})
	}
}

func TestCountShifts(t *testing.T) {
	tests := []struct {
		name        string
		entry, exit time.Time
		wantMorning int
		wantNight   int
	}{
		{
			"within one morning shift",
			at(2025, time.March, 10, 8, 0), at(2025, time.March, 10, 11, 0),
			1, 0,
		},
		{
			"touches morning and night",
			at(2025, time.March, 10, 17, 0), at(2025, time.March, 10, 19, 0),
			1, 1,
		},
		{
			"night shift across midnight counts once",
			at(2025, time.March, 10, 23, 0), at(2025, time.March, 11, 1, 0),
			0, 1,
		},
		{
			"early morning belongs to previous night shift",
			at(2025, time.March, 10, 2, 0), at(2025, time.March, 10, 5, 0),
			0, 1,
		},
		{
			"full 24h from morning",
			at(2025, time.March, 10, 8, 0), at(2025, time.March, 11, 8, 0),
			2, 1,
		},
		{
			"minutes before 06:00 into morning",
			at(2025, time.March, 10, 5, 55), at(2025, time.March, 10, 6, 10),
			1, 1,
		},
		{
			"zero duration",
			at(2025, time.March, 10, 8, 0), at(2025, time.March, 10, 8, 0),
			0, 0,
		},
		{
			"exit exactly at 18:00 stays morning only",
			at(2025, time.March, 10, 10, 0), at(2025, time.March, 10, 18, 0),
			1, 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			morning, night := countShifts(tt.entry, tt.exit)
			assert.Equal(t, tt.wantMorning, morning, "morning shifts")
			assert.Equal(t, tt.wantNight, night, "night shifts")
		})
	}
}

func TestComputeHourly(t *testing.T) {
	rule := &domain.PricingRule{
		ID:          1,
		Class:       domain.ClassCar,
		Regime:      domain.RegimeHourly,
		HourlyDay:   ptr(10),
		HourlyNight: ptr(6),
	}

	// Entry 08:00, exit 11:30: 3.5h bills as 4, all daytime.
	res, err := Compute(rule, at(2025, time.March, 10, 8, 0), at(2025, time.March, 10, 11, 30), hcm)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Hours)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(40), *res.Amount)
	assert.Equal(t, 4, res.MorningShifts)
	assert.Equal(t, 0, res.NightShifts)
	assert.False(t, res.MonthlyTicket)
	require.NotNil(t, res.PricingRuleID)
	assert.Equal(t, int64(1), *res.PricingRuleID)
}

func TestComputeHourlyNightFallsBackToDayRate(t *testing.T) {
	rule := &domain.PricingRule{
		ID:        2,
		Class:     domain.ClassCar,
		Regime:    domain.RegimeHourly,
		HourlyDay: ptr(10),
	}

	// 22:00 to 23:00: one night hour billed at the day rate.
	res, err := Compute(rule, at(2025, time.March, 10, 22, 0), at(2025, time.March, 10, 23, 0), hcm)
	require.NoError(t, err)

	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(10), *res.Amount)
	assert.Equal(t, 0, res.MorningShifts)
	assert.Equal(t, 1, res.NightShifts)
}

func TestComputeBlock(t *testing.T) {
	rule := &domain.PricingRule{
		ID:           3,
		Class:        domain.ClassMotorbike,
		Regime:       domain.RegimeBlock,
		MorningPrice: ptr(5),
		NightPrice:   ptr(8),
	}

	// 17:00 to 19:00 touches one morning and one night shift.
	res, err := Compute(rule, at(2025, time.March, 10, 17, 0), at(2025, time.March, 10, 19, 0), hcm)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Hours)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(13), *res.Amount)
	assert.Equal(t, 1, res.MorningShifts)
	assert.Equal(t, 1, res.NightShifts)
}

func TestComputeBlockMultiDay(t *testing.T) {
	rule := &domain.PricingRule{
		ID:           4,
		Class:        domain.ClassMotorbike,
		Regime:       domain.RegimeBlock,
		MorningPrice: ptr(5),
		NightPrice:   ptr(8),
	}

	// Monday 08:00 to Wednesday 08:00: three morning shifts, two nights.
	res, err := Compute(rule, at(2025, time.March, 10, 8, 0), at(2025, time.March, 12, 8, 0), hcm)
	require.NoError(t, err)

	assert.Equal(t, 3, res.MorningShifts)
	assert.Equal(t, 2, res.NightShifts)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(3*5+2*8), *res.Amount)
}

func TestComputeNoRule(t *testing.T) {
	res, err := Compute(nil, at(2025, time.March, 10, 8, 0), at(2025, time.March, 10, 9, 30), hcm)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Hours)
	assert.Nil(t, res.Amount, "unpriced visit keeps a nil amount, not zero")
	assert.Nil(t, res.PricingRuleID)
	assert.Empty(t, res.Regime)
}

func TestComputeUTCInputsClassifyInLocalZone(t *testing.T) {
	rule := &domain.PricingRule{
		ID:          5,
		Class:       domain.ClassCar,
		Regime:      domain.RegimeHourly,
		HourlyDay:   ptr(10),
		HourlyNight: ptr(6),
	}

	// 23:00 UTC is 06:00 local next day: a day hour, not a night hour.
	entry := time.Date(2025, time.March, 9, 23, 0, 0, 0, time.UTC)
	res, err := Compute(rule, entry, entry.Add(time.Hour), hcm)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MorningShifts)
	assert.Equal(t, 0, res.NightShifts)
	require.NotNil(t, res.Amount)
	assert.Equal(t, int64(10), *res.Amount)
}

func TestComputeExitBeforeEntry(t *testing.T) {
	_, err := Compute(nil, at(2025, time.March, 10, 10, 0), at(2025, time.March, 10, 9, 0), hcm)
	assert.ErrorIs(t, err, ErrExitBeforeEntry)
}
