package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	*MemoryStore
	err error
}

func (f failingStore) BlockedDaysBetween(context.Context, string, string) ([]BlockedDay, error) {
	return nil, f.err
}

func (f failingStore) BookedTimes(context.Context, string) ([]time.Time, error) {
	return nil, f.err
}

func newResolver(t *testing.T, store AvailabilityStore) *AvailabilityResolver {
	t.Helper()
	r, err := NewAvailabilityResolver(store, testConfig(), nil)
	require.NoError(t, err)
	return r
}

func bookAt(t *testing.T, store *MemoryStore, date, hhmm string, loc Location) {
	t.Helper()
	ts, err := time.Parse(appointmentStampLayout, date+"T"+hhmm+"-04:00")
	require.NoError(t, err)
	_, err = store.InsertAppointment(context.Background(), Appointment{
		PatientID: "AP-000001", ScheduledAt: ts, Date: date, Time: hhmm, Location: loc, Studies: []string{"Glicemia"},
	})
	require.NoError(t, err)
}

func TestDay_EmptyCalendarReturnsFullGrid(t *testing.T) {
	store := NewMemoryStore(testConfig())
	r := newResolver(t, store)

	for _, text := range []string{"lunes", "2026-10-20", "jueves", "sábado"} {
		day, err := r.Day(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, r.Grid(), day.Hours, text)
		assert.False(t, day.FullyBooked)
	}
}

func TestDay_RemovesBookedAndBlockedSlots(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	bookAt(t, store, "2026-10-19", "09:00", LocationMainSite)
	bookAt(t, store, "2026-10-19", "10:00", LocationHomeVisit)
	require.NoError(t, store.AddBlockedSlot(ctx, BlockedSlot{Date: "2026-10-19", Time: "07:00", Location: LocationMainSite}))
	require.NoError(t, store.AddBlockedSlot(ctx, BlockedSlot{Date: "2026-10-19", Time: "08:00", Location: LocationColoniaTovar}))

	day, err := newResolver(t, store).Day(ctx, "lunes")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19", day.Date)
	assert.Equal(t, "lunes", day.DayName)
	assert.NotContains(t, day.Hours, "09:00")
	assert.NotContains(t, day.Hours, "10:00")
	assert.NotContains(t, day.Hours, "07:00")
	assert.Contains(t, day.Hours, "08:00")
	assert.Len(t, day.Hours, 18)
}

func TestDay_FullyBooked(t *testing.T) {
	store := NewMemoryStore(testConfig())
	for _, slot := range DefaultSlots() {
		bookAt(t, store, "2026-10-19", slot, LocationMainSite)
	}
	day, err := newResolver(t, store).Day(context.Background(), "2026-10-19")
	require.NoError(t, err)
	assert.True(t, day.FullyBooked)
	assert.Empty(t, day.Hours)
	assert.Contains(t, day.Message, "ya no quedan horas")
}

func TestDay_RejectsSundayAndBlockedDays(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	require.NoError(t, store.AddBlockedDay(ctx, BlockedDay{Date: "2026-10-19", Reason: "Feriado"}))
	r := newResolver(t, store)

	_, err := r.Day(ctx, "domingo")
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeDateUnavailable, te.Meta.Code)

	_, err = r.Day(ctx, "lunes")
	te, ok = AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeDateBlocked, te.Meta.Code)
}

func TestWeek_ListsOpenDaysExcludingPastAndBlocked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	require.NoError(t, store.AddBlockedDay(ctx, BlockedDay{Date: "2026-10-16"}))

	// Tomorrow is Thursday 2026-10-15; Monday and Tuesday of this week are past.
	week, err := newResolver(t, store).Week(ctx, "mañana")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-12", week.WeekStart)
	assert.Equal(t, "2026-10-18", week.WeekEnd)
	assert.True(t, week.Available)
	assert.Len(t, week.Hours, 21)

	var dates []string
	for _, d := range week.AvailableDays {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2026-10-14", "2026-10-15", "2026-10-17"}, dates)
	assert.Nil(t, week.Suggestion)
	assert.Equal(t, FormatWeekAvailability(week), week.Message)
}

func TestAvailability_RepeatedCallsAreStable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	bookAt(t, store, "2026-10-19", "09:00", LocationMainSite)
	bookAt(t, store, "2026-10-19", "13:30", LocationMainSite)
	require.NoError(t, store.AddBlockedSlot(ctx, BlockedSlot{Date: "2026-10-19", Time: "07:00", Location: LocationMainSite}))
	require.NoError(t, store.AddBlockedDay(ctx, BlockedDay{Date: "2026-10-21", Reason: "Inventario"}))
	r := newResolver(t, store)

	firstDay, err := r.Day(ctx, "lunes")
	require.NoError(t, err)
	secondDay, err := r.Day(ctx, "lunes")
	require.NoError(t, err)
	assert.Equal(t, firstDay, secondDay)
	assert.Len(t, firstDay.Hours, 18)

	firstWeek, err := r.Week(ctx, "lunes")
	require.NoError(t, err)
	secondWeek, err := r.Week(ctx, "lunes")
	require.NoError(t, err)
	assert.Equal(t, firstWeek, secondWeek)
	assert.Equal(t, firstDay.Hours, firstWeek.Hours)

	assert.Equal(t, r.Grid(), DefaultSlots(), "lookups never mutate the grid")
	assert.Len(t, store.Appointments(), 2)
}

func TestFreeSlots_TodayDropsElapsedTimes(t *testing.T) {
	store := NewMemoryStore(testConfig())
	bookAt(t, store, "2026-10-14", "11:00", LocationMainSite)
	r := newResolver(t, store)

	hours, err := r.FreeSlots(context.Background(), "2026-10-14")
	require.NoError(t, err)
	require.NotEmpty(t, hours)
	assert.Equal(t, "10:30", hours[0], "10:00 is the current clinic time")
	assert.NotContains(t, hours, "11:00")
	assert.Len(t, hours, 13)

	tomorrow, err := r.FreeSlots(context.Background(), "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, r.Grid(), tomorrow)

	assert.True(t, r.SlotElapsed("2026-10-14", "10:00"))
	assert.False(t, r.SlotElapsed("2026-10-14", "10:30"))
	assert.False(t, r.SlotElapsed("2026-10-15", "07:00"))
}

func TestWeek_TodayAfterCloseIsNotOffered(t *testing.T) {
	cfg := testConfig()
	cfg.Now = func() time.Time { return time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC) }
	r, err := NewAvailabilityResolver(NewMemoryStore(cfg), cfg, nil)
	require.NoError(t, err)

	week, err := r.Week(context.Background(), "hoy")
	require.NoError(t, err)
	assert.False(t, week.Available)
	assert.Empty(t, week.Hours)
	var dates []string
	for _, d := range week.AvailableDays {
		dates = append(dates, d.Date)
	}
	assert.Equal(t, []string{"2026-10-15", "2026-10-16", "2026-10-17"}, dates)
}

func TestWeek_NeverOffersSundays(t *testing.T) {
	week, err := newResolver(t, NewMemoryStore(testConfig())).Week(context.Background(), "domingo")
	require.NoError(t, err)
	assert.False(t, week.Available)
	for _, d := range week.AvailableDays {
		assert.NotEqual(t, "domingo", d.DayName)
	}
}

func TestWeek_SuggestsNextWeekWhenAllBlocked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(testConfig())
	for _, d := range []string{"2026-10-19", "2026-10-20", "2026-10-21", "2026-10-22", "2026-10-23", "2026-10-24"} {
		require.NoError(t, store.AddBlockedDay(ctx, BlockedDay{Date: d}))
	}
	week, err := newResolver(t, store).Week(ctx, "martes")
	require.NoError(t, err)
	assert.Empty(t, week.AvailableDays)
	require.NotNil(t, week.Suggestion)
	assert.Equal(t, "2026-10-27", week.Suggestion.Date)
	assert.Equal(t, "martes", week.Suggestion.DayName)
	assert.True(t, strings.Contains(week.Message, "Te sugiero el martes 2026-10-27"))
}

func TestWeek_InvalidDate(t *testing.T) {
	_, err := newResolver(t, NewMemoryStore(testConfig())).Week(context.Background(), "algún día")
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidDate, te.Meta.Code)
	assert.Equal(t, ExpectedDateFormat, te.Meta.Expected)
}

func TestWeek_StoreErrorIsAvailabilityError(t *testing.T) {
	store := failingStore{MemoryStore: NewMemoryStore(testConfig()), err: errors.New("connection refused")}
	_, err := newResolver(t, store).Week(context.Background(), "lunes")
	te, ok := AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, CodeAvailabilityError, te.Meta.Code)
	assert.ErrorContains(t, te.Cause, "connection refused")
}

func TestNewAvailabilityResolver_RejectsBadWindow(t *testing.T) {
	cfg := testConfig()
	cfg.OpenTime = "18:00"
	_, err := NewAvailabilityResolver(NewMemoryStore(cfg), cfg, nil)
	assert.Error(t, err)
}
