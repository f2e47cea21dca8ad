package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestSchedule_DayClass_SameDayFutureSlot(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, loc)

	sched := Schedule{
		Variant:  VariantDayClass,
		DayClass: DayClassDay,
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, false)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 6, 10, 23, 59, 0, 0, loc), next)
}

func TestSchedule_Weekly_RollsOverPastSlot(t *testing.T) {
	loc := time.UTC
	// 2024-06-10 is a Monday.
	now := time.Date(2024, 6, 10, 10, 1, 0, 0, loc)

	sched := Schedule{
		Variant:  VariantDayClass,
		DayClass: DayClassMonday,
		Slots:    []Slot{{Hour: 10, Minute: 0}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, false)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 6, 17, 10, 0, 0, 0, loc), next)
	assert.True(t, next.Sub(now) >= 6*24*time.Hour+23*time.Hour+59*time.Minute)
	assert.True(t, next.Sub(now) <= 8*24*time.Hour)
}

func TestSchedule_BusinessDay_SkipsTradingHoliday(t *testing.T) {
	goodFriday := time.Date(2020, 4, 10, 0, 0, 0, 0, time.UTC)
	cal := calendar.NewStaticCalendar(goodFriday)

	assert.False(t, mustRunOn(DayClassBusinessDay, goodFriday, cal), "Good Friday is a holiday")
	assert.True(t, mustRunOn(DayClassBusinessDay, goodFriday.AddDate(0, 0, -1), cal), "the preceding Thursday is a business day")
	assert.False(t, mustRunOn(DayClassBusinessDay, goodFriday.AddDate(0, 0, 1), cal), "the following day is a Saturday")
}

func TestSchedule_Monthly_NonStrictFallsBackToLastDay(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, loc)

	sched := Schedule{
		Variant:  VariantMonthly,
		Monthly:  MonthlySpec{Day: 31, Strict: false},
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, false)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 0, 0, loc), next)
}

func TestSchedule_Monthly_StrictSkipsToNextQualifyingMonth(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, loc)

	sched := Schedule{
		Variant:  VariantMonthly,
		Monthly:  MonthlySpec{Day: 31, Strict: true},
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, false)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 0, 0, loc), next)
}

func TestSchedule_OneShot_InThePastIsInert(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 10, 0, 0, 0, 0, loc)

	sched := Schedule{
		Variant:  VariantOneShot,
		OneShot:  time.Date(2024, 6, 9, 0, 0, 0, 0, loc),
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, false)
	assert.False(t, active)
	assert.True(t, next.IsZero())
}

func TestSchedule_OneShot_WithinGraceStillFires(t *testing.T) {
	loc := time.UTC
	target := time.Date(2024, 6, 9, 23, 59, 0, 0, loc)
	now := target.Add(2 * time.Minute)

	sched := Schedule{
		Variant:  VariantOneShot,
		OneShot:  time.Date(2024, 6, 9, 0, 0, 0, 0, loc),
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 5*time.Minute, false)
	require.True(t, active)
	assert.Equal(t, target, next)
}

func TestSchedule_OneShot_AfterJustRanIsInert(t *testing.T) {
	loc := time.UTC
	sched := Schedule{
		Variant:  VariantOneShot,
		OneShot:  time.Date(2024, 6, 9, 0, 0, 0, 0, loc),
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	next, active := sched.Next(time.Date(2024, 6, 9, 23, 59, 0, 0, loc), calendar.Empty, 0, true)
	assert.False(t, active)
	assert.True(t, next.IsZero())
}

func TestSchedule_DayClass_JustRanPicksLaterSameDaySlot(t *testing.T) {
	loc := time.UTC
	// The 10:00 slot just fired; the 14:00 slot is still pending today.
	now := time.Date(2024, 6, 10, 10, 0, 30, 0, loc)

	sched := Schedule{
		Variant:  VariantDayClass,
		DayClass: DayClassDay,
		Slots:    []Slot{{Hour: 10, Minute: 0}, {Hour: 14, Minute: 0}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, true)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 6, 10, 14, 0, 0, 0, loc), next)
}

func TestSchedule_DayClass_JustRanRollsOverWhenAllSlotsPast(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 10, 14, 0, 30, 0, loc)

	sched := Schedule{
		Variant:  VariantDayClass,
		DayClass: DayClassDay,
		Slots:    []Slot{{Hour: 10, Minute: 0}, {Hour: 14, Minute: 0}},
		Location: loc,
	}

	next, active := sched.Next(now, calendar.Empty, 0, true)
	require.True(t, active)
	assert.Equal(t, time.Date(2024, 6, 11, 10, 0, 0, 0, loc), next)
}

func TestSchedule_Never_AlwaysZero(t *testing.T) {
	sched := Schedule{Variant: VariantNever}
	next, active := sched.Next(time.Now(), calendar.Empty, 0, false)
	assert.True(t, active)
	assert.True(t, next.IsZero())
}

func TestSchedule_Repeat_AddsIntervalToReferenceTime(t *testing.T) {
	sched := Schedule{Variant: VariantRepeat, Repeat: time.Second}
	prevNext := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)

	next, active := sched.Next(prevNext, calendar.Empty, 0, true)
	require.True(t, active)
	assert.Equal(t, prevNext.Add(time.Second), next)
}

func TestSchedule_Repeat_SuccessiveFiringsDifferByExactlyInterval(t *testing.T) {
	sched := Schedule{Variant: VariantRepeat, Repeat: 3 * time.Second}
	ref := time.Now()

	first, _ := sched.Next(ref, calendar.Empty, 0, false)
	second, _ := sched.Next(first, calendar.Empty, 0, true)
	third, _ := sched.Next(second, calendar.Empty, 0, true)

	assert.Equal(t, 3*time.Second, second.Sub(first))
	assert.Equal(t, 3*time.Second, third.Sub(second))
}

func TestSchedule_Next_IsIdempotentForSameNow(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 6, 10, 8, 0, 0, 0, loc)
	sched := Schedule{
		Variant:  VariantDayClass,
		DayClass: DayClassDay,
		Slots:    []Slot{{Hour: 23, Minute: 59}},
		Location: loc,
	}

	first, _ := sched.Next(now, calendar.Empty, 0, false)
	second, _ := sched.Next(now, calendar.Empty, 0, false)
	assert.Equal(t, first, second)
}

func TestEOMVariants(t *testing.T) {
	cal := calendar.NewStaticCalendar(time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)) // holiday on the last day

	assert.True(t, mustRunOn(DayClassEOM, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), calendar.Empty))
	assert.False(t, mustRunOn(DayClassEOM, time.Date(2024, 4, 29, 0, 0, 0, 0, time.UTC), calendar.Empty))

	// May 31, 2024 is a Friday; eom-weekday should match it directly.
	assert.True(t, mustRunOn(DayClassEOMWeekday, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), calendar.Empty))

	// With May 31 marked a holiday, eom-businessday walks back to May 30.
	assert.True(t, mustRunOn(DayClassEOMBusinessDay, time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), cal))
	assert.False(t, mustRunOn(DayClassEOMBusinessDay, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), cal))
}

func TestResolveInstant_SpringForwardGapForwardsOnceIntoPostTransitionClock(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	// 2024-03-10: clocks jump from 02:00 to 03:00 local; 02:30 never occurs.
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)

	instant := resolveInstant(date, Slot{Hour: 2, Minute: 30}, loc)

	assert.Equal(t, time.Date(2024, 3, 10, 3, 30, 0, 0, loc).Unix(), instant.Unix(),
		"an imaginary 02:30 must land on 03:30 post-transition, not overshoot further")
}

func TestParseSlot(t *testing.T) {
	slot, err := ParseSlot("23:59")
	require.NoError(t, err)
	assert.Equal(t, Slot{Hour: 23, Minute: 59}, slot)

	_, err = ParseSlot("24:00")
	assert.Error(t, err)

	_, err = ParseSlot("not-a-time")
	assert.Error(t, err)
}
