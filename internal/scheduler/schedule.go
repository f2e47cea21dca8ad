package scheduler

import (
	"time"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

// Schedule is a closed, tagged description of when a job should fire. Unlike
// the class-per-variant design it replaces, there is exactly one Schedule
// type and one Next method; callers never type-switch on the concrete
// schedule kind.
type Schedule struct {
	Variant  Variant
	DayClass DayClass
	Monthly  MonthlySpec
	Repeat   time.Duration
	OneShot  time.Time // date component only; time-of-day comes from Slots[0]
	Slots    []Slot
	Location *time.Location
}

func (s Schedule) location() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.UTC
}

// Next computes the next instant this schedule should fire, given the
// reference time ref ("now", or, for a Repeat schedule that just ran, the
// previously computed fire time), the holiday calendar consulted by
// day-class schedules, and the startup grace window applied so a slot that
// passed moments ago still fires once.
//
// The returned bool is false only for a OneShot schedule that has just run
// or has already passed its grace window; the caller should then drop the
// job entirely (mirrors the original's JobExpired signal).
func (s Schedule) Next(ref time.Time, cal calendar.HolidayCalendar, grace time.Duration, justRan bool) (time.Time, bool) {
	switch s.Variant {
	case VariantDayClass:
		return s.nextDayClassRun(ref, cal, grace, justRan), true
	case VariantMonthly:
		return s.nextMonthlyRun(ref, grace, justRan), true
	case VariantRepeat:
		return s.nextRepeatRun(ref, justRan), true
	case VariantOneShot:
		return s.nextOneShotRun(ref, grace, justRan)
	case VariantNever:
		return time.Time{}, true
	default:
		return time.Time{}, true
	}
}

func (s Schedule) nextDayClassRun(ref time.Time, cal calendar.HolidayCalendar, grace time.Duration, justRan bool) time.Time {
	loc := s.location()
	today := ref.In(loc)

	if mustRunOn(s.DayClass, today, cal) {
		for _, instant := range sortedInstants(s.Slots, today, loc) {
			// A run that just finished must not re-claim its own slot, but a
			// later slot on the same day is still fair game.
			if justRan {
				if instant.After(ref) {
					return instant
				}
			} else if ref.Before(instant.Add(grace)) {
				return instant
			}
		}
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	for i := 0; i < 366; i++ {
		if mustRunOn(s.DayClass, day, cal) {
			instants := sortedInstants(s.Slots, day, loc)
			if len(instants) > 0 {
				return instants[0]
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (s Schedule) slotOrDefault() Slot {
	if len(s.Slots) == 0 {
		return Slot{}
	}
	return s.Slots[0]
}

func addMonthsSafe(d time.Time, n int) time.Time {
	anchor := time.Date(d.Year(), d.Month(), 1, d.Hour(), d.Minute(), 0, 0, d.Location())
	return anchor.AddDate(0, n, 0)
}

// nextMonthlyRun ports MonthlyJob.schedule_next_run: interval handling for
// "31st"-style dates that don't occur in every month.
func (s Schedule) nextMonthlyRun(ref time.Time, grace time.Duration, justRan bool) time.Time {
	loc := s.location()
	now := ref.In(loc)
	slot := s.slotOrDefault()
	graceMins := int(grace.Minutes())

	interval := s.Monthly.Day
	schedDay := now

	dayPassed := interval < schedDay.Day()
	pureTimePassed := slot.Hour < schedDay.Hour() || (slot.Hour == schedDay.Hour() && slot.Minute+graceMins < schedDay.Minute())
	timePassed := interval == schedDay.Day() && pureTimePassed
	lastDayCase := interval > schedDay.Day() && eom(schedDay).Day() == schedDay.Day() && pureTimePassed

	if justRan || dayPassed || timePassed || lastDayCase {
		schedDay = addMonthsSafe(schedDay, 1)
	}

	if interval > eom(schedDay).Day() {
		if !s.Monthly.Strict {
			interval = eom(schedDay).Day()
		} else {
			for interval > eom(schedDay).Day() {
				schedDay = addMonthsSafe(schedDay, 1)
			}
		}
	}

	return time.Date(schedDay.Year(), schedDay.Month(), interval, slot.Hour, slot.Minute, 0, 0, loc)
}

// nextRepeatRun adds the interval to ref regardless of justRan; the caller
// is responsible for passing the previous next_fire_ts as ref when
// justRan is true (so cadence holds exactly, despite tick jitter) and now
// otherwise.
func (s Schedule) nextRepeatRun(ref time.Time, justRan bool) time.Time {
	return ref.Add(s.Repeat)
}

func (s Schedule) nextOneShotRun(ref time.Time, grace time.Duration, justRan bool) (time.Time, bool) {
	loc := s.location()
	slot := s.slotOrDefault()
	target := time.Date(s.OneShot.Year(), s.OneShot.Month(), s.OneShot.Day(), slot.Hour, slot.Minute, 0, 0, loc)

	if justRan || ref.After(target.Add(grace)) {
		return time.Time{}, false
	}
	return target, true
}
