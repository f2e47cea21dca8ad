package scheduler

import (
	"time"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

// eom returns the last calendar day of date's month.
func eom(date time.Time) time.Time {
	firstOfNextMonth := time.Date(date.Year(), date.Month()+1, 1, 0, 0, 0, 0, date.Location())
	return firstOfNextMonth.AddDate(0, 0, -1)
}

func isEOM(date time.Time, _ calendar.HolidayCalendar) bool {
	return date.Day() == eom(date).Day()
}

func isEOMWeekday(date time.Time, _ calendar.HolidayCalendar) bool {
	d := eom(date)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return date.Day() == d.Day()
}

func isEOMBusinessDay(date time.Time, cal calendar.HolidayCalendar) bool {
	d := eom(date)
	for cal.IsHoliday(d) || d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return date.Day() == d.Day()
}

func weekdayIs(w time.Weekday) func(time.Time, calendar.HolidayCalendar) bool {
	return func(date time.Time, _ calendar.HolidayCalendar) bool {
		return date.Weekday() == w
	}
}

// runableDays mirrors the RUNABLE_DAYS predicate table: for each DayClass, a
// function answering whether a job scheduled for that class may run on date.
// The deprecated "holiday" class has no entry (rejected at the builder).
var runableDays = map[DayClass]func(date time.Time, cal calendar.HolidayCalendar) bool{
	DayClassDay: func(time.Time, calendar.HolidayCalendar) bool { return true },
	DayClassWeekday: func(date time.Time, _ calendar.HolidayCalendar) bool {
		return date.Weekday() >= time.Monday && date.Weekday() <= time.Friday
	},
	DayClassWeekend: func(date time.Time, _ calendar.HolidayCalendar) bool {
		return date.Weekday() == time.Saturday || date.Weekday() == time.Sunday
	},
	DayClassBusinessDay: func(date time.Time, cal calendar.HolidayCalendar) bool {
		return !cal.IsHoliday(date) && date.Weekday() >= time.Monday && date.Weekday() <= time.Friday
	},
	// trading-holidays don't count if they fall on a weekend.
	DayClassTradingHoliday: func(date time.Time, cal calendar.HolidayCalendar) bool {
		return cal.IsHoliday(date) && date.Weekday() >= time.Monday && date.Weekday() <= time.Friday
	},
	DayClassMonday:         weekdayIs(time.Monday),
	DayClassTuesday:        weekdayIs(time.Tuesday),
	DayClassWednesday:      weekdayIs(time.Wednesday),
	DayClassThursday:       weekdayIs(time.Thursday),
	DayClassFriday:         weekdayIs(time.Friday),
	DayClassSaturday:       weekdayIs(time.Saturday),
	DayClassSunday:         weekdayIs(time.Sunday),
	DayClassEOM:            isEOM,
	DayClassEOMWeekday:     isEOMWeekday,
	DayClassEOMBusinessDay: isEOMBusinessDay,
}

// isValidDayClass reports whether name is a recognized, non-deprecated
// DayClass literal.
func isValidDayClass(name string) bool {
	_, ok := runableDays[DayClass(name)]
	return ok
}

func mustRunOn(class DayClass, date time.Time, cal calendar.HolidayCalendar) bool {
	predicate, ok := runableDays[class]
	if !ok {
		return false
	}
	return predicate(date, cal)
}
