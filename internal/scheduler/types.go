package scheduler

import (
	"context"
	"io"
)

// ==========================================================================
// Status and Behavior Types
// ==========================================================================

// Variant identifies which schedule algorithm a Schedule uses.
type Variant string

const (
	VariantDayClass Variant = "dayclass"
	VariantMonthly  Variant = "monthly"
	VariantRepeat   Variant = "repeat"
	VariantOneShot  Variant = "oneshot"
	VariantNever    Variant = "never"
)

// DayClass names a runnable-day predicate. The deprecated "holiday" literal
// from the original design is intentionally not represented here; see
// runableday.go.
type DayClass string

const (
	DayClassDay            DayClass = "day"
	DayClassWeekday        DayClass = "weekday"
	DayClassWeekend        DayClass = "weekend"
	DayClassBusinessDay    DayClass = "businessday"
	DayClassTradingHoliday DayClass = "trading-holiday"
	DayClassMonday         DayClass = "monday"
	DayClassTuesday        DayClass = "tuesday"
	DayClassWednesday      DayClass = "wednesday"
	DayClassThursday       DayClass = "thursday"
	DayClassFriday         DayClass = "friday"
	DayClassSaturday       DayClass = "saturday"
	DayClassSunday         DayClass = "sunday"
	DayClassEOM            DayClass = "eom"
	DayClassEOMWeekday     DayClass = "eom-weekday"
	DayClassEOMBusinessDay DayClass = "eom-businessday"
)

// the deprecated literal, rejected by the builder rather than implemented.
const deprecatedDayClassHoliday DayClass = "holiday"

// ==========================================================================
// Domain Types
// ==========================================================================

// Args carries the dynamic keyword arguments passed to a job's callable.
type Args map[string]any

// Func is a registered job callable. out receives everything the job would
// otherwise print; args carries the bound arguments.
type Func func(ctx context.Context, out io.Writer, args Args) error

// MonthlySpec describes a once-per-month schedule.
type MonthlySpec struct {
	// Day is 1-31.
	Day int
	// Strict, when true, only fires in months that actually have Day; when
	// false, falls back to the last day of shorter months.
	Strict bool
}
