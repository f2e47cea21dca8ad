package scheduler

import (
	"regexp"
	"strconv"
	"time"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

var (
	oneShotDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthlyDayPattern  = regexp.MustCompile(`(?i)^(\d{1,2})(st|nd|rd|th)$`)
)

// Builder is a stateless, per-call schedule pipeline: every method returns a
// new Builder value rather than mutating a shared one, so concurrent
// Every(...).At(...).Do(...) chains from different goroutines during startup
// never interfere with each other.
type Builder struct {
	scheduler *Scheduler
	interval  any
	times     []string
	strict    *bool
	loc       *time.Location
	cal       calendar.HolidayCalendar
}

// Every starts a new schedule pipeline for the given interval: a DayClass
// string ("day", "weekday", ...), a monthly-date string ("1st".."31st"), a
// "YYYY-MM-DD" one-shot date, "never", or a number of seconds to repeat at.
// An optional calendar overrides the scheduler's default holiday calendar
// for this one job.
func (s *Scheduler) Every(interval any, cal ...calendar.HolidayCalendar) *Builder {
	b := &Builder{scheduler: s, interval: interval}
	if len(cal) > 0 {
		b.cal = cal[0]
	}
	return b
}

// On is an alias of Every, reading better for one-shot dates:
// s.On("2024-06-09").At("23:59").Do(f, nil).
func (s *Scheduler) On(interval any, cal ...calendar.HolidayCalendar) *Builder {
	return s.Every(interval, cal...)
}

// At appends one or more "HH:MM" slots to the pipeline.
func (b *Builder) At(times ...string) *Builder {
	next := *b
	next.times = append(append([]string{}, b.times...), times...)
	return &next
}

// StrictDate controls monthly-schedule behavior for dates that don't occur
// in every month (e.g. "31st"): true only fires in months that have that
// day, false falls back to the last day of shorter months.
func (b *Builder) StrictDate(strict bool) *Builder {
	next := *b
	next.strict = &strict
	return &next
}

// Timezone pins the schedule to a specific location instead of the
// scheduler's default.
func (b *Builder) Timezone(loc *time.Location) *Builder {
	next := *b
	next.loc = loc
	return &next
}

// Do finalizes the pipeline, registering fn (with args) as a serial Job: it
// runs on the scheduler's own poll-loop goroutine, so a long-running
// callable delays the next due-check.
func (b *Builder) Do(fn Func, args Args) (*Job, error) {
	schedule, err := b.buildSchedule()
	if err != nil {
		return nil, err
	}
	return b.scheduler.register(schedule, fn, args, false, b.cal)
}

// DoParallel finalizes the pipeline like Do, but the Job runs on a freshly
// spawned goroutine each time it fires, so it never blocks the poll loop or
// other jobs.
func (b *Builder) DoParallel(fn Func, args Args) (*Job, error) {
	schedule, err := b.buildSchedule()
	if err != nil {
		return nil, err
	}
	return b.scheduler.register(schedule, fn, args, true, b.cal)
}

func (b *Builder) buildSchedule() (Schedule, error) {
	loc := b.loc
	if loc == nil {
		loc = b.scheduler.location()
	}

	// Externally registered variant classes are tried first, ahead of every
	// built-in interval kind - see Scheduler.RegisterVariant.
	for _, matcher := range b.scheduler.variantMatchers {
		if schedule, ok := matcher(b.interval); ok {
			if schedule.Location == nil {
				schedule.Location = loc
			}
			return schedule, nil
		}
	}

	slots, err := b.parseSlots(loc)
	if err != nil {
		return Schedule{}, err
	}

	if _, isString := b.interval.(string); !isString && b.strict != nil {
		return Schedule{}, NewBadScheduleError(".StrictDate() only applies to monthly schedules, got interval %v", b.interval)
	}

	switch v := b.interval.(type) {
	case int:
		return repeatSchedule(time.Duration(v) * time.Second)
	case int64:
		return repeatSchedule(time.Duration(v) * time.Second)
	case float64:
		return repeatSchedule(time.Duration(v * float64(time.Second)))
	case time.Duration:
		return repeatSchedule(v)
	case string:
		return b.buildFromString(v, slots, loc)
	default:
		return Schedule{}, NewBadScheduleError("unsupported interval type %T", b.interval)
	}
}

func repeatSchedule(interval time.Duration) (Schedule, error) {
	if interval <= 0 {
		return Schedule{}, NewBadScheduleError("illegal interval for repeating job: expected a positive number of seconds")
	}
	return Schedule{Variant: VariantRepeat, Repeat: interval}, nil
}

func (b *Builder) buildFromString(interval string, slots []Slot, loc *time.Location) (Schedule, error) {
	if b.strict != nil && !monthlyDayPattern.MatchString(interval) {
		return Schedule{}, NewBadScheduleError(".StrictDate() only applies to monthly schedules, got interval %q", interval)
	}

	switch interval {
	case "never", "on-demand":
		return Schedule{Variant: VariantNever, Location: loc}, nil
	case string(deprecatedDayClassHoliday):
		return Schedule{}, NewBadScheduleError("'holiday' interval is deprecated and removed; use 'weekend' and 'trading-holiday' instead")
	}

	if oneShotDatePattern.MatchString(interval) {
		if len(b.times) == 0 {
			return Schedule{}, NewBadScheduleError("one-shot schedules require an explicit .At(\"HH:MM\")")
		}
		date, err := time.ParseInLocation("2006-01-02", interval, loc)
		if err != nil {
			return Schedule{}, NewBadScheduleError("invalid one-shot date %q: %v", interval, err)
		}
		return Schedule{Variant: VariantOneShot, OneShot: date, Slots: slots, Location: loc}, nil
	}

	if match := monthlyDayPattern.FindStringSubmatch(interval); match != nil {
		if b.strict == nil {
			return Schedule{}, NewBadScheduleError("call .StrictDate(true/false) before .Do() for a monthly schedule")
		}
		if len(b.times) == 0 {
			return Schedule{}, NewBadScheduleError("monthly schedules require an explicit .At(\"HH:MM\")")
		}
		day, _ := strconv.Atoi(match[1])
		if day < 1 || day > 31 {
			return Schedule{}, NewBadScheduleError("invalid monthly day %q", interval)
		}
		if len(slots) > 1 {
			return Schedule{}, NewBadScheduleError("monthly schedules support a single .At(...) slot, got %d", len(slots))
		}
		return Schedule{
			Variant:  VariantMonthly,
			Monthly:  MonthlySpec{Day: day, Strict: *b.strict},
			Slots:    slots,
			Location: loc,
		}, nil
	}

	if !isValidDayClass(interval) {
		return Schedule{}, NewBadScheduleError("unrecognized schedule interval %q", interval)
	}
	return Schedule{Variant: VariantDayClass, DayClass: DayClass(interval), Slots: slots, Location: loc}, nil
}

func (b *Builder) parseSlots(loc *time.Location) ([]Slot, error) {
	if len(b.times) == 0 {
		now := time.Now().In(loc)
		return []Slot{{Hour: now.Hour(), Minute: now.Minute()}}, nil
	}
	slots := make([]Slot, 0, len(b.times))
	for _, t := range b.times {
		slot, err := ParseSlot(t)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}
