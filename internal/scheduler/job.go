package scheduler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"reflect"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

// Job is one registered, independently scheduled unit of work.
type Job struct {
	id       int
	schedule Schedule
	fn       Func
	args     Args

	runSilently       bool
	parallel          bool
	doc               string
	errHandler        func(msg string)
	genericErrHandler func(msg string)
	onComplete        []func(job *Job, err error)
	onEnable          []func(job *Job)
	onDisable         []func(job *Job)
	calendar          calendar.HolidayCalendar
	startupGrace      time.Duration
	logger            *log.Logger
	rotator           io.Writer

	mu         sync.Mutex
	running    bool
	disabled   bool
	nextFireAt time.Time
	expired    bool

	record *RunRecord
}

// newJob constructs a Job and computes its first fire time.
func newJob(id int, schedule Schedule, fn Func, args Args, parallel bool, cal calendar.HolidayCalendar, startupGrace time.Duration, genericErrHandler func(msg string), logger *log.Logger, rotator io.Writer) *Job {
	j := &Job{
		id:                id,
		schedule:          schedule,
		fn:                fn,
		args:              args,
		parallel:          parallel,
		calendar:          cal,
		startupGrace:      startupGrace,
		genericErrHandler: genericErrHandler,
		logger:            logger,
		rotator:           rotator,
		record:            &RunRecord{},
	}
	next, active := j.schedule.Next(time.Now(), j.calendar, j.startupGrace, false)
	j.nextFireAt = next
	j.expired = !active
	return j
}

// ID returns the job's registry identifier.
func (j *Job) ID() int { return j.id }

// Doc attaches a human-readable description shown in the monitor's job
// detail view. Go has no runtime docstring introspection, so this is
// opt-in rather than automatic.
func (j *Job) Doc(doc string) *Job {
	j.doc = doc
	return j
}

// Silently suppresses the banner lines the original printed around a run.
func (j *Job) Silently() *Job {
	j.runSilently = true
	return j
}

// Catch registers a job-specific error handler, invoked instead of the
// scheduler's generic one.
func (j *Job) Catch(handler func(msg string)) *Job {
	j.errHandler = handler
	return j
}

// OnComplete registers a listener invoked after every run (success or
// failure). Listeners run in registration order; listener errors are
// logged, never propagated - see Run.
func (j *Job) OnComplete(listener func(job *Job, err error)) *Job {
	j.onComplete = append(j.onComplete, listener)
	return j
}

// OnEnable registers a listener invoked every time Enable() is called.
func (j *Job) OnEnable(listener func(job *Job)) *Job {
	j.onEnable = append(j.onEnable, listener)
	return j
}

// OnDisable registers a listener invoked every time Disable() is called.
func (j *Job) OnDisable(listener func(job *Job)) *Job {
	j.onDisable = append(j.onDisable, listener)
	return j
}

// IsParallel reports whether this job was registered via DoParallel and so
// runs on a spawned worker rather than blocking the scheduler's poll loop.
func (j *Job) IsParallel() bool { return j.parallel }

// IsRunning reports whether the job is currently executing.
func (j *Job) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// IsDisabled reports whether the job has been administratively disabled.
func (j *Job) IsDisabled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.disabled
}

// Disable marks the job ineligible to fire automatically. Check() will
// never run it until Enable() is called; Rerun still works.
func (j *Job) Disable() {
	j.mu.Lock()
	j.disabled = true
	j.mu.Unlock()
	for _, listener := range j.onDisable {
		listener := listener
		j.safeListener("on_disable listener", func() { listener(j) })
	}
}

// Enable clears the disabled flag and, if the job was previously disabled,
// immediately recomputes its next fire time from now - a disabled job's
// stale next_fire_ts must not be reused once it's turned back on.
func (j *Job) Enable() {
	j.mu.Lock()
	wasDisabled := j.disabled
	j.disabled = false
	j.mu.Unlock()

	if wasDisabled {
		j.scheduleNext(false)
	}
	for _, listener := range j.onEnable {
		listener := listener
		j.safeListener("on_enable listener", func() { listener(j) })
	}
}

// SetDisabled is a convenience wrapper over Enable/Disable, used by the
// MonitorAPI's enable_disable endpoint which carries a single bool.
func (j *Job) SetDisabled(disabled bool) {
	if disabled {
		j.Disable()
	} else {
		j.Enable()
	}
}

// safeListener runs fn, logging (not propagating) any panic, matching the
// original's "swallow and log" treatment of listener errors.
func (j *Job) safeListener(label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Printf("%s: panic: %v", label, r)
		}
	}()
	fn()
}

// NextFireAt returns the next scheduled instant, or the zero Time if the job
// never fires automatically (Never schedules, or an expired OneShot).
func (j *Job) NextFireAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextFireAt
}

// Expired reports whether a OneShot job has run or has passed its grace
// window and should be dropped from the registry.
func (j *Job) Expired() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.expired
}

// IsDue reports whether the job should run right now.
func (j *Job) IsDue() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || j.disabled || j.expired || j.nextFireAt.IsZero() {
		return false
	}
	return !time.Now().Before(j.nextFireAt)
}

// FunctionSignature renders "name(arg=val,...)" the way the original's
// func_signature did, substituting runtime.FuncForPC for Python's
// introspection since Go has no __qualname__.
func (j *Job) FunctionSignature() string {
	name := funcName(j.fn)
	if len(j.args) == 0 {
		return name
	}

	keys := make([]string, 0, len(j.args))
	for k := range j.args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, renderShort(j.args[k])))
	}
	return fmt.Sprintf("%s(%s)", name, joinComma(parts))
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// funcName renders the Go equivalent of the original's "module.qualname":
// runtime.FuncForPC yields "pkgpath.FuncName" (or "pkgpath.(*Type).Method"
// for a method value); stripPackagePrefix trims the pkgpath down to its
// last segment so the result reads like "taskscheduler.heartbeat" instead
// of the fully qualified import path.
func funcName(fn Func) string {
	pc := reflect.ValueOf(fn).Pointer()
	if f := runtime.FuncForPC(pc); f != nil {
		return stripPackagePrefix(f.Name())
	}
	return "unknown"
}

func stripPackagePrefix(full string) string {
	last := full
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '/' {
			last = full[i+1:]
			break
		}
	}
	return last
}

// renderShort mirrors the original's readable_trim: collections are
// abbreviated rather than fully rendered, and long scalars are truncated.
func renderShort(value any) string {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return "[..]"
	case reflect.Map:
		return "{..}"
	case reflect.Struct:
		return "(..)"
	}
	s := fmt.Sprintf("%v", value)
	if len(s) > 6 {
		return s[:6] + ".."
	}
	return s
}

// SignatureHash is a stable per-job fingerprint used to key persisted state:
// sha1(variant + slot layout + callable identity + rendered args).
func (j *Job) SignatureHash() string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|", j.schedule.Variant)
	fmt.Fprintf(h, "%s|", scheduleSlotString(j.schedule))
	fmt.Fprintf(h, "%s|", funcName(j.fn))
	fmt.Fprintf(h, "%s", j.FunctionSignature())
	return hex.EncodeToString(h.Sum(nil))
}

func scheduleSlotString(s Schedule) string {
	out := ""
	for i, slot := range s.Slots {
		if i > 0 {
			out += ","
		}
		out += slot.String()
	}
	switch s.Variant {
	case VariantDayClass:
		return string(s.DayClass) + "@" + out
	case VariantMonthly:
		return fmt.Sprintf("%d[strict=%v]@%s", s.Monthly.Day, s.Monthly.Strict, out)
	case VariantRepeat:
		return s.Repeat.String()
	case VariantOneShot:
		return s.OneShot.Format("2006-01-02") + "@" + out
	default:
		return "never"
	}
}

// Run executes the job's callable, capturing output into a fresh
// StdoutCapture and recording the outcome into the job's RunRecord. isRerun
// suppresses the next-run reschedule (a forced rerun doesn't consume the
// regular schedule slot). A no-op if the job is already running.
func (j *Job) Run(ctx context.Context, isRerun bool) error {
	return j.RunWith(ctx, isRerun, nil)
}

// RunWith is Run with per-invocation argument overrides: override entries
// shadow the job's bound args for this one execution only. The signature
// hash and rendered function signature always reflect the bound args.
func (j *Job) RunWith(ctx context.Context, isRerun bool, override Args) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.mu.Unlock()

	j.record.reset()
	j.record.markStarted(time.Now())

	out := NewStdoutCapture(j.record, j.rotator)

	if !j.runSilently {
		label := "Start"
		if isRerun {
			label = "Rerun Start"
		}
		fmt.Fprintf(out, "========== [%03d] - Job %s [%s] =========\n", j.id, label, time.Now().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Executing %s\n", j.FunctionSignature())
		fmt.Fprintln(out, "*")
	}

	runErr := j.invoke(ctx, out, j.mergedArgs(override))

	if runErr != nil {
		j.logFailure(out, runErr)
	}

	if !isRerun {
		j.scheduleNext(true)
	}

	if !j.runSilently {
		label := "End"
		if isRerun {
			label = "Rerun End"
		}
		fmt.Fprintln(out, "*")
		fmt.Fprintf(out, "%s\n", j.FunctionSignature())
		fmt.Fprintf(out, "========== [%03d] - Job %s [%s] =========\n", j.id, label, time.Now().Format("2006-01-02 15:04:05"))
	}

	j.record.markEnded(time.Now())

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	for _, listener := range j.onComplete {
		listener := listener
		j.safeListener("on_complete listener", func() { listener(j, runErr) })
	}

	return runErr
}

func (j *Job) mergedArgs(override Args) Args {
	if len(override) == 0 {
		return j.args
	}
	merged := make(Args, len(j.args)+len(override))
	for k, v := range j.args {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

func (j *Job) invoke(ctx context.Context, out *StdoutCapture, args Args) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.FunctionSignature(), r)
		}
	}()
	return j.fn(ctx, out, args)
}

func (j *Job) logFailure(out *StdoutCapture, runErr error) {
	fmt.Fprintf(out, "Job %s failed!\n", j.FunctionSignature())
	msg := fmt.Sprintf("Error in %s\n\n\n%v", j.FunctionSignature(), runErr)
	j.record.SetError(msg)

	// Job-specific handler registered via Catch() overrides the scheduler's
	// generic one; only one of the two ever runs for a given failure.
	handler := j.errHandler
	if handler == nil {
		handler = j.genericErrHandler
	}
	if handler == nil {
		return
	}
	j.safeListener("error handler", func() { handler(msg) })
}

// scheduleNext recomputes the job's next fire time. justRan is true after a
// real (non-rerun) execution. Repeat schedules advance from the previous
// fire time so their cadence holds exactly despite tick jitter; every other
// variant computes from the wall clock.
func (j *Job) scheduleNext(justRan bool) {
	ref := time.Now()
	if justRan && j.schedule.Variant == VariantRepeat {
		j.mu.Lock()
		if !j.nextFireAt.IsZero() {
			ref = j.nextFireAt
		}
		j.mu.Unlock()
	}

	next, active := j.schedule.Next(ref, j.calendar, j.startupGrace, justRan)

	j.mu.Lock()
	j.nextFireAt = next
	j.expired = !active
	j.mu.Unlock()
}

// JobView is the read-only snapshot returned to callers inspecting a job
// (e.g. MonitorAPI), analogous to the original's to_dict.
type JobView struct {
	ID        int
	Signature string
	Type      Variant
	IsRunning bool
	Disabled  bool
	NextRun   *time.Time
	Logs      Snapshot
}

// ToDict renders a JobView. A disabled job always reports a nil NextRun -
// its next_fire_ts is logically 0 while disabled even though the
// underlying computed instant is kept; Enable() recomputes it from the
// wall clock rather than reusing it.
func (j *Job) ToDict() JobView {
	view := JobView{
		ID:        j.id,
		Signature: j.FunctionSignature(),
		Type:      j.schedule.Variant,
		IsRunning: j.IsRunning(),
		Disabled:  j.IsDisabled(),
		Logs:      j.record.ToDict(),
	}
	if next := j.NextFireAt(); !next.IsZero() && !view.Disabled {
		view.NextRun = &next
	}
	return view
}

// restoreState applies persisted state recovered from a StateStore: the run
// record (log/err/start/end) and the disabled flag. Mirrors the original's
// restore_all_job_logs, which calls _logs_from_dict then job.disable() when
// the persisted row says so.
func (j *Job) restoreState(state PersistedState) {
	j.record.restore(state.Log, state.Err, state.StartDt, state.EndDt)
	if state.Disabled {
		j.Disable()
	}
}
