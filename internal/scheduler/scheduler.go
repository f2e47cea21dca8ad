package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

// DefaultCheckInterval mirrors the original TaskScheduler's default poll
// cadence.
const DefaultCheckInterval = 5 * time.Second

// Options configures a Scheduler at construction.
type Options struct {
	CheckInterval time.Duration
	StartupGrace  time.Duration
	Location      *time.Location
	Calendar      calendar.HolidayCalendar
	Logger        *log.Logger
	OnJobError    func(msg string)
	Store         StateStore
	Rotator       io.Writer
}

// Scheduler owns the job registry and the poll loop that fires due jobs. It
// is the Go counterpart of the original's TaskScheduler: a long-lived
// per-process singleton that jobs are registered against via Every(...).
type Scheduler struct {
	logger        *log.Logger
	checkInterval time.Duration
	startupGrace  time.Duration
	loc           *time.Location
	calendar      calendar.HolidayCalendar
	onJobError    func(msg string)
	store         StateStore
	rotator       io.Writer
	identity      AppIdentity

	variantMatchers []func(interval any) (Schedule, bool)

	mu     sync.Mutex
	jobs   []*Job
	nextID int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup // the poll-loop goroutine
	runWg    sync.WaitGroup // in-flight parallel job runs, drained by Join
}

// New constructs a Scheduler. Zero-valued Options fields fall back to
// sensible defaults (5s check interval, UTC, no calendar, stdlib logger).
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	checkInterval := opts.CheckInterval
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	cal := opts.Calendar
	if cal == nil {
		cal = calendar.Empty
	}

	identity, err := CurrentAppIdentity()
	if err != nil {
		logger.Printf("could not determine app identity: %v", err)
	}

	return &Scheduler{
		logger:        logger,
		checkInterval: checkInterval,
		startupGrace:  opts.StartupGrace,
		loc:           loc,
		calendar:      cal,
		onJobError:    opts.OnJobError,
		store:         opts.Store,
		rotator:       opts.Rotator,
		identity:      identity,
		stopCh:        make(chan struct{}),
	}
}

func (s *Scheduler) location() *time.Location { return s.loc }

// RegisterVariant installs a matcher tried before the five built-in
// variants for every value given to Every(...). Matchers are tried in
// registration order; the first to return ok=true wins.
func (s *Scheduler) RegisterVariant(matcher func(interval any) (Schedule, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variantMatchers = append(s.variantMatchers, matcher)
}

// register assigns the next job id and adds the job to the registry.
// Persisted state is not consulted here: it is restored in bulk by
// restoreState, once every job from the startup build phase is registered,
// so pruning can see the complete current signature set.
func (s *Scheduler) register(schedule Schedule, fn Func, args Args, parallel bool, cal calendar.HolidayCalendar) (*Job, error) {
	if schedule.Location == nil {
		schedule.Location = s.loc
	}
	if cal == nil {
		cal = s.calendar
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	job := newJob(id, schedule, fn, args, parallel, cal, s.startupGrace, s.onJobError, s.logger, s.rotator)
	job.OnComplete(s.persistJobState)
	// Enable/disable flips are part of the persisted state too, so a restart
	// doesn't silently resurrect a job an operator switched off.
	job.OnEnable(func(job *Job) { s.persistJobState(job, nil) })
	job.OnDisable(func(job *Job) { s.persistJobState(job, nil) })

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()

	s.logger.Printf("%s", describeJob(job))
	return job, nil
}

// restoreState loads persisted state for every currently registered job and
// prunes store entries that no signature matches anymore. Ported from the
// original's StateStore.restore_all_job_logs: select everything for this
// app identity, restore matches, delete what's left over.
func (s *Scheduler) restoreState() {
	if s.store == nil {
		return
	}

	jobs := s.Jobs()
	signatures := make([]string, 0, len(jobs))
	for _, job := range jobs {
		sig := job.SignatureHash()
		signatures = append(signatures, sig)

		state, err := s.store.Load(s.identity, sig)
		if err != nil {
			s.logger.Printf("failed to load persisted state for job %d: %v", job.ID(), err)
			continue
		}
		if state != nil {
			job.restoreState(*state)
		}
	}

	if err := s.store.Prune(s.identity, signatures); err != nil {
		s.logger.Printf("failed to prune stale persisted state: %v", err)
	}
}

func (s *Scheduler) persistJobState(job *Job, _ error) {
	if s.store == nil {
		return
	}
	snap := job.record.ToDict()
	state := PersistedState{
		Readable: job.FunctionSignature(),
		Log:      snap.Log,
		Err:      snap.Err,
		StartDt:  snap.StartedAt,
		EndDt:    snap.EndedAt,
		Disabled: job.IsDisabled(),
	}
	if err := s.store.Save(s.identity, job.SignatureHash(), state); err != nil {
		s.logger.Printf("on_complete listener: failed to persist job %d state: %v", job.ID(), err)
	}
}

func describeJob(j *Job) string {
	next := "Never"
	if at := j.NextFireAt(); !at.IsZero() {
		next = at.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("[%03d] registered | Next run = %s | %s", j.ID(), next, j.FunctionSignature())
}

// Jobs returns a snapshot slice of every registered job.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// GetByID returns the job with the given id, if any.
func (s *Scheduler) GetByID(id int) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID() == id {
			return j, true
		}
	}
	return nil, false
}

// Check scans a snapshot of the registry in insertion order. Serial jobs
// (the default, Do(...)) run inline on the calling goroutine - a long
// serial callable stalls the next tick, exactly as the original's
// single-threaded check() loop does. Parallel jobs (DoParallel(...)) are
// dispatched onto a fresh goroutine, tracked by runWg so Join can drain
// them, and don't block the rest of this scan.
func (s *Scheduler) Check() {
	for _, job := range s.removeExpired() {
		if !job.IsDue() {
			continue
		}
		if job.IsParallel() {
			s.goRunJob(job, false, nil)
		} else {
			s.runJob(job, false, nil)
		}
	}
}

// goRunJob runs job on a fresh goroutine tracked by runWg.
func (s *Scheduler) goRunJob(job *Job, isRerun bool, override Args) {
	s.runWg.Add(1)
	go func() {
		defer s.runWg.Done()
		s.runJob(job, isRerun, override)
	}()
}

func (s *Scheduler) removeExpired() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.jobs[:0:0]
	for _, j := range s.jobs {
		if j.Expired() {
			s.logger.Printf("job %d expired, removing", j.ID())
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept

	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// runJob executes one job. Error routing (job-specific handler, else the
// scheduler's generic one) happens inside Job.Run; this only adds a
// scheduler-level log line so operators see failures in the process log
// even when no handler is registered at all.
func (s *Scheduler) runJob(job *Job, isRerun bool, override Args) {
	if err := job.RunWith(context.Background(), isRerun, override); err != nil {
		s.logger.Printf("job %d failed: %v", job.ID(), err)
	}
}

// Rerun forces an immediate, out-of-band execution of a job. It does not
// consume or reschedule the job's regular next fire time. Returns
// JobBusyError if the job is already running and InvalidJobIDError if id is
// unknown.
func (s *Scheduler) Rerun(id int) error {
	return s.RerunWith(id, nil)
}

// RerunWith is Rerun with per-invocation argument overrides layered over
// the job's bound args. The rerun always runs on a detached worker, even
// for jobs registered serial, so the caller (typically an HTTP handler)
// gets control back immediately.
func (s *Scheduler) RerunWith(id int, override Args) error {
	job, ok := s.GetByID(id)
	if !ok {
		return NewInvalidJobIDError(id)
	}
	if job.IsRunning() {
		return NewJobBusyError(id)
	}
	s.goRunJob(job, true, override)
	return nil
}

// EnableAll re-enables every registered job.
func (s *Scheduler) EnableAll() {
	for _, j := range s.Jobs() {
		j.Enable()
	}
}

// DisableAll disables every registered job, preventing automatic firing
// until re-enabled.
func (s *Scheduler) DisableAll() {
	for _, j := range s.Jobs() {
		j.Disable()
	}
}

// Start restores persisted state and then blocks, running the poll loop on
// the calling goroutine until Stop() is called, matching the original's
// blocking sched.start(). Callers embedding the scheduler alongside
// something else that must also run on the main goroutine (an HTTP server,
// for instance) should call StartBackground instead.
func (s *Scheduler) Start() {
	s.restoreState()
	s.logger.Printf("scheduler starting, check interval %v", s.checkInterval)
	s.wg.Add(1)
	defer s.wg.Done()
	s.runLoop()
}

// StartBackground is the non-blocking counterpart to Start: it restores
// state and runs the poll loop on a spawned goroutine, returning immediately
// so the caller's own goroutine is free - e.g. to then block on
// http.Server.ListenAndServe. Stop() joins it exactly the same way it joins
// a blocking Start().
func (s *Scheduler) StartBackground() {
	s.restoreState()
	s.logger.Printf("scheduler starting, check interval %v", s.checkInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runLoop()
	}()
}

func (s *Scheduler) runLoop() {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// First check happens right away, not one full interval in - a job whose
	// slot is inside the startup grace window should fire on boot.
	s.Check()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Check()
		}
	}
}

// Stop signals the poll loop to exit at the next tick boundary, then joins:
// waits unconditionally for every in-flight parallel run (and reruns) to
// finish. A long serial job already running on the loop goroutine is
// naturally waited on too, since the loop goroutine doesn't exit until its
// current Check() call returns.
func (s *Scheduler) Stop() {
	s.logger.Println("scheduler stopping...")
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.Join()
	s.logger.Println("scheduler stopped")
}

// Join blocks until every parallel job run and rerun dispatched via
// goRunJob has returned. Safe to call on its own (e.g. from tests) without
// going through Stop.
func (s *Scheduler) Join() {
	s.runWg.Wait()
}
