package scheduler

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/taskscheduler/internal/calendar"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	return New(Options{
		CheckInterval: time.Hour, // never fires on its own during these tests
		Logger:        testLogger(),
	})
}

func TestBuilder_Every_DispatchesToCorrectVariant(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context, io.Writer, Args) error { return nil }

	dayJob, err := s.Every("weekday").At("09:00").Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantDayClass, dayJob.schedule.Variant)

	repeatJob, err := s.Every(30).Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantRepeat, repeatJob.schedule.Variant)
	assert.Equal(t, 30*time.Second, repeatJob.schedule.Repeat)

	oneShotJob, err := s.Every("2099-01-01").At("00:00").Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantOneShot, oneShotJob.schedule.Variant)

	monthlyJob, err := s.Every("31st").StrictDate(false).At("00:00").Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantMonthly, monthlyJob.schedule.Variant)

	neverJob, err := s.Every("never").Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantNever, neverJob.schedule.Variant)

	onDemandJob, err := s.Every("on-demand").Do(noop, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantNever, onDemandJob.schedule.Variant)
}

func TestBuilder_RejectsDeprecatedHoliday(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Every("holiday").At("09:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.Error(t, err)
	var badSchedule *BadScheduleError
	assert.ErrorAs(t, err, &badSchedule)
}

func TestBuilder_MonthlyWithoutStrictDateFails(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Every("15th").At("09:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.Error(t, err)
}

func TestBuilder_MonthlyWithMultipleSlotsFails(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Every("15th").StrictDate(false).At("09:00", "17:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.Error(t, err)
	var badSchedule *BadScheduleError
	assert.ErrorAs(t, err, &badSchedule)
}

func TestBuilder_NonPositiveRepeatIntervalFails(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context, io.Writer, Args) error { return nil }

	_, err := s.Every(0).Do(noop, nil)
	require.Error(t, err)

	_, err = s.Every(-5).Do(noop, nil)
	require.Error(t, err)
}

func TestBuilder_MonthlyAndOneShotRequireExplicitAt(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context, io.Writer, Args) error { return nil }

	_, err := s.Every("15th").StrictDate(false).Do(noop, nil)
	require.Error(t, err)

	_, err = s.Every("2099-01-01").Do(noop, nil)
	require.Error(t, err)

	// A plain day-class falls back to the current wall-clock time instead.
	_, err = s.Every("day").Do(noop, nil)
	require.NoError(t, err)
}

func TestBuilder_StrictDateOnNonMonthlyFails(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Every("day").StrictDate(true).At("09:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.Error(t, err)
	var badSchedule *BadScheduleError
	assert.ErrorAs(t, err, &badSchedule)
}

func TestBuilder_UnrecognizedIntervalFails(t *testing.T) {
	s := newTestScheduler(t)
	_, err := s.Every("fortnightly").At("09:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.Error(t, err)
}

func TestBuilder_On_IsAnEveryAliasWithPerJobCalendar(t *testing.T) {
	s := newTestScheduler(t)
	goodFriday := time.Date(2020, 4, 10, 0, 0, 0, 0, time.UTC)
	cal := calendar.NewStaticCalendar(goodFriday)

	job, err := s.On("businessday", cal).At("09:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantDayClass, job.schedule.Variant)
	assert.Same(t, cal, job.calendar.(*calendar.StaticCalendar))
}

func TestScheduler_RegisterVariant_TriedBeforeBuiltins(t *testing.T) {
	s := newTestScheduler(t)
	s.RegisterVariant(func(interval any) (Schedule, bool) {
		if interval == "quarterly" {
			return Schedule{Variant: VariantRepeat, Repeat: 90 * 24 * time.Hour}, true
		}
		return Schedule{}, false
	})

	job, err := s.Every("quarterly").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, VariantRepeat, job.schedule.Variant)
	assert.Equal(t, 90*24*time.Hour, job.schedule.Repeat)
}

func TestScheduler_Check_RunsDueSerialJobInline(t *testing.T) {
	s := newTestScheduler(t)
	var ran int32
	job, err := s.Every("day").At("00:00").Do(func(context.Context, io.Writer, Args) error {
		atomic.AddInt32(&ran, 1)
		return nil
	}, nil)
	require.NoError(t, err)
	job.nextFireAt = time.Now().Add(-time.Minute)

	s.Check() // serial: blocks until the job returns
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
	assert.False(t, job.IsRunning(), "serial Check call already waited for the job to finish")
}

func TestScheduler_Check_RunsParallelJobOnGoroutine(t *testing.T) {
	s := newTestScheduler(t)
	release := make(chan struct{})
	started := make(chan struct{})

	job, err := s.Every("day").At("00:00").DoParallel(func(context.Context, io.Writer, Args) error {
		close(started)
		<-release
		return nil
	}, nil)
	require.NoError(t, err)
	job.nextFireAt = time.Now().Add(-time.Minute)

	s.Check()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("parallel job never started")
	}
	assert.True(t, job.IsRunning(), "Check must not block on a parallel job")
	close(release)
	s.Join()
	assert.False(t, job.IsRunning())
}

func TestScheduler_Check_SkipsRunningJob(t *testing.T) {
	s := newTestScheduler(t)
	var calls int32
	job, err := s.Every("day").At("00:00").Do(func(context.Context, io.Writer, Args) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)
	require.NoError(t, err)
	job.running = true
	job.nextFireAt = time.Now().Add(-time.Minute)

	s.Check()
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "IsDue is false while running, so Check must not invoke it")
}

func TestScheduler_Check_DropsExpiredOneShot(t *testing.T) {
	s := newTestScheduler(t)
	job, err := s.Every("2000-01-01").At("00:00").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)
	assert.True(t, job.Expired())

	s.Check()
	assert.Len(t, s.Jobs(), 0)
}

func TestScheduler_Rerun_RequiresKnownNonRunningJob(t *testing.T) {
	s := newTestScheduler(t)

	err := s.Rerun(999)
	var invalid *InvalidJobIDError
	assert.ErrorAs(t, err, &invalid)

	job, err := s.Every("never").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)
	job.running = true
	err = s.Rerun(job.ID())
	var busy *JobBusyError
	assert.ErrorAs(t, err, &busy)
}

func TestScheduler_Rerun_ExecutesNeverJobWithoutShiftingSchedule(t *testing.T) {
	s := newTestScheduler(t)
	var wg sync.WaitGroup
	wg.Add(1)

	job, err := s.Every("never").Do(func(context.Context, io.Writer, Args) error {
		defer wg.Done()
		return nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, job.NextFireAt().IsZero())

	require.NoError(t, s.Rerun(job.ID()))
	wg.Wait()
	s.Join()

	assert.True(t, job.NextFireAt().IsZero(), "Never jobs keep next_fire_ts == 0 even across a rerun")
}

func TestScheduler_EnableDisableAll(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context, io.Writer, Args) error { return nil }
	j1, _ := s.Every("day").At("00:00").Do(noop, nil)
	j2, _ := s.Every("day").At("00:01").Do(noop, nil)

	s.DisableAll()
	assert.True(t, j1.IsDisabled())
	assert.True(t, j2.IsDisabled())

	s.EnableAll()
	assert.False(t, j1.IsDisabled())
	assert.False(t, j2.IsDisabled())
}

func TestScheduler_Start_BlocksUntilStop(t *testing.T) {
	s := newTestScheduler(t)

	done := make(chan struct{})
	go func() {
		s.Start()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Start must block the calling goroutine until Stop is called")
	case <-time.After(50 * time.Millisecond):
	}

	s.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestScheduler_StartBackground_ReturnsImmediately(t *testing.T) {
	s := newTestScheduler(t)

	returned := make(chan struct{})
	go func() {
		s.StartBackground()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("StartBackground must return without waiting for Stop")
	}

	s.Stop()
}

func TestScheduler_GetByID(t *testing.T) {
	s := newTestScheduler(t)
	job, err := s.Every("never").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)

	found, ok := s.GetByID(job.ID())
	assert.True(t, ok)
	assert.Same(t, job, found)

	_, ok = s.GetByID(job.ID() + 1000)
	assert.False(t, ok)
}

// memStore is a minimal in-memory StateStore for persistence tests that
// don't need a real filesystem or database round trip.
type memStore struct {
	mu    sync.Mutex
	byKey map[string]PersistedState
}

func newMemStore() *memStore { return &memStore{byKey: map[string]PersistedState{}} }

func (m *memStore) Load(identity AppIdentity, sig string) (*PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.byKey[identity.Hex()+"|"+sig]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *memStore) Save(identity AppIdentity, sig string, state PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[identity.Hex()+"|"+sig] = state
	return nil
}

func (m *memStore) Prune(identity AppIdentity, keep []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keepSet := make(map[string]struct{}, len(keep))
	for _, sig := range keep {
		keepSet[identity.Hex()+"|"+sig] = struct{}{}
	}
	for k := range m.byKey {
		if _, ok := keepSet[k]; !ok {
			delete(m.byKey, k)
		}
	}
	return nil
}

func TestScheduler_Start_RestoresPersistedStateAndPrunesStale(t *testing.T) {
	store := newMemStore()
	identity := AppIdentity{Cwd: "/app", Executable: "/bin/app", Args: nil}

	// Pre-seed a state entry with a signature that will never be registered
	// again - it should be pruned once the scheduler starts.
	store.byKey[identity.Hex()+"|stale-signature"] = PersistedState{Log: "stale"}

	s := New(Options{Logger: testLogger(), Store: store, CheckInterval: time.Hour})
	s.identity = identity

	noop := func(context.Context, io.Writer, Args) error { return nil }
	job, err := s.Every("never").Do(noop, nil)
	require.NoError(t, err)

	end := time.Now()
	start := end.Add(-time.Minute)
	require.NoError(t, store.Save(identity, job.SignatureHash(), PersistedState{
		Log: "previous run output", Err: "", StartDt: &start, EndDt: &end, Disabled: true,
	}))

	s.StartBackground()
	defer s.Stop()

	assert.True(t, job.IsDisabled(), "restore must apply the persisted disabled flag")
	snap := job.record.ToDict()
	assert.Equal(t, "previous run output", snap.Log)

	_, stillThere := store.byKey[identity.Hex()+"|stale-signature"]
	assert.False(t, stillThere, "Start must prune entries for signatures no longer registered")
}

func TestScheduler_RerunWith_PassesOverrideArgs(t *testing.T) {
	s := newTestScheduler(t)
	var wg sync.WaitGroup
	wg.Add(1)

	var got string
	job, err := s.Every("never").Do(func(ctx context.Context, out io.Writer, args Args) error {
		defer wg.Done()
		got, _ = args["label"].(string)
		return nil
	}, Args{"label": "bound"})
	require.NoError(t, err)

	require.NoError(t, s.RerunWith(job.ID(), Args{"label": "override"}))
	wg.Wait()
	s.Join()

	assert.Equal(t, "override", got)
}

func TestScheduler_PersistJobState_WrittenOnDisable(t *testing.T) {
	store := newMemStore()
	s := New(Options{Logger: testLogger(), Store: store, CheckInterval: time.Hour})

	job, err := s.Every("never").Do(func(context.Context, io.Writer, Args) error { return nil }, nil)
	require.NoError(t, err)

	job.Disable()

	st, err := store.Load(s.identity, job.SignatureHash())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Disabled)

	job.Enable()
	st, err = store.Load(s.identity, job.SignatureHash())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.False(t, st.Disabled)
}

func TestScheduler_PersistJobState_WrittenAfterEachRun(t *testing.T) {
	store := newMemStore()
	s := New(Options{Logger: testLogger(), Store: store, CheckInterval: time.Hour})

	job, err := s.Every("never").Do(func(ctx context.Context, out io.Writer, args Args) error {
		io.WriteString(out, "ok")
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background(), false))

	st, err := store.Load(s.identity, job.SignatureHash())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Contains(t, st.Log, "ok")
}
