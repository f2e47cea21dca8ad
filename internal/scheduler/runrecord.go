package scheduler

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// RunRecord holds the captured output, error, and timing of one job
// execution. It is the Go translation of the original's _PrintLogger: every
// field is guarded by the same mutex so a concurrent ToDict() read never
// races a running job's writes.
type RunRecord struct {
	mu        sync.Mutex
	log       strings.Builder
	err       string
	startedAt time.Time
	endedAt   time.Time
}

func (r *RunRecord) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Reset()
	r.err = ""
	r.startedAt = time.Time{}
	r.endedAt = time.Time{}
}

func (r *RunRecord) markStarted(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startedAt = at
}

func (r *RunRecord) markEnded(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endedAt = at
}

func (r *RunRecord) appendLog(s string) {
	if strings.TrimSpace(s) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.WriteString(s)
}

// SetError records a failure's rendered error text.
func (r *RunRecord) SetError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// restore populates the record from a persisted snapshot (StateStore
// restore path), replacing whatever this run's RunRecord currently holds.
func (r *RunRecord) restore(log, err string, start, end *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Reset()
	r.log.WriteString(log)
	r.err = err
	if start != nil {
		r.startedAt = *start
	}
	if end != nil {
		r.endedAt = *end
	}
}

// Snapshot is a point-in-time, race-free copy of a RunRecord's fields.
type Snapshot struct {
	Log       string
	Err       string
	StartedAt *time.Time
	EndedAt   *time.Time
}

// ToDict returns a Snapshot of the record, matching the original's to_dict.
func (r *RunRecord) ToDict() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{Log: r.log.String(), Err: r.err}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		snap.StartedAt = &t
	}
	if !r.endedAt.IsZero() {
		t := r.endedAt
		snap.EndedAt = &t
	}
	return snap
}

// StdoutCapture is the per-Run() io.Writer handed to a job's callable in
// place of the original's thread-local stdout redirection. Go has no clean
// way to swap os.Stdout per goroutine, so every write instead goes directly
// to an instance owned by that single Run() call: appended to the owning
// RunRecord, teed to stderr so host-process logs still interleave, and
// optionally teed to a rotating log file.
type StdoutCapture struct {
	record  *RunRecord
	rotator io.Writer
}

// NewStdoutCapture constructs a capture writer bound to record. rotator may
// be nil, in which case output is not mirrored to a file.
func NewStdoutCapture(record *RunRecord, rotator io.Writer) *StdoutCapture {
	return &StdoutCapture{record: record, rotator: rotator}
}

// Write implements io.Writer.
func (c *StdoutCapture) Write(p []byte) (int, error) {
	text := strings.ReplaceAll(string(p), "\r\n", "\n")
	c.record.appendLog(text)
	_, _ = os.Stderr.WriteString(text)
	if c.rotator != nil {
		_, _ = c.rotator.Write([]byte(text))
	}
	return len(p), nil
}

var _ io.Writer = (*StdoutCapture)(nil)
