package scheduler

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strefethen/taskscheduler/internal/api"
	"github.com/strefethen/taskscheduler/internal/apperrors"
)

// MonitorAPI exposes a Scheduler's registry over HTTP: read-only JSON views
// plus, unless configured read-only, rerun and enable/disable actions gated
// by a per-process token.
type MonitorAPI struct {
	scheduler *Scheduler
	prefix    string
	apiToken  string
	readOnly  bool
}

// NewMonitorAPI builds a MonitorAPI for the given scheduler. prefix is the
// route prefix ("/monitor", "/tasks", ...); readOnly drops the mutating
// routes entirely rather than keeping a deprecated alias.
func NewMonitorAPI(s *Scheduler, prefix string, readOnly bool) *MonitorAPI {
	if prefix == "" {
		prefix = "/taskmonitor"
	}
	if prefix[0] != '/' {
		prefix = "/" + prefix
	}
	return &MonitorAPI{
		scheduler: s,
		prefix:    prefix,
		apiToken:  generateAPIToken(),
		readOnly:  readOnly,
	}
}

// APIToken returns the per-process token that gates rerun/enable_disable.
// It is meant to be embedded into the HTML pages of this same monitor, not
// distributed separately.
func (m *MonitorAPI) APIToken() string { return m.apiToken }

func generateAPIToken() string {
	a := uuid.New()
	b := uuid.New()
	return stripHyphens(a.String()) + stripHyphens(b.String())[:8]
}

func stripHyphens(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

// RegisterRoutes wires the monitor's endpoints onto router.
func (m *MonitorAPI) RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, m.prefix+"/json/all", api.Handler(m.listAll))
	router.Method(http.MethodGet, m.prefix+"/json/summary", api.Handler(m.summary))
	router.Method(http.MethodGet, m.prefix+"/json/{id}", api.Handler(m.getOne))

	if m.readOnly {
		return
	}
	router.Method(http.MethodPost, m.prefix+"/rerun", api.Handler(m.rerun))
	router.Method(http.MethodPost, m.prefix+"/enable_disable", api.Handler(m.enableDisable))
}

func (m *MonitorAPI) listAll(w http.ResponseWriter, r *http.Request) error {
	jobs := m.scheduler.Jobs()
	if len(jobs) == 0 {
		return apperrors.NewNotFoundError("Nothing here")
	}
	dicts := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		dicts = append(dicts, jobDict(j))
	}
	return api.WriteSuccess(w, dicts)
}

func (m *MonitorAPI) summary(w http.ResponseWriter, r *http.Request) error {
	jobs := m.scheduler.Jobs()

	running, errored := 0, 0
	details := make([]map[string]any, 0, len(jobs))
	for _, j := range jobs {
		view := j.ToDict()
		if view.IsRunning {
			running++
		}
		if view.Logs.Err != "" {
			errored++
		}
		details = append(details, map[string]any{
			"id":        view.ID,
			"state":     jobState(view),
			"signature": view.Signature,
			"prev_run":  formatTimePtr(view.Logs.StartedAt),
			"next_run":  formatTimePtr(view.NextRun),
		})
	}

	payload := map[string]any{
		"name": m.scheduler.processName(),
		"summary": map[string]any{
			"count":   len(jobs),
			"running": running,
			"errors":  errored,
		},
		"details": details,
	}
	return api.WriteSuccess(w, payload)
}

func (m *MonitorAPI) getOne(w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return apperrors.NewNotFoundError("Invalid job id")
	}
	job, ok := m.scheduler.GetByID(id)
	if !ok {
		return apperrors.NewNotFoundError("Invalid job id")
	}
	return api.WriteSuccess(w, jobDict(job))
}

type rerunRequest struct {
	JobID    int    `json:"jobid"`
	APIToken string `json:"api_token"`
}

func (m *MonitorAPI) rerun(w http.ResponseWriter, r *http.Request) error {
	var req rerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("Invalid input")
	}
	if req.APIToken != m.apiToken {
		return apperrors.NewBlockedError("Action blocked")
	}

	if err := m.scheduler.Rerun(req.JobID); err != nil {
		switch err.(type) {
		case *InvalidJobIDError:
			return apperrors.NewValidationError("Invalid input")
		default:
			// JobBusy and anything else surface their own message, the way
			// the original relayed str(e) into the error envelope.
			return apperrors.NewValidationError(err.Error())
		}
	}
	return api.WriteSuccess(w, true)
}

type enableDisableRequest struct {
	JobID    int    `json:"jobid"`
	APIToken string `json:"api_token"`
	Disable  bool   `json:"disable"`
}

func (m *MonitorAPI) enableDisable(w http.ResponseWriter, r *http.Request) error {
	var req enableDisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.NewValidationError("Invalid input")
	}
	if req.APIToken != m.apiToken {
		return apperrors.NewBlockedError("Action blocked")
	}

	job, ok := m.scheduler.GetByID(req.JobID)
	if !ok {
		return apperrors.NewValidationError("Invalid input")
	}
	job.SetDisabled(req.Disable)
	return api.WriteSuccess(w, true)
}

// jobState renders the externally-visible state label: READY | RUNNING |
// SUCCESS | ERROR | DISABLED, derived from disabled, running, record.err,
// record.end - mirrors the original task_monitor.py __state (SUCCESS
// requires a non-nil end and a non-empty log).
func jobState(view JobView) string {
	switch {
	case view.Disabled:
		return "DISABLED"
	case view.IsRunning:
		return "RUNNING"
	case view.Logs.Err != "":
		return "ERROR"
	case view.Logs.EndedAt != nil && view.Logs.Log != "":
		return "SUCCESS"
	default:
		return "READY"
	}
}

func jobDict(j *Job) map[string]any {
	view := j.ToDict()
	every, at, tzname := scheduleDescriptors(j.schedule)

	return map[string]any{
		"jobid":       view.ID,
		"func":        funcName(j.fn),
		"signature":   view.Signature,
		"src":         nil,
		"doc":         docOrNil(j.doc),
		"type":        string(view.Type),
		"every":       every,
		"at":          at,
		"tzname":      tzname,
		"is_running":  view.IsRunning,
		"is_disabled": view.Disabled,
		"next_run":    formatTimePtr(view.NextRun),
		"logs": map[string]any{
			"log":   view.Logs.Log,
			"err":   view.Logs.Err,
			"start": formatTimePtr(view.Logs.StartedAt),
			"end":   formatTimePtr(view.Logs.EndedAt),
		},
	}
}

func scheduleDescriptors(s Schedule) (every any, at any, tzname any) {
	switch s.Variant {
	case VariantDayClass:
		every = string(s.DayClass)
	case VariantMonthly:
		every = strconv.Itoa(s.Monthly.Day) + ordinalSuffix(s.Monthly.Day)
	case VariantRepeat:
		every = s.Repeat.Seconds()
	case VariantOneShot:
		every = s.OneShot.Format("2006-01-02")
	case VariantNever:
		every = "never"
	}

	at = slotsToAt(s.Slots)
	if s.Location != nil {
		tzname = s.Location.String()
	}
	return every, at, tzname
}

func slotsToAt(slots []Slot) any {
	if len(slots) == 0 {
		return nil
	}
	if len(slots) == 1 {
		return slots[0].String()
	}
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	return out
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func docOrNil(doc string) any {
	if doc == "" {
		return nil
	}
	return doc
}

func formatTimePtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}

func (s *Scheduler) processName() string {
	if s.identity.Executable == "" {
		return "taskscheduler"
	}
	return filepath.Base(s.identity.Executable)
}
