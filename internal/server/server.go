package server

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/taskscheduler/internal/api"
	"github.com/strefethen/taskscheduler/internal/calendar"
	"github.com/strefethen/taskscheduler/internal/config"
	"github.com/strefethen/taskscheduler/internal/db"
	"github.com/strefethen/taskscheduler/internal/scheduler"
	"gopkg.in/natefinch/lumberjack.v2"
)

// responseWriter wraps http.ResponseWriter to capture status code for the
// request logger.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.RequestURI(), wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring. HolidayCalendarPath, if set, loads a YAML
// calendar instead of the empty default.
type Options struct {
	HolidayCalendarPath string
}

// NewHandler builds the HTTP handler, the Scheduler backing it (so the
// caller can register jobs before calling Start), and a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, *scheduler.Scheduler, func(context.Context) error, error) {
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		log.Printf("unknown timezone %q, falling back to UTC: %v", cfg.DefaultTimezone, err)
		loc = time.UTC
	}

	cal := calendar.Empty
	if options.HolidayCalendarPath != "" {
		loaded, err := calendar.LoadYAMLCalendar(options.HolidayCalendarPath)
		if err != nil {
			return nil, nil, nil, err
		}
		cal = loaded
	}

	var store scheduler.StateStore
	var dbPair *db.DBPair
	if cfg.SQLiteDBPath != "" {
		log.Printf("Using database: %s", cfg.SQLiteDBPath)
		dbPair, err = db.Init(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		store = scheduler.NewSQLStore(dbPair)
	} else {
		store = scheduler.NewFilesystemStore(cfg.DataDir)
	}

	var rotator *lumberjack.Logger
	if cfg.RotatingLogPath != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.RotatingLogPath,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
		}
	}

	var rotatorIface io.Writer
	if rotator != nil {
		rotatorIface = rotator
	}

	sched := scheduler.New(scheduler.Options{
		CheckInterval: time.Duration(cfg.CheckIntervalSeconds) * time.Second,
		StartupGrace:  time.Duration(cfg.StartupGraceMinutes) * time.Minute,
		Location:      loc,
		Calendar:      cal,
		Logger:        log.Default(),
		Store:         store,
		Rotator:       rotatorIface,
	})

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)

	registerHealthRoutes(router)

	monitor := scheduler.NewMonitorAPI(sched, cfg.MonitorPrefix, cfg.MonitorReadOnly)
	monitor.RegisterRoutes(router)
	log.Printf("monitor api token (keep secret): %s", monitor.APIToken())

	shutdown := func(ctx context.Context) error {
		sched.Stop()
		if rotator != nil {
			_ = rotator.Close()
		}
		if dbPair != nil {
			return dbPair.Close()
		}
		return nil
	}

	return router, sched, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"service":   "taskscheduler",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
