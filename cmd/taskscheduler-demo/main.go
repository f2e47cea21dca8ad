// Command taskscheduler-demo starts the scheduler HTTP process: it builds
// the Scheduler, registers a handful of example jobs, and serves the
// MonitorAPI until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/strefethen/taskscheduler/internal/config"
	"github.com/strefethen/taskscheduler/internal/scheduler"
	"github.com/strefethen/taskscheduler/internal/server"
)

func main() {
	cfg := config.Load()
	addr := cfg.Host + ":" + cfg.Port

	handler, sched, shutdownHandler, err := server.NewHandler(cfg, server.Options{
		HolidayCalendarPath: os.Getenv("SCHEDULER_HOLIDAY_CALENDAR_PATH"),
	})
	if err != nil {
		log.Fatalf("server init error: %v", err)
	}

	registerExampleJobs(sched)
	sched.StartBackground()

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownHandler(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("taskscheduler-demo listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func registerExampleJobs(sched *scheduler.Scheduler) {
	if _, err := sched.Every("day").At("08:00").Do(heartbeat, scheduler.Args{"label": "morning"}); err != nil {
		log.Fatalf("register heartbeat job: %v", err)
	}

	if _, err := sched.Every(60).Do(pollUpstream, nil); err != nil {
		log.Fatalf("register poll job: %v", err)
	}

	if _, err := sched.Every("1st").StrictDate(false).At("06:00").Do(monthlyReport, nil); err != nil {
		log.Fatalf("register monthly report job: %v", err)
	}
}

func heartbeat(ctx context.Context, out io.Writer, args scheduler.Args) error {
	fmt.Fprintf(out, "heartbeat: %v\n", args["label"])
	return nil
}

func pollUpstream(ctx context.Context, out io.Writer, args scheduler.Args) error {
	fmt.Fprintln(out, "polling upstream")
	return nil
}

func monthlyReport(ctx context.Context, out io.Writer, args scheduler.Args) error {
	fmt.Fprintln(out, "generating monthly report")
	return nil
}
