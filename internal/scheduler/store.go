package scheduler

import (
	"os"
	"path/filepath"
	"time"
)

// PersistedState is the opaque-to-callers blob a StateStore keeps per job
// signature: run output, error, timing, and the disabled flag, so a process
// restart can resume showing a job's last-known state before it fires again.
type PersistedState struct {
	Readable string
	Log      string
	Err      string
	StartDt  *time.Time
	EndDt    *time.Time
	Disabled bool
}

// StateStore persists and restores per-job state across process restarts,
// scoped by AppIdentity.
type StateStore interface {
	Load(identity AppIdentity, signatureHash string) (*PersistedState, error)
	Save(identity AppIdentity, signatureHash string, state PersistedState) error
	// Prune removes every persisted entry for identity whose signature is not
	// in keep. Called once at startup after every job has been registered, so
	// state for jobs that no longer exist doesn't accumulate forever.
	Prune(identity AppIdentity, keep []string) error
}

// defaultDataDir resolves the base directory FilesystemStore uses when none
// is configured explicitly: APPDATA, then XDG_DATA_HOME, then
// $HOME/.local/share, each joined with "taskscheduler".
func defaultDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "taskscheduler")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskscheduler")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".local", "share", "taskscheduler")
}
