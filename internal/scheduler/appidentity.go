package scheduler

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"strings"
)

// AppIdentity fingerprints the running process: its working directory,
// executable path, and arguments. StateStore implementations use this to
// scope persisted job state to "this app, run from this place, with these
// arguments" - the Go equivalent of the original's per-process state
// namespace.
type AppIdentity struct {
	Cwd        string
	Executable string
	Args       []string
}

// CurrentAppIdentity inspects the running process.
func CurrentAppIdentity() (AppIdentity, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return AppIdentity{}, err
	}
	exe, err := os.Executable()
	if err != nil {
		return AppIdentity{}, err
	}
	return AppIdentity{Cwd: cwd, Executable: exe, Args: os.Args[1:]}, nil
}

// Hex returns the sha1 hex digest identifying this AppIdentity.
func (a AppIdentity) Hex() string {
	h := sha1.New()
	h.Write([]byte(a.Cwd))
	h.Write([]byte("|"))
	h.Write([]byte(a.Executable))
	h.Write([]byte("|"))
	h.Write([]byte(strings.Join(a.Args, " ")))
	return hex.EncodeToString(h.Sum(nil))
}

// CwdBasename is the last path segment of Cwd, used to name the filesystem
// fingerprint file.
func (a AppIdentity) CwdBasename() string {
	trimmed := strings.TrimRight(a.Cwd, "/\\")
	idx := strings.LastIndexAny(trimmed, "/\\")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}

// UniqueInfo is a human-readable description stored alongside the app_id,
// for the "apps" table / fingerprint file.
func (a AppIdentity) UniqueInfo() string {
	return a.Executable + " " + strings.Join(a.Args, " ") + " (cwd=" + a.Cwd + ")"
}
