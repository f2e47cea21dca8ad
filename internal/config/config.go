package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds the scheduler process configuration.
type Config struct {
	Host string
	Port string

	// SQLiteDBPath is where the SQL-backed StateStore keeps its database.
	// Empty disables the SQL backend in favor of the filesystem one.
	SQLiteDBPath string

	// DataDir overrides the FilesystemStore's base directory. Empty means
	// resolve from APPDATA, then XDG_DATA_HOME, then $HOME/.local/share.
	DataDir string

	// CheckIntervalSeconds is how often the Scheduler polls jobs for due-ness.
	CheckIntervalSeconds int

	// StartupGraceMinutes is the grace window applied to all schedule
	// variants at startup so a slot just in the past still fires once.
	StartupGraceMinutes int

	// DefaultTimezone is used for jobs that don't specify one explicitly.
	DefaultTimezone string

	// MonitorPrefix is the URL prefix MonitorAPI routes are mounted under.
	MonitorPrefix string

	// MonitorReadOnly disables the rerun/enable-disable mutating routes.
	MonitorReadOnly bool

	// RotatingLogPath, if set, mirrors captured job output through a
	// lumberjack-backed rotating file logger.
	RotatingLogPath string
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	return Config{
		Host:                 envString("HOST", "0.0.0.0"),
		Port:                 envString("PORT", "9100"),
		SQLiteDBPath:         envString("SCHEDULER_SQLITE_DB_PATH", "./data/taskscheduler.db"),
		DataDir:              envString("SCHEDULER_DATA_DIR", ""),
		CheckIntervalSeconds: envInt("SCHEDULER_CHECK_INTERVAL_SECONDS", 5),
		StartupGraceMinutes:  envInt("SCHEDULER_STARTUP_GRACE_MINUTES", 5),
		DefaultTimezone:      envString("SCHEDULER_DEFAULT_TIMEZONE", "UTC"),
		MonitorPrefix:        envString("SCHEDULER_MONITOR_PREFIX", "taskmonitor"),
		MonitorReadOnly:      envBool("SCHEDULER_MONITOR_READONLY", false),
		RotatingLogPath:      envString("SCHEDULER_ROTATING_LOG_PATH", ""),
	}
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}
