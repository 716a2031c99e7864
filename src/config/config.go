package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvFileEnvVar         = "RODSPOT_ENV"
	TrackerPathEnvVar     = "TRACKER_PATH"
	ExitOnStdinEOFEnvVar  = "TRACKER_EXIT_ON_STDIN_EOF"
	DefaultTrackerName    = "global_mouse_tracker"
	DefaultBoundsFileName = "rodspot-config.json"
	DefaultLogLevel       = "info"
)

type LoadOptions struct {
	TrackerPathOverride string
	BoundsFileOverride  string
	LogLevelOverride    string
}

type Config struct {
	EnableFileLogging bool
	LogLevel          string

	// Tracker process
	Buttons        string
	DebounceWindow time.Duration
	DebounceRadius int
	ExitOnStdinEOF bool

	// Host side
	TrackerPath  string
	RestartDelay time.Duration
	KillGrace    time.Duration
	MaxRestarts  int
	BoundsFile   string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, the file named by RODSPOT_ENV
	// Process environment always wins over file values.
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := &Config{
		EnableFileLogging: getBool("ENABLE_FILE_LOGGING", false),
		LogLevel:          resolveLogLevel(opts),
		Buttons:           getEnvWithDefault("TRACKER_BUTTONS", "left"),
		DebounceWindow:    getMillis("TRACKER_DEBOUNCE_MS", 100*time.Millisecond),
		DebounceRadius:    getInt("TRACKER_DEBOUNCE_PX", 5),
		ExitOnStdinEOF:    getBool(ExitOnStdinEOFEnvVar, false),
		TrackerPath:       resolveTrackerPath(opts),
		RestartDelay:      getMillis("RESTART_DELAY_MS", 100*time.Millisecond),
		KillGrace:         getMillis("KILL_GRACE_MS", 500*time.Millisecond),
		MaxRestarts:       getInt("MAX_RESTARTS", 5),
		BoundsFile:        resolveBoundsFile(opts),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(EnvFileEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

// resolveTrackerPath prefers the override, then TRACKER_PATH, then a tracker
// binary sitting next to the host executable.
func resolveTrackerPath(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.TrackerPathOverride); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(TrackerPathEnvVar)); p != "" {
		return p
	}

	name := DefaultTrackerName
	if filepath.Ext(os.Args[0]) == ".exe" {
		name += ".exe"
	}
	execPath, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(execPath), name)
}

func resolveBoundsFile(opts LoadOptions) string {
	if p := strings.TrimSpace(opts.BoundsFileOverride); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("BOUNDS_FILE")); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultBoundsFileName
	}
	return filepath.Join(dir, "rodspot", DefaultBoundsFileName)
}

func resolveLogLevel(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.LogLevelOverride); override != "" {
		return normalizeLogLevel(override)
	}
	return normalizeLogLevel(os.Getenv("LOG_LEVEL"))
}

func normalizeLogLevel(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return "debug"
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return DefaultLogLevel
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

func getMillis(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return defaultValue
}
