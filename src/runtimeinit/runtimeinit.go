package runtimeinit

import (
	"fmt"
	"log"

	"rodspot/src/config"
	"rodspot/src/display"
	"rodspot/src/logutil"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(enableFileLogging bool, level string)
	// LogDisplays logs the monitor layout at debug level.
	LogDisplays bool
}

// Bootstrap prepares a process for screen coordinates: DPI awareness first
// (before anything queries metrics), then configuration and logging.
func Bootstrap(opts Options) (*config.Config, error) {
	enableDPIAwareness()

	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging, cfg.LogLevel)
	}

	if opts.LogDisplays && logutil.DebugEnabled() {
		logMonitorConfiguration()
	}

	return cfg, nil
}

func logMonitorConfiguration() {
	n := display.Count()
	log.Printf("MONITOR: Detected %d monitors", n)
	for i := 0; i < n; i++ {
		if r, err := display.Bounds(i); err == nil {
			log.Printf("MONITOR: #%d %s", i, r)
		}
	}
	if v, err := display.Virtual(); err == nil {
		log.Printf("MONITOR: Virtual screen %s", v)
	}
}
