// util/log.go
// Copyright(c) 2026 The strata authors
// BSD licensed; see LICENSE for details.

package util

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogging configures the process-wide logger. Verbosity 0 only shows
// warnings and errors, 1 adds informational output, and 2 and above enables
// debug output. quiet forces verbosity 0 regardless of the given level.
func SetupLogging(verbosity int, quiet bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{
		DisableTimestamp: true,
	})

	if quiet {
		verbosity = 0
	}
	switch {
	case verbosity <= 0:
		log.SetLevel(log.WarnLevel)
	case verbosity == 1:
		log.SetLevel(log.InfoLevel)
	default:
		log.SetLevel(log.DebugLevel)
	}
}
