// Package debug provides global debug switches
package debug

import "github.com/teslashibe/go-fintrack/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Tracking controls whether per-frame tracking lines (fin angles, centers) are shown.
// Use --debug-tracking to enable these very verbose logs
var Tracking bool

// Log logs a message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Info(msg, args...)
	}
}

// TrackLog logs a message only if tracking debug mode is enabled
func TrackLog(msg string, args ...any) {
	if Tracking {
		log.Info(msg, args...)
	}
}
