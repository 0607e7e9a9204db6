// Package camera provides the frame source for the tracker: a webcam or a
// video file opened through GoCV, plus capture presets.
package camera

import (
	"strconv"
	"strings"
)

// Config holds capture parameters.
type Config struct {
	// Device is a camera index ("0") or a path/URL to a video file or stream.
	Device string `json:"device"`

	// === Resolution ===
	// Zero leaves the driver default in place.
	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Requested FPS
}

// Capture limits accepted by Validate.
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 240
)

// DefaultConfig returns the first camera at driver resolution.
func DefaultConfig() Config {
	return Config{
		Device: "0",
	}
}

// DeviceIndex returns the camera index when Device is numeric.
func (c Config) DeviceIndex() (int, bool) {
	id, err := strconv.Atoi(strings.TrimSpace(c.Device))
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if strings.TrimSpace(c.Device) == "" {
		errors = append(errors, "device must be a camera index or a video path")
	}

	// Resolution (0 = driver default)
	if c.Width != 0 && (c.Width < 160 || c.Width > MaxWidth) {
		errors = append(errors, "width must be 0 or between 160 and 4096")
	}
	if c.Height != 0 && (c.Height < 120 || c.Height > MaxHeight) {
		errors = append(errors, "height must be 0 or between 120 and 2160")
	}
	if c.Framerate < 0 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 0 and 240")
	}

	return errors
}
