// Package config resolves fintrack's command-line flags and environment
// variables into one validated Config.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/teslashibe/go-fintrack/pkg/camera"
	"github.com/teslashibe/go-fintrack/pkg/link"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
)

// ErrInvalid wraps every validation failure returned by Load.
var ErrInvalid = errors.New("invalid configuration")

// Defaults.
const (
	DefaultCamera     = "0"
	DefaultSerialPort = "/dev/ttyUSB0"
	DefaultLogLevel   = "info"
)

// Config is the resolved runtime configuration.
type Config struct {
	Camera       string `validate:"required"`
	CameraPreset string `validate:"oneof=default vga 720p 1080p"`
	SerialPort   string
	Baud         int `validate:"gt=0"`

	// Profile seeds the four tracking fields below; flags set
	// explicitly (and FINTRACK_TRACKER) override it.
	Profile       string `validate:"oneof=default fast safe"`
	Tracker       string `validate:"oneof=csrt kcf mil"`
	MinSelection  int    `validate:"gt=0"`
	MaxDeflection int    `validate:"gt=0,lte=90"`
	Clamp         bool

	// Web is the dashboard listen address; empty disables it.
	Web          string
	WebFrameRate float64 `validate:"gt=0"`

	LogLevel      string `validate:"oneof=debug info warn warning error"`
	Debug         bool
	DebugTracking bool
}

var validate = validator.New()

// env returns the value of key, or def when unset.
func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load parses args (without the program name). Environment variables
// supply the flag defaults; flags win.
func Load(name string, args []string) (Config, error) {
	baud := link.DefaultBaud
	if v := os.Getenv("FINTRACK_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: FINTRACK_BAUD=%q is not a number", ErrInvalid, v)
		}
		baud = n
	}

	def := tracking.DefaultConfig()
	var cfg Config

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.Camera, "camera", env("FINTRACK_CAMERA", DefaultCamera), "camera index or video file")
	fs.StringVar(&cfg.CameraPreset, "preset", camera.PresetDefault, "capture preset (default, vga, 720p, 1080p)")
	fs.StringVar(&cfg.SerialPort, "port", env("FINTRACK_SERIAL_PORT", DefaultSerialPort), "serial port of the fin controller")
	fs.IntVar(&cfg.Baud, "baud", baud, "serial baud rate")
	fs.StringVar(&cfg.Profile, "profile", env("FINTRACK_PROFILE", tracking.PresetDefault), "tracking profile (default, fast, safe)")
	fs.StringVar(&cfg.Tracker, "tracker", env("FINTRACK_TRACKER", def.Algorithm), "tracker algorithm (csrt, kcf, mil)")
	fs.IntVar(&cfg.MinSelection, "min-selection", def.MinSelection, "selections must be wider and taller than this")
	fs.IntVar(&cfg.MaxDeflection, "max-deflection", def.MaxDeflection, "deflection at the frame edge")
	fs.BoolVar(&cfg.Clamp, "clamp", def.ClampOutput, "clamp fin commands to ±max-deflection")
	fs.StringVar(&cfg.Web, "web", os.Getenv("FINTRACK_WEB"), "dashboard listen address, e.g. :8080 (off when empty)")
	fs.Float64Var(&cfg.WebFrameRate, "web-fps", 10, "max dashboard camera frames per second")
	fs.StringVar(&cfg.LogLevel, "log-level", env("LOG_LEVEL", DefaultLogLevel), "log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.Debug, "debug", false, "verbose logging")
	fs.BoolVar(&cfg.DebugTracking, "debug-tracking", false, "log fin angles every frame")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected arguments %v", ErrInvalid, fs.Args())
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cfg.applyProfile(set)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyProfile copies the profile's tracking settings into every field
// that was not given on the command line.
func (c *Config) applyProfile(set map[string]bool) {
	p := tracking.GetPreset(c.Profile)
	if p == nil {
		return
	}
	if !set["tracker"] && os.Getenv("FINTRACK_TRACKER") == "" {
		c.Tracker = p.Algorithm
	}
	if !set["min-selection"] {
		c.MinSelection = p.MinSelection
	}
	if !set["max-deflection"] {
		c.MaxDeflection = p.MaxDeflection
	}
	if !set["clamp"] {
		c.Clamp = p.ClampOutput
	}
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.TrackingConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// TrackingConfig returns the tracker and mixer settings.
func (c Config) TrackingConfig() tracking.Config {
	return tracking.Config{
		Algorithm:     c.Tracker,
		MinSelection:  c.MinSelection,
		MaxDeflection: c.MaxDeflection,
		ClampOutput:   c.Clamp,
	}
}

// CameraConfig returns the capture settings for the chosen preset.
func (c Config) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	if p := camera.GetPreset(c.CameraPreset); p != nil {
		cfg = *p
	}
	cfg.Device = c.Camera
	return cfg
}

// LinkConfig returns the serial link settings.
func (c Config) LinkConfig() link.Config {
	cfg := link.DefaultConfig(c.SerialPort)
	cfg.Baud = c.Baud
	return cfg
}
