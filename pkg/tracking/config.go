package tracking

import "fmt"

// Algorithm names for the tracker backends.
const (
	AlgorithmCSRT = "csrt"
	AlgorithmKCF  = "kcf"
	AlgorithmMIL  = "mil"
)

// Preset names for the tracking profiles.
const (
	PresetDefault = "default"
	PresetFast    = "fast"
	PresetSafe    = "safe"
)

// Config holds the tunable parameters for target following
type Config struct {
	// Tracker backend (csrt, kcf, mil)
	Algorithm string

	// Selection
	MinSelection int // Boxes must be strictly larger than this on both sides (pixels)

	// Fin mixing
	MaxDeflection int  // Fin deflection at full-scale error
	ClampOutput   bool // Clamp commands to ±MaxDeflection when the box leaves the frame
}

// DefaultConfig returns the configuration matching the fielded firmware:
// CSRT tracking, 10px minimum selection, ±30 deflection, unclamped output.
func DefaultConfig() Config {
	return Config{
		Algorithm:     AlgorithmCSRT,
		MinSelection:  10,
		MaxDeflection: MaxDeflection,
		ClampOutput:   false,
	}
}

// FastConfig trades accuracy for frame rate with the KCF tracker.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmKCF
	return cfg
}

// SafeConfig clamps every command so the servos never see more than
// MaxDeflection, even for boxes reported outside the frame.
func SafeConfig() Config {
	cfg := DefaultConfig()
	cfg.ClampOutput = true
	return cfg
}

// Presets returns every tracking profile by name.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetFast:    FastConfig(),
		PresetSafe:    SafeConfig(),
	}
}

// PresetNames lists the profiles in display order.
func PresetNames() []string {
	return []string{PresetDefault, PresetFast, PresetSafe}
}

// GetPreset returns the named profile, or nil if there is none.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// Validate checks that the configuration can drive the loop.
func (c Config) Validate() error {
	switch c.Algorithm {
	case AlgorithmCSRT, AlgorithmKCF, AlgorithmMIL:
	default:
		return fmt.Errorf("unknown tracker algorithm %q", c.Algorithm)
	}
	if c.MinSelection <= 0 {
		return fmt.Errorf("min selection must be > 0, got %d", c.MinSelection)
	}
	if c.MaxDeflection <= 0 {
		return fmt.Errorf("max deflection must be > 0, got %d", c.MaxDeflection)
	}
	return nil
}
