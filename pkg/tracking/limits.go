// Package tracking turns a tracked bounding box into fin deflections.
// This file defines the mechanical limits shared with the fin firmware.
package tracking

const (
	// MaxDeflection is the fin deflection sent for a full-scale error (center
	// at the frame edge). The firmware maps ±30 onto its servo travel.
	MaxDeflection = 30

	// BaudRate is the serial speed the firmware listens on.
	BaudRate = 115200
)

// clamp limits a value to a range
func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
