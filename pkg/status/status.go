// Package status is the per-frame state the control loop publishes to the
// dashboard and its clients. It has no OpenCV dependency so websocket
// clients can decode it without cgo.
package status

import (
	"image"
	"time"

	"github.com/teslashibe/go-fintrack/pkg/tracking"
)

// Phase names as they appear in Snapshot.Phase.
const (
	PhaseIdle     = "idle"
	PhaseDragging = "dragging"
	PhaseTracking = "tracking"
)

// Box is a bounding box in pixels (top-left corner plus size)
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// BoxOf converts an image.Rectangle.
func BoxOf(r image.Rectangle) Box {
	return Box{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Point is a pixel position
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Snapshot is the state of the loop after one frame
type Snapshot struct {
	Session     string    `json:"session"`
	Frame       int64     `json:"frame"`
	Time        time.Time `json:"time"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`

	Phase string `json:"phase"`
	Lost  bool   `json:"lost"`

	Box     *Box                  `json:"box,omitempty"`
	Center  *Point                `json:"center,omitempty"`
	Error   *tracking.ErrorVector `json:"error,omitempty"`
	Command *tracking.Command     `json:"command,omitempty"`

	SerialConnected bool  `json:"serial_connected"`
	CommandsSent    int64 `json:"commands_sent"`
	TrackingLost    int64 `json:"tracking_lost"`
}

// Tracking reports whether the snapshot carries a live target.
func (s Snapshot) Tracking() bool {
	return s.Box != nil && s.Command != nil
}
