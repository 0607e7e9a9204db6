package control

import (
	"image"

	"github.com/teslashibe/go-fintrack/pkg/selection"
	"github.com/teslashibe/go-fintrack/pkg/status"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
	"gocv.io/x/gocv"
)

// FrameSource produces frames synchronously.
type FrameSource interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// Display shows frames and collects operator input.
type Display interface {
	Show(frame gocv.Mat)
	PollKey() int
	Events() []selection.Event
	Close() error
}

// CommandSink receives one command per tracked frame (the serial link).
type CommandSink interface {
	Send(cmd tracking.Command) error
	Close() error
}

// Handle is a running tracker for one target.
type Handle interface {
	Update(frame gocv.Mat) (image.Rectangle, bool)
	Close() error
}

// Initializer starts a tracker on a frame and box.
type Initializer interface {
	Initialize(frame gocv.Mat, box image.Rectangle) (Handle, error)
}

// InitializerFunc adapts a function to Initializer.
type InitializerFunc func(frame gocv.Mat, box image.Rectangle) (Handle, error)

// Initialize calls f(frame, box).
func (f InitializerFunc) Initialize(frame gocv.Mat, box image.Rectangle) (Handle, error) {
	return f(frame, box)
}

// StateUpdater receives per-frame state, e.g. for the dashboard
type StateUpdater interface {
	UpdateTracking(s status.Snapshot)
	SendFrame(frame gocv.Mat)
}
