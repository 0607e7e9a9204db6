// Package opencv binds single-target tracking to OpenCV's trackers via GoCV.
package opencv

import (
	"errors"
	"fmt"
	"image"

	"github.com/teslashibe/go-fintrack/pkg/debug"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
	"gocv.io/x/gocv"
	"gocv.io/x/gocv/contrib"
)

// ErrInitFailed is returned when OpenCV refuses to start on a frame/box pair.
var ErrInitFailed = errors.New("tracker init failed")

// Factory creates tracker handles for one algorithm
type Factory struct {
	algorithm string
	create    func() gocv.Tracker
}

// NewFactory returns a Factory for a tracking.Algorithm* name.
func NewFactory(algorithm string) (*Factory, error) {
	create, err := constructor(algorithm)
	if err != nil {
		return nil, err
	}
	return &Factory{algorithm: algorithm, create: create}, nil
}

func constructor(algorithm string) (func() gocv.Tracker, error) {
	switch algorithm {
	case tracking.AlgorithmCSRT:
		return contrib.NewTrackerCSRT, nil
	case tracking.AlgorithmKCF:
		return contrib.NewTrackerKCF, nil
	case tracking.AlgorithmMIL:
		return gocv.NewTrackerMIL, nil
	default:
		return nil, fmt.Errorf("unsupported tracker algorithm %q", algorithm)
	}
}

// Algorithm returns the configured algorithm name.
func (f *Factory) Algorithm() string {
	return f.algorithm
}

// Start creates a tracker and initializes it on frame with box.
func (f *Factory) Start(frame gocv.Mat, box image.Rectangle) (*Handle, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", ErrInitFailed)
	}
	if box.Empty() {
		return nil, fmt.Errorf("%w: empty box %v", ErrInitFailed, box)
	}

	trk := f.create()
	if !trk.Init(frame, box) {
		trk.Close()
		return nil, fmt.Errorf("%w: %s rejected box %v", ErrInitFailed, f.algorithm, box)
	}

	debug.TrackLog("tracker initialized", "algorithm", f.algorithm, "box", box)

	return &Handle{tracker: trk, algorithm: f.algorithm}, nil
}

// Handle is one running tracker bound to one target
type Handle struct {
	tracker   gocv.Tracker
	algorithm string
	closed    bool
}

// Update advances the tracker by one frame. ok is false when the target is lost.
func (h *Handle) Update(frame gocv.Mat) (image.Rectangle, bool) {
	if h.closed {
		return image.Rectangle{}, false
	}
	return h.tracker.Update(frame)
}

// Close releases the tracker. Safe to call more than once.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.tracker.Close()
}
