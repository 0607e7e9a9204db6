package camera

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// ErrFrameUnavailable is returned when the capture stops producing frames.
var ErrFrameUnavailable = errors.New("frame unavailable")

// Source pulls frames from a gocv.VideoCapture.
type Source struct {
	capture *gocv.VideoCapture
	config  Config
	once    sync.Once
	err     error
}

// Open opens the capture described by cfg and applies the requested resolution.
func Open(cfg Config) (*Source, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if id, ok := cfg.DeviceIndex(); ok {
		capture, err = gocv.VideoCaptureDevice(id)
	} else {
		capture, err = gocv.VideoCaptureFile(cfg.Device)
	}
	if err != nil {
		return nil, fmt.Errorf("open camera %s: %w", cfg.Device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open camera %s: device not opened", cfg.Device)
	}

	if cfg.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.Framerate > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	}

	return &Source{capture: capture, config: cfg}, nil
}

// Config returns the configuration the source was opened with.
func (s *Source) Config() Config {
	return s.config
}

// Read grabs the next frame into dst.
func (s *Source) Read(dst *gocv.Mat) error {
	if ok := s.capture.Read(dst); !ok || dst.Empty() {
		return fmt.Errorf("%w: %s", ErrFrameUnavailable, s.config.Device)
	}
	return nil
}

// Close releases the capture device. Only the first call reaches the device.
func (s *Source) Close() error {
	s.once.Do(func() {
		s.err = s.capture.Close()
	})
	return s.err
}
