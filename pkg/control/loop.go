// Package control runs the per-frame fin steering loop: pull a frame, update
// the tracker, mix the center error into fin deflections, send them, draw
// the overlays and react to the operator.
package control

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-fintrack/internal/log"
	"github.com/teslashibe/go-fintrack/pkg/debug"
	"github.com/teslashibe/go-fintrack/pkg/display"
	"github.com/teslashibe/go-fintrack/pkg/overlay"
	"github.com/teslashibe/go-fintrack/pkg/selection"
	"github.com/teslashibe/go-fintrack/pkg/status"
	"github.com/teslashibe/go-fintrack/pkg/tracking"
	"gocv.io/x/gocv"
)

// Options configures a Loop. Zero values are usable.
type Options struct {
	Tracking tracking.Config
	Session  string
	Updater  StateUpdater
	Logger   *slog.Logger
}

// Loop owns the frame buffers, the selection state, the tracker handle and
// the command sink for its whole lifetime.
type Loop struct {
	source  FrameSource
	display Display
	sink    CommandSink // nil when no serial link is open
	init    Initializer
	updater StateUpdater

	mixer   *tracking.Mixer
	session string
	log     *slog.Logger
	metrics *metrics

	frame gocv.Mat // annotated in place
	clean gocv.Mat // pre-overlay copy for tracker initialization

	// Size of the last frame read; the Mats are freed by Close but
	// Snapshot stays valid afterwards.
	width, height int

	state  selection.State
	handle Handle
	last   outcome

	frames   int64
	commands int64
	lost     int64

	closeOnce sync.Once
	closeErr  error
}

// outcome is what happened to the tracker on one frame.
type outcome struct {
	result  Result
	center  image.Point
	err     tracking.ErrorVector
	command tracking.Command
}

// New creates a Loop. sink may be nil: the loop then never transmits.
func New(source FrameSource, disp Display, sink CommandSink, init Initializer, opts Options) *Loop {
	cfg := opts.Tracking
	if cfg.MaxDeflection == 0 && cfg.Algorithm == "" {
		cfg = tracking.DefaultConfig()
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.With("component", "control")
	}

	return &Loop{
		source:  source,
		display: disp,
		sink:    sink,
		init:    init,
		updater: opts.Updater,
		mixer:   tracking.NewMixer(cfg),
		session: opts.Session,
		log:     logger,
		metrics: newMetrics(),
		frame:   gocv.NewMat(),
		clean:   gocv.NewMat(),
		state:   selection.New(cfg.MinSelection),
	}
}

// State returns the current selection state.
func (l *Loop) State() selection.State {
	return l.state
}

// Tracking reports whether a tracker handle is active.
func (l *Loop) Tracking() bool {
	return l.handle != nil
}

// Run processes frames until the operator quits, ctx is cancelled or the
// frame source fails. Every resource is released before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Close()

	l.log.Info("control loop started", "serial", l.sink != nil)

	for {
		if err := ctx.Err(); err != nil {
			l.log.Info("control loop cancelled")
			return nil
		}

		quit, err := l.Step(ctx)
		if err != nil {
			l.log.Error("control loop stopped", "error", err)
			return err
		}
		if quit {
			l.log.Info("quit requested")
			return nil
		}
	}
}

// Step runs one iteration and reports whether the operator asked to quit.
func (l *Loop) Step(ctx context.Context) (bool, error) {
	if err := l.source.Read(&l.frame); err != nil {
		return false, fmt.Errorf("read frame: %w", err)
	}
	l.frames++
	l.width, l.height = l.frame.Cols(), l.frame.Rows()
	l.metrics.add(ctx, l.metrics.frames)
	if err := l.frame.CopyTo(&l.clean); err != nil {
		return false, fmt.Errorf("copy frame: %w", err)
	}

	l.last = l.track(ctx)

	overlay.Render(&l.frame, l.scene())
	l.display.Show(l.frame)

	key := l.display.PollKey()
	for _, ev := range l.display.Events() {
		l.pointer(ctx, ev)
	}

	quit := false
	switch display.KeyAction(key) {
	case display.ActionQuit:
		quit = true
	case display.ActionReset:
		l.reset()
	}

	l.publish()
	return quit, nil
}

// track updates the active tracker and transmits the resulting command.
func (l *Loop) track(ctx context.Context) outcome {
	if l.state.Phase != selection.Tracking || l.handle == nil {
		return outcome{}
	}

	box, ok := l.handle.Update(l.frame)
	if !ok {
		l.dropHandle()
		l.state = l.state.MarkLost()
		l.lost++
		l.metrics.add(ctx, l.metrics.lost)
		l.log.Warn("tracking lost")
		return outcome{}
	}

	center, e, cmd := l.mixer.Mix(box, l.width, l.height)
	debug.TrackLog("fin angles",
		"left", cmd.Left, "right", cmd.Right, "top", cmd.Top, "bottom", cmd.Bottom,
		"center_x", center.X, "center_y", center.Y)

	if l.sink != nil {
		if err := l.sink.Send(cmd); err != nil {
			l.log.Warn("serial write failed", "error", err)
		} else {
			l.commands++
			l.metrics.add(ctx, l.metrics.commands)
		}
	}

	return outcome{
		result:  Result{Box: box, OK: true},
		center:  center,
		err:     e,
		command: cmd,
	}
}

// pointer applies one pointer event to the selection state.
func (l *Loop) pointer(ctx context.Context, ev selection.Event) {
	next, tr := l.state.Apply(ev)
	l.state = next

	if tr.DiscardTracker {
		l.dropHandle()
	}
	if tr.Rejected {
		debug.Log("selection too small", "w", tr.Box.Dx(), "h", tr.Box.Dy())
	}
	if tr.Confirmed {
		l.start(ctx, tr.Box)
	}
}

// start replaces the tracker handle with one initialized on box.
func (l *Loop) start(ctx context.Context, box image.Rectangle) {
	if l.handle != nil {
		debug.Log("replacing tracker", "x", box.Min.X, "y", box.Min.Y)
	}
	l.dropHandle()

	h, err := l.init.Initialize(l.clean, box)
	if err != nil {
		l.log.Warn("tracker init failed", "error", err)
		l.state, _ = l.state.Reset()
		return
	}

	l.handle = h
	l.metrics.add(ctx, l.metrics.selections)
	l.log.Info("tracking object",
		"x", box.Min.X, "y", box.Min.Y, "w", box.Dx(), "h", box.Dy())
}

// reset returns to Idle and discards the tracker.
func (l *Loop) reset() {
	var tr selection.Transition
	l.state, tr = l.state.Reset()
	if tr.DiscardTracker {
		l.dropHandle()
	}
	l.log.Info("selection reset")
}

func (l *Loop) dropHandle() {
	if l.handle == nil {
		return
	}
	if err := l.handle.Close(); err != nil {
		l.log.Warn("tracker close failed", "error", err)
	}
	l.handle = nil
}

// scene builds the overlay description for the current frame.
func (l *Loop) scene() overlay.Scene {
	s := overlay.Scene{
		Lost: l.state.Lost,
	}
	if l.last.result.OK {
		s.Tracking = true
		s.Box = l.last.result.Box
		s.Center = l.last.center
		s.Command = l.last.command
	}
	if box, ok := l.state.DragBox(); ok {
		s.Dragging = true
		s.DragStart = l.state.Start
		s.DragBox = box
	}
	return s
}

// Snapshot returns the state after the last frame. It is safe to call
// after Close.
func (l *Loop) Snapshot() status.Snapshot {
	s := status.Snapshot{
		Session:         l.session,
		Frame:           l.frames,
		Time:            time.Now(),
		FrameWidth:      l.width,
		FrameHeight:     l.height,
		Phase:           l.state.Phase.String(),
		Lost:            l.state.Lost,
		SerialConnected: l.sink != nil,
		CommandsSent:    l.commands,
		TrackingLost:    l.lost,
	}
	if l.last.result.OK {
		box := status.BoxOf(l.last.result.Box)
		center := status.Point{X: l.last.center.X, Y: l.last.center.Y}
		e := l.last.err
		cmd := l.last.command
		s.Box, s.Center, s.Error, s.Command = &box, &center, &e, &cmd
	}
	return s
}

func (l *Loop) publish() {
	if l.updater == nil {
		return
	}
	l.updater.UpdateTracking(l.Snapshot())
	l.updater.SendFrame(l.frame)
}

// Close releases the tracker, frame source, sink and display. Each is
// closed once no matter how often Close is called.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		var errs []error
		l.dropHandle()
		if err := l.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close frame source: %w", err))
		}
		if l.sink != nil {
			if err := l.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close serial: %w", err))
			}
		}
		if l.display != nil {
			if err := l.display.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close display: %w", err))
			}
		}
		l.frame.Close()
		l.clean.Close()
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}
