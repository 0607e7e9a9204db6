// Package display owns the operator window: it shows annotated frames,
// polls the keyboard and queues pointer gestures for the selection state.
package display

import (
	"image"
	"sync"

	"github.com/teslashibe/go-fintrack/pkg/selection"
	"gocv.io/x/gocv"
)

// DefaultTitle is the window title shown to the operator.
const DefaultTitle = "Object Tracker - Draw box around object"

// HighGUI mouse event codes (cv::MouseEventTypes).
const (
	mouseMove     = 0
	mouseLeftDown = 1
	mouseLeftUp   = 4
)

// Key codes returned by PollKey.
const (
	KeyNone  = 0xFF
	KeyQuit  = 'q'
	KeyReset = 'r'
)

// Action is what the loop should do after a key press.
type Action int

const (
	ActionNone Action = iota
	ActionQuit
	ActionReset
)

// KeyAction maps a key code to an Action.
func KeyAction(key int) Action {
	switch key & 0xFF {
	case KeyQuit:
		return ActionQuit
	case KeyReset:
		return ActionReset
	default:
		return ActionNone
	}
}

// Translate maps a HighGUI mouse callback to a selection event. Events other
// than left press, left release and move are dropped.
func Translate(event, x, y int) (selection.Event, bool) {
	p := image.Pt(x, y)
	switch event {
	case mouseLeftDown:
		return selection.Event{Kind: selection.Press, Point: p}, true
	case mouseMove:
		return selection.Event{Kind: selection.Move, Point: p}, true
	case mouseLeftUp:
		return selection.Event{Kind: selection.Release, Point: p}, true
	default:
		return selection.Event{}, false
	}
}

// Window is a HighGUI window with a pointer event queue.
//
// HighGUI invokes the mouse handler from inside WaitKey on the calling
// goroutine, so the queue is only touched by the loop goroutine.
type Window struct {
	win    *gocv.Window
	events []selection.Event
	once   sync.Once
}

// Open creates the window and installs the mouse handler.
func Open(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	w := &Window{win: gocv.NewWindow(title)}
	w.win.SetMouseHandler(w.onMouse, nil)
	return w
}

func (w *Window) onMouse(event, x, y, flags int, userdata interface{}) {
	if ev, ok := Translate(event, x, y); ok {
		w.push(ev)
	}
}

func (w *Window) push(ev selection.Event) {
	// Collapse consecutive moves; only the latest position matters.
	if n := len(w.events); n > 0 && ev.Kind == selection.Move && w.events[n-1].Kind == selection.Move {
		w.events[n-1] = ev
		return
	}
	w.events = append(w.events, ev)
}

// Show displays frame.
func (w *Window) Show(frame gocv.Mat) {
	w.win.IMShow(frame)
}

// PollKey pumps the GUI for 1ms and returns the key pressed, or KeyNone.
func (w *Window) PollKey() int {
	return w.win.WaitKey(1) & 0xFF
}

// Events returns and clears the queued pointer events in arrival order.
func (w *Window) Events() []selection.Event {
	if len(w.events) == 0 {
		return nil
	}
	out := w.events
	w.events = nil
	return out
}

// Close destroys the window. Only the first call reaches HighGUI.
func (w *Window) Close() error {
	var err error
	w.once.Do(func() {
		err = w.win.Close()
	})
	return err
}
