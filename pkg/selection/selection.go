// Package selection turns operator pointer gestures into a bounding box.
//
// State is a value: every transition returns a new State together with a
// Transition describing what the owner has to do with the tracker
// (start one on a confirmed box, drop the current one). The package never
// touches frames or trackers itself.
package selection

import (
	"fmt"
	"image"
)

// DefaultMinSize is the exclusive lower bound, in pixels, on both sides of
// an accepted selection.
const DefaultMinSize = 10

// Phase is the coarse selection state.
type Phase int

const (
	// Idle waits for the operator to press.
	Idle Phase = iota
	// Dragging follows the pointer between press and release.
	Dragging
	// Tracking means a confirmed box was handed to the tracker.
	Tracking
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Tracking:
		return "tracking"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// EventKind identifies a pointer gesture.
type EventKind int

const (
	Press EventKind = iota
	Move
	Release
)

// Event is a pointer gesture at a pixel position.
type Event struct {
	Kind  EventKind
	Point image.Point
}

// State is the selection state. The zero value is Idle.
type State struct {
	Phase   Phase
	Start   image.Point // valid while Dragging
	Current image.Point // valid while Dragging
	Lost    bool        // Idle because the tracker lost the target
	MinSize int         // 0 means DefaultMinSize
}

// Transition reports the side effects a state change asks for.
type Transition struct {
	// Confirmed is set when a release produced an accepted box.
	Confirmed bool
	Box       image.Rectangle

	// Rejected is set when a release produced a box that was too small.
	Rejected bool

	// DiscardTracker is set when an active tracker must be dropped.
	DiscardTracker bool
}

// New returns an Idle state using minSize as the acceptance threshold.
func New(minSize int) State {
	return State{MinSize: minSize}
}

func (s State) minSize() int {
	if s.MinSize <= 0 {
		return DefaultMinSize
	}
	return s.MinSize
}

// Apply feeds one pointer event through the state machine.
func (s State) Apply(ev Event) (State, Transition) {
	switch ev.Kind {
	case Press:
		var tr Transition
		if s.Phase == Tracking {
			tr.DiscardTracker = true
		}
		return State{
			Phase:   Dragging,
			Start:   ev.Point,
			Current: ev.Point,
			MinSize: s.MinSize,
		}, tr

	case Move:
		if s.Phase != Dragging {
			return s, Transition{}
		}
		s.Current = ev.Point
		return s, Transition{}

	case Release:
		if s.Phase != Dragging {
			return s, Transition{}
		}
		box := Normalize(s.Start, ev.Point)
		next := State{MinSize: s.MinSize}
		if !Accept(box, s.minSize()) {
			return next, Transition{Rejected: true, Box: box}
		}
		next.Phase = Tracking
		return next, Transition{Confirmed: true, Box: box}
	}

	return s, Transition{}
}

// Reset returns to Idle from any phase and drops any tracker.
func (s State) Reset() (State, Transition) {
	return State{MinSize: s.MinSize}, Transition{DiscardTracker: true}
}

// MarkLost returns to Idle after the tracker lost its target.
func (s State) MarkLost() State {
	return State{Lost: true, MinSize: s.MinSize}
}

// DragBox returns the rectangle being drawn and whether a drag is in progress.
func (s State) DragBox() (image.Rectangle, bool) {
	if s.Phase != Dragging {
		return image.Rectangle{}, false
	}
	return Normalize(s.Start, s.Current), true
}

// Normalize builds the axis-aligned box spanned by two corners,
// independent of drag direction.
func Normalize(a, b image.Point) image.Rectangle {
	return image.Rectangle{Min: a, Max: b}.Canon()
}

// Accept reports whether box is strictly larger than minSize on both sides.
func Accept(box image.Rectangle, minSize int) bool {
	return box.Dx() > minSize && box.Dy() > minSize
}
