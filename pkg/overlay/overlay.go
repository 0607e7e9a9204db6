// Package overlay draws the operator annotations onto frames.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/teslashibe/go-fintrack/pkg/tracking"
	"gocv.io/x/gocv"
)

// Overlay colors
var (
	TrackGreen = color.RGBA{0, 255, 0, 0}
	DragBlue   = color.RGBA{0, 0, 255, 0}
	LostRed    = color.RGBA{255, 0, 0, 0}
	IdleCyan   = color.RGBA{0, 255, 255, 0}
	White      = color.RGBA{255, 255, 255, 0}
)

// Operator messages
const (
	TextTracking = "TRACKING"
	TextRelease  = "Release to track"
	TextIdle     = "Click and drag to select object"
	TextLost     = "TRACKING LOST - Draw new box"
)

// statusOrigin is where the one-line status sits (upper-left).
var statusOrigin = image.Pt(10, 30)

// Scene is everything the renderer needs for one frame.
type Scene struct {
	Tracking bool
	Box      image.Rectangle
	Center   image.Point
	Command  tracking.Command

	Dragging  bool
	DragStart image.Point
	DragBox   image.Rectangle

	Lost bool
}

// Render draws scene onto img.
func Render(img *gocv.Mat, scene Scene) {
	if scene.Tracking {
		drawTracking(img, scene)
	}
	if scene.Dragging {
		drawDrag(img, scene.DragStart, scene.DragBox)
	}
	if !scene.Tracking && !scene.Dragging {
		if scene.Lost {
			gocv.PutText(img, TextLost, statusOrigin, gocv.FontHersheySimplex, 0.7, LostRed, 2)
		} else {
			gocv.PutText(img, TextIdle, statusOrigin, gocv.FontHersheySimplex, 0.7, IdleCyan, 2)
		}
	}
}

func drawTracking(img *gocv.Mat, scene Scene) {
	gocv.Rectangle(img, scene.Box, TrackGreen, 3)
	Crosshair(img, scene.Center, 30, TrackGreen, 2)

	labelPos := image.Pt(scene.Box.Min.X, scene.Box.Min.Y-10)
	gocv.PutText(img, TextTracking, labelPos, gocv.FontHersheySimplex, 0.7, TrackGreen, 2)

	status := fmt.Sprintf("Center: (%d, %d)", scene.Center.X, scene.Center.Y)
	gocv.PutText(img, status, statusOrigin, gocv.FontHersheySimplex, 0.6, TrackGreen, 2)

	// Command readout in the lower-left corner
	cmdPos := image.Pt(10, img.Rows()-15)
	gocv.PutText(img, "Fins "+scene.Command.String(), cmdPos, gocv.FontHersheySimplex, 0.5, TrackGreen, 1)
}

func drawDrag(img *gocv.Mat, start image.Point, box image.Rectangle) {
	gocv.Rectangle(img, box, DragBlue, 2)
	labelPos := image.Pt(start.X, start.Y-10)
	gocv.PutText(img, TextRelease, labelPos, gocv.FontHersheySimplex, 0.5, DragBlue, 2)
}

// Crosshair draws a cross of half-length size with a ringed dot at center.
func Crosshair(img *gocv.Mat, center image.Point, size int, c color.RGBA, thickness int) {
	gocv.Line(img, image.Pt(center.X-size, center.Y), image.Pt(center.X+size, center.Y), c, thickness)
	gocv.Line(img, image.Pt(center.X, center.Y-size), image.Pt(center.X, center.Y+size), c, thickness)

	gocv.Circle(img, center, 5, c, -1)
	gocv.Circle(img, center, 5, White, 1)
}
