package tracking

import (
	"fmt"
	"image"
	"strconv"
)

// ErrorVector is the tracked center's offset from the frame center, scaled so
// that the frame edges sit at ±1. Boxes outside the frame give |X| or |Y| > 1.
type ErrorVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Command is one four-fin deflection sample.
type Command struct {
	Left   int `json:"left"`
	Right  int `json:"right"`
	Top    int `json:"top"`
	Bottom int `json:"bottom"`
}

// Center returns the box center with integer truncation.
func Center(box image.Rectangle) image.Point {
	return image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2)
}

// Normalize converts a pixel position into an ErrorVector for a frame of
// the given size. The result is not clamped.
func Normalize(p image.Point, frameW, frameH int) ErrorVector {
	halfW := float64(frameW) / 2
	halfH := float64(frameH) / 2
	return ErrorVector{
		X: (float64(p.X) - halfW) / halfW,
		Y: (float64(p.Y) - halfH) / halfH,
	}
}

// Deflect mixes an error into fin deflections. Conversion truncates toward
// zero: an error of 0.999 at max 30 gives 29, not 30.
func Deflect(e ErrorVector, max int) Command {
	m := float64(max)
	return Command{
		Left:   int(-e.X * m),
		Right:  int(e.X * m),
		Top:    int(-e.Y * m),
		Bottom: int(e.Y * m),
	}
}

// Mixer computes commands from tracked boxes using a Config.
type Mixer struct {
	max   int
	clamp bool
}

// NewMixer creates a Mixer from config.
func NewMixer(config Config) *Mixer {
	max := config.MaxDeflection
	if max <= 0 {
		max = MaxDeflection
	}
	return &Mixer{max: max, clamp: config.ClampOutput}
}

// Mix returns the center, error and command for a box in a frame.
func (m *Mixer) Mix(box image.Rectangle, frameW, frameH int) (image.Point, ErrorVector, Command) {
	center := Center(box)
	e := Normalize(center, frameW, frameH)
	cmd := Deflect(e, m.max)
	if m.clamp {
		cmd = cmd.Clamp(m.max)
	}
	return center, e, cmd
}

// Clamp limits every channel to ±max.
func (c Command) Clamp(max int) Command {
	return Command{
		Left:   clamp(c.Left, -max, max),
		Right:  clamp(c.Right, -max, max),
		Top:    clamp(c.Top, -max, max),
		Bottom: clamp(c.Bottom, -max, max),
	}
}

// Encode returns the serial line "<L,R,T,B>\n".
func (c Command) Encode() []byte {
	b := make([]byte, 0, 24)
	b = append(b, '<')
	b = strconv.AppendInt(b, int64(c.Left), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(c.Right), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(c.Top), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(c.Bottom), 10)
	return append(b, '>', '\n')
}

// String returns the command without the trailing newline.
func (c Command) String() string {
	return fmt.Sprintf("<%d,%d,%d,%d>", c.Left, c.Right, c.Top, c.Bottom)
}
