package control

import "image"

// Result is one tracker update: Box is valid when OK, otherwise the target is lost.
type Result struct {
	Box image.Rectangle
	OK  bool
}
