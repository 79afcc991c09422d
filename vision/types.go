// Package vision provides object detection primitives for the Vision Agent
// tools API: detection results, detector backends and bounding box overlays.
package vision

import "fmt"

// Box is a pixel-space bounding box in [x1, y1, x2, y2] order.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Valid reports whether the box has positive area.
func (b Box) Valid() bool { return b.X2 > b.X1 && b.Y2 > b.Y1 }

func (b Box) String() string {
	return fmt.Sprintf("[%d %d %d %d]", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a single detected object instance.
type Detection struct {
	Label string  `json:"label"`
	Box   Box     `json:"bbox"`
	Score float64 `json:"score"`
}
