package vision

import (
	"math"

	"arenad/internal/geom"
)

// Marker is a detected fiducial. Corners are in image pixels, ordered
// TL, TR, BR, BL in the marker's own frame regardless of how the marker is
// rotated in the image.
type Marker struct {
	ID      int
	Corners geom.Quad
	Center  geom.Point
}

// BottomLeft returns the marker's own bottom-left corner.
func (m Marker) BottomLeft() geom.Point { return m.Corners[3] }

// EdgeLength returns the mean side length in pixels.
func (m Marker) EdgeLength() float64 {
	var total float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		total += math.Hypot(m.Corners[j].X-m.Corners[i].X, m.Corners[j].Y-m.Corners[i].Y)
	}
	return total / 4
}
