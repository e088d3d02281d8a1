// Package overlay draws detection annotations onto camera frames: marker
// outlines and ids for everything detected, plus origin box and heading
// arrow for robot markers.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"arenad/internal/geom"
	"arenad/internal/vision"
)

var (
	markerGreen = color.RGBA{G: 0xFF, A: 0xFF}
	robotRed    = color.RGBA{R: 0xFF, A: 0xFF}
)

// originBoxHalf is half the side of the hollow box drawn on a robot
// marker's bottom-left corner.
const originBoxHalf = 5

// Renderer draws annotations in place. It is stateless.
type Renderer struct{}

// Annotate draws every marker's outline and id onto dst. Markers for which
// isRobot returns true also get a red origin box on their bottom-left
// corner and a red arrow along their left edge showing the heading.
func (r *Renderer) Annotate(dst *image.RGBA, markers []vision.Marker, isRobot func(id int) bool) {
	for _, m := range markers {
		drawQuad(dst, m.Corners, markerGreen)
		drawLabel(dst, int(m.Center.X), int(m.Center.Y), fmt.Sprintf("%d", m.ID), markerGreen)

		if isRobot != nil && isRobot(m.ID) {
			bl := m.Corners[3]
			tl := m.Corners[0]
			drawBox(dst, int(bl.X), int(bl.Y), originBoxHalf, robotRed)
			drawArrow(dst, bl, tl, robotRed)
		}
	}
}

func drawQuad(img *image.RGBA, q geom.Quad, c color.RGBA) {
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		drawLine(img, int(q[i].X), int(q[i].Y), int(q[j].X), int(q[j].Y), c)
	}
}

// drawBox draws a hollow square centered on (x, y).
func drawBox(img *image.RGBA, x, y, half int, c color.RGBA) {
	drawLine(img, x-half, y-half, x+half, y-half, c)
	drawLine(img, x+half, y-half, x+half, y+half, c)
	drawLine(img, x+half, y+half, x-half, y+half, c)
	drawLine(img, x-half, y+half, x-half, y-half, c)
}

// drawArrow draws a line from a to b with a two-stroke head at b.
func drawArrow(img *image.RGBA, a, b geom.Point, c color.RGBA) {
	drawLine(img, int(a.X), int(a.Y), int(b.X), int(b.Y), c)

	angle := math.Atan2(b.Y-a.Y, b.X-a.X)
	const headLen = 7.0
	const headAngle = math.Pi / 6
	for _, da := range []float64{headAngle, -headAngle} {
		hx := b.X - headLen*math.Cos(angle+da)
		hy := b.Y - headLen*math.Sin(angle+da)
		drawLine(img, int(b.X), int(b.Y), int(hx), int(hy), c)
	}
}

// drawLine is a plain Bresenham line, clipped to the image bounds.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	b := img.Bounds()
	for {
		if image.Pt(x0, y0).In(b) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawLabel renders s with its baseline a little right and above (x, y).
func drawLabel(img *image.RGBA, x, y int, s string, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+4, y-4),
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
