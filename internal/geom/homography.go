// Package geom provides the 2D projective geometry the vision pipeline is
// built on: points and 3x3 perspective transforms between planes.
package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Point is a 2D point, in image pixels or arena units depending on context.
type Point struct {
	X, Y float64
}

// Quad is four points. Order is TL, TR, BR, BL unless stated otherwise.
type Quad [4]Point

// Area returns the absolute polygon area of the quad.
func (q Quad) Area() float64 {
	var s float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		s += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return math.Abs(s) / 2
}

// Centroid returns the mean of the four corners.
func (q Quad) Centroid() Point {
	var c Point
	for _, p := range q {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 4
	c.Y /= 4
	return c
}

// Homography is a 3x3 perspective transform between two planes, stored
// row-major with h[8] normalised to 1.
type Homography struct {
	h [9]float64
}

// NewHomography solves for the transform mapping each src[i] to dst[i].
// Four point correspondences give the standard 8x8 direct linear system.
func NewHomography(src, dst Quad) (*Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		sx, sy := src[i].X, src[i].Y
		dx, dy := dst[i].X, dst[i].Y

		a.SetRow(2*i, []float64{sx, sy, 1, 0, 0, 0, -sx * dx, -sy * dx})
		a.SetRow(2*i+1, []float64{0, 0, 0, sx, sy, 1, -sx * dy, -sy * dy})
		b.SetVec(2*i, dx)
		b.SetVec(2*i+1, dy)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("degenerate correspondence: %w", err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h.h[i] = x.AtVec(i)
	}
	h.h[8] = 1
	return &h, nil
}

// Apply maps a point through the transform.
func (h *Homography) Apply(p Point) Point {
	w := h.h[6]*p.X + h.h[7]*p.Y + h.h[8]
	if w == 0 {
		return Point{X: math.Inf(1), Y: math.Inf(1)}
	}
	return Point{
		X: (h.h[0]*p.X + h.h[1]*p.Y + h.h[2]) / w,
		Y: (h.h[3]*p.X + h.h[4]*p.Y + h.h[5]) / w,
	}
}

// ApplyQuad maps all four corners.
func (h *Homography) ApplyQuad(q Quad) Quad {
	var out Quad
	for i, p := range q {
		out[i] = h.Apply(p)
	}
	return out
}

// Inverse returns the reverse-direction transform.
func (h *Homography) Inverse() (*Homography, error) {
	m := mat.NewDense(3, 3, []float64{
		h.h[0], h.h[1], h.h[2],
		h.h[3], h.h[4], h.h[5],
		h.h[6], h.h[7], h.h[8],
	})

	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, fmt.Errorf("singular transform: %w", err)
	}

	var out Homography
	scale := inv.At(2, 2)
	if scale == 0 {
		return nil, fmt.Errorf("singular transform: zero scale")
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.h[3*r+c] = inv.At(r, c) / scale
		}
	}
	return &out, nil
}

// Matrix returns the row-major 3x3 coefficients.
func (h *Homography) Matrix() [9]float64 { return h.h }
