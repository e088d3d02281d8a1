package geom

import (
	"math"
	"testing"
)

func almostEqual(a, b Point, tol float64) bool {
	return math.Abs(a.X-b.X) < tol && math.Abs(a.Y-b.Y) < tol
}

func TestHomographyMapsCorrespondences(t *testing.T) {
	src := Quad{{100, 80}, {520, 95}, {500, 400}, {110, 390}}
	dst := Quad{{0, 2}, {4, 2}, {4, 0}, {0, 0}}

	h, err := NewHomography(src, dst)
	if err != nil {
		t.Fatalf("NewHomography: %v", err)
	}
	for i := range src {
		got := h.Apply(src[i])
		if !almostEqual(got, dst[i], 1e-9) {
			t.Errorf("corner %d: got %+v want %+v", i, got, dst[i])
		}
	}
}

func TestHomographyInverseRoundTrip(t *testing.T) {
	src := Quad{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	dst := Quad{{50, 30}, {300, 40}, {290, 250}, {60, 260}}

	h, err := NewHomography(src, dst)
	if err != nil {
		t.Fatalf("NewHomography: %v", err)
	}
	inv, err := h.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}

	probes := []Point{{0.5, 0.5}, {0.1, 0.9}, {0.75, 0.25}}
	for _, p := range probes {
		back := inv.Apply(h.Apply(p))
		if !almostEqual(back, p, 1e-9) {
			t.Errorf("round trip of %+v gave %+v", p, back)
		}
	}
}

func TestHomographyDegenerateSource(t *testing.T) {
	// Three collinear points cannot define a projective frame.
	src := Quad{{0, 0}, {1, 1}, {2, 2}, {0, 1}}
	dst := Quad{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	if _, err := NewHomography(src, dst); err == nil {
		t.Fatal("expected error for collinear source points")
	}
}

func TestQuadArea(t *testing.T) {
	q := Quad{{0, 0}, {4, 0}, {4, 2}, {0, 2}}
	if got := q.Area(); math.Abs(got-8) > 1e-12 {
		t.Fatalf("Area = %v, want 8", got)
	}
}

func TestQuadCentroid(t *testing.T) {
	q := Quad{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	if c := q.Centroid(); !almostEqual(c, Point{1, 1}, 1e-12) {
		t.Fatalf("Centroid = %+v, want (1,1)", c)
	}
}
