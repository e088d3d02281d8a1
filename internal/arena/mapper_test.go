package arena

import (
	"image"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"arenad/internal/config"
	"arenad/internal/geom"
	"arenad/internal/vision"
)

// squareMarker builds an axis-aligned marker whose own top-left corner is at
// (x, y).
func squareMarker(id int, x, y, size float64) vision.Marker {
	q := geom.Quad{{X: x, Y: y}, {X: x + size, Y: y}, {X: x + size, Y: y + size}, {X: x, Y: y + size}}
	return vision.Marker{ID: id, Corners: q, Center: q.Centroid()}
}

// cornerSet places the four corner markers so their bottom-left pixels land
// on the rectangle (100,100)-(500,300): arena x = (px-100)/100 and
// arena y = (300-py)/100 under the default world corners.
func cornerSet() []vision.Marker {
	const size = 20
	return []vision.Marker{
		squareMarker(1, 100, 100-size, size), // TL, BL pixel (100,100)
		squareMarker(2, 500, 100-size, size), // TR, BL pixel (500,100)
		squareMarker(3, 500, 300-size, size), // BR, BL pixel (500,300)
		squareMarker(0, 100, 300-size, size), // BL, BL pixel (100,300)
	}
}

func newTestMapper() *Mapper {
	return NewMapper(config.Default().Arena, zap.NewNop())
}

func nearFloat(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func TestPoseMapping(t *testing.T) {
	m := newTestMapper()
	t0 := time.Unix(1000, 0)

	robot := squareMarker(9, 300, 180, 20) // BL pixel (300,200)
	m.Process(append(cornerSet(), robot), t0)

	if !m.Calibrated() {
		t.Fatal("mapper should calibrate with all four corners visible")
	}
	pose, ok := m.PoseOf(9)
	if !ok {
		t.Fatal("robot marker should be visible")
	}
	nearFloat(t, pose.X, 2, 1e-6, "X")
	nearFloat(t, pose.Y, 1, 1e-6, "Y")
	nearFloat(t, pose.Theta, math.Pi/2, 1e-6, "Theta")
}

func TestPoseOfUnknownMarker(t *testing.T) {
	m := newTestMapper()
	m.Process(cornerSet(), time.Unix(1000, 0))

	pose, ok := m.PoseOf(77)
	if ok {
		t.Fatal("never-seen marker reported visible")
	}
	if pose != NotVisible {
		t.Fatalf("pose = %+v, want sentinel %+v", pose, NotVisible)
	}
}

func TestPoseOutsideArenaIsSentinel(t *testing.T) {
	m := newTestMapper()
	// BL pixel (700,200) maps to arena x = 6, beyond the 4-unit field.
	outside := squareMarker(9, 700, 180, 20)
	m.Process(append(cornerSet(), outside), time.Unix(1000, 0))

	pose, ok := m.PoseOf(9)
	if ok {
		t.Fatal("out-of-arena marker reported visible")
	}
	if pose != NotVisible {
		t.Fatalf("pose = %+v, want sentinel %+v", pose, NotVisible)
	}
	if !m.Seen(9) {
		t.Fatal("out-of-arena marker was still detected and must count as seen")
	}
}

func TestCalibrationSurvivesCornerBlink(t *testing.T) {
	m := newTestMapper()
	t0 := time.Unix(1000, 0)
	m.Process(cornerSet(), t0)

	// Corners gone, robot still visible: the cached calibration keeps
	// mapping it.
	robot := squareMarker(9, 300, 180, 20)
	m.Process([]vision.Marker{robot}, t0.Add(time.Second))

	pose, ok := m.PoseOf(9)
	if !ok {
		t.Fatal("robot should still be mapped through the cached calibration")
	}
	nearFloat(t, pose.X, 2, 1e-6, "X")

	// Everything gone: pose queries report not visible but the calibration
	// and the seen set stay.
	m.Process(nil, t0.Add(2*time.Second))
	if _, ok := m.PoseOf(9); ok {
		t.Fatal("robot should not be visible with no detections")
	}
	if !m.Calibrated() {
		t.Fatal("calibration must survive an empty frame")
	}
	if !m.Seen(9) {
		t.Fatal("Seen must remember the robot marker")
	}
}

func TestNoPosesBeforeCalibration(t *testing.T) {
	m := newTestMapper()
	robot := squareMarker(9, 300, 180, 20)
	m.Process([]vision.Marker{robot}, time.Unix(1000, 0))

	if m.Calibrated() {
		t.Fatal("mapper calibrated without corner markers")
	}
	if _, ok := m.PoseOf(9); ok {
		t.Fatal("pose reported without a calibration")
	}
	if m.Seen(9) {
		t.Fatal("marker counted as seen before it could be mapped")
	}
}

func TestCalibrationRefreshThrottle(t *testing.T) {
	m := newTestMapper()
	t0 := time.Unix(1000, 0)
	refresh := time.Duration(config.Default().Arena.CropRefreshSeconds) * time.Second

	m.Process(cornerSet(), t0)

	// Shift the left edge of the arena to the right. Within the refresh
	// window the old transform stays in use.
	const size = 20
	moved := []vision.Marker{
		squareMarker(1, 200, 100-size, size),
		squareMarker(2, 500, 100-size, size),
		squareMarker(3, 500, 300-size, size),
		squareMarker(0, 200, 300-size, size),
	}
	robot := squareMarker(9, 300, 180, size)

	m.Process(append(moved, robot), t0.Add(refresh/2))
	pose, _ := m.PoseOf(9)
	nearFloat(t, pose.X, 2, 1e-6, "X before refresh")

	m.Process(append(moved, robot), t0.Add(refresh+time.Second))
	pose, _ = m.PoseOf(9)
	nearFloat(t, pose.X, (300.0-200.0)*4/300, 1e-6, "X after refresh")
}

func TestCropBeforeCalibration(t *testing.T) {
	m := newTestMapper()
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	if m.Crop(src) != nil {
		t.Fatal("crop must be nil before calibration")
	}
}

func TestCropWarpSamplesSource(t *testing.T) {
	m := newTestMapper()
	m.Process(cornerSet(), time.Unix(1000, 0))

	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			i := src.PixOffset(x, y)
			src.Pix[i] = uint8(x * 255 / 640)
			src.Pix[i+1] = uint8(y * 255 / 480)
			src.Pix[i+2] = 0
			src.Pix[i+3] = 0xFF
		}
	}

	out := m.Crop(src)
	if out == nil {
		t.Fatal("crop is nil after calibration")
	}
	cfg := config.Default().Arena
	if b := out.Bounds(); b.Dx() != cfg.OutputWidth || b.Dy() != cfg.OutputHeight {
		t.Fatalf("crop size %v, want %dx%d", b, cfg.OutputWidth, cfg.OutputHeight)
	}

	quad, ok := m.CropSource()
	if !ok {
		t.Fatal("no crop source after calibration")
	}

	checks := []struct {
		out image.Point
		src geom.Point
	}{
		{image.Pt(0, 0), quad[0]},
		{image.Pt(cfg.OutputWidth/2, cfg.OutputHeight/2), quad.Centroid()},
	}
	for _, c := range checks {
		i := out.PixOffset(c.out.X, c.out.Y)
		wantR := c.src.X * 255 / 640
		wantG := c.src.Y * 255 / 480
		if math.Abs(float64(out.Pix[i])-wantR) > 4 || math.Abs(float64(out.Pix[i+1])-wantG) > 4 {
			t.Errorf("crop pixel %v = (%d,%d), want about (%.0f,%.0f)",
				c.out, out.Pix[i], out.Pix[i+1], wantR, wantG)
		}
	}
}
