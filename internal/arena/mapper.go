// Package arena turns pixel-space marker detections into arena-space poses.
// Four corner markers pin the playing field; a homography computed from
// their positions maps every other marker into arena coordinates, and a
// second homography extracts a rectified crop of the field.
package arena

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"arenad/internal/config"
	"arenad/internal/geom"
	"arenad/internal/vision"
)

// Pose is a marker's position and heading in arena coordinates. Theta is
// the angle of the marker's left edge, bottom-left toward top-left, in
// radians.
type Pose struct {
	X, Y, Theta float64
}

// NotVisible is the sentinel pose reported for markers that are not
// currently mapped.
var NotVisible = Pose{X: -1, Y: -1, Theta: -1}

// calibration is one solved pair of transforms. It stays in use until a
// fresh one replaces it; corner markers blinking out never clears it.
type calibration struct {
	imgToArena *geom.Homography
	imgToCrop  *geom.Homography
	cropToImg  *geom.Homography
	cropSrc    geom.Quad
	computedAt time.Time
}

// Mapper consumes per-frame detections and answers pose queries. Process is
// called from the pipeline goroutine; queries may come from any goroutine.
type Mapper struct {
	cfg    config.ArenaConfig
	logger *zap.Logger

	mu    sync.RWMutex
	cal   *calibration
	poses map[int]Pose
	seen  map[int]bool
}

// NewMapper creates a mapper for the given arena geometry.
func NewMapper(cfg config.ArenaConfig, logger *zap.Logger) *Mapper {
	return &Mapper{
		cfg:    cfg,
		logger: logger,
		poses:  make(map[int]Pose),
		seen:   make(map[int]bool),
	}
}

// Process ingests one frame's detections. It refreshes the calibration when
// due and recomputes the pose table for everything visible.
func (m *Mapper) Process(markers []vision.Marker, now time.Time) {
	byID := make(map[int]vision.Marker, len(markers))
	for _, mk := range markers {
		byID[mk.ID] = mk
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.maybeCalibrate(byID, now)

	poses := make(map[int]Pose, len(byID))
	if m.cal != nil {
		for id, mk := range byID {
			poses[id] = m.poseFrom(mk)
			m.seen[id] = true
		}
	}
	m.poses = poses
}

// poseFrom maps one marker through the current calibration. A marker whose
// origin lands outside the arena rectangle reports the sentinel.
func (m *Mapper) poseFrom(mk vision.Marker) Pose {
	bl := m.cal.imgToArena.Apply(mk.BottomLeft())
	if !m.inArena(bl) {
		return NotVisible
	}
	tl := m.cal.imgToArena.Apply(mk.Corners[0])
	return Pose{
		X:     bl.X,
		Y:     bl.Y,
		Theta: math.Atan2(tl.Y-bl.Y, tl.X-bl.X),
	}
}

// inArena checks a mapped point against the rectangle spanned by the
// configured world corners.
func (m *Mapper) inArena(p geom.Point) bool {
	minX, minY := m.cfg.WorldCorners[0][0], m.cfg.WorldCorners[0][1]
	maxX, maxY := minX, minY
	for _, c := range m.cfg.WorldCorners[1:] {
		minX = math.Min(minX, c[0])
		maxX = math.Max(maxX, c[0])
		minY = math.Min(minY, c[1])
		maxY = math.Max(maxY, c[1])
	}
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// maybeCalibrate recomputes the transforms when the refresh interval has
// elapsed and all four corner markers are visible. A partial corner set
// leaves the previous calibration in place.
func (m *Mapper) maybeCalibrate(byID map[int]vision.Marker, now time.Time) {
	if m.cal != nil && now.Sub(m.cal.computedAt) < time.Duration(m.cfg.CropRefreshSeconds)*time.Second {
		return
	}

	ids := m.cfg.IDs
	blM, okBL := byID[ids.BL]
	tlM, okTL := byID[ids.TL]
	trM, okTR := byID[ids.TR]
	brM, okBR := byID[ids.BR]
	if !okBL || !okTL || !okTR || !okBR {
		return
	}

	// The marker origins (their own bottom-left corners) are the measured
	// points that correspond to the configured world corners.
	src := geom.Quad{tlM.BottomLeft(), trM.BottomLeft(), brM.BottomLeft(), blM.BottomLeft()}
	dst := geom.Quad{
		{X: m.cfg.WorldCorners[0][0], Y: m.cfg.WorldCorners[0][1]},
		{X: m.cfg.WorldCorners[1][0], Y: m.cfg.WorldCorners[1][1]},
		{X: m.cfg.WorldCorners[2][0], Y: m.cfg.WorldCorners[2][1]},
		{X: m.cfg.WorldCorners[3][0], Y: m.cfg.WorldCorners[3][1]},
	}

	imgToArena, err := geom.NewHomography(src, dst)
	if err != nil {
		m.logger.Warn("arena calibration rejected", zap.Error(err))
		return
	}

	cropSrc := m.cropQuad([4]vision.Marker{tlM, trM, brM, blM})
	w := float64(m.cfg.OutputWidth)
	h := float64(m.cfg.OutputHeight)
	imgToCrop, err := geom.NewHomography(cropSrc, geom.Quad{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}})
	if err != nil {
		m.logger.Warn("crop calibration rejected", zap.Error(err))
		return
	}
	cropToImg, err := imgToCrop.Inverse()
	if err != nil {
		m.logger.Warn("crop calibration rejected", zap.Error(err))
		return
	}

	m.cal = &calibration{
		imgToArena: imgToArena,
		imgToCrop:  imgToCrop,
		cropToImg:  cropToImg,
		cropSrc:    cropSrc,
		computedAt: now,
	}
	m.logger.Info("arena calibrated",
		zap.Float64("crop_area_px", cropSrc.Area()),
		zap.Time("at", now))
}

// cropQuad builds the source-image quad for the rectified crop: the
// outermost corner of each corner marker, pushed further out by a fraction
// of the mean marker edge, then padded vertically.
func (m *Mapper) cropQuad(corners [4]vision.Marker) geom.Quad {
	var center geom.Point
	var meanEdge float64
	for _, mk := range corners {
		center.X += mk.Center.X / 4
		center.Y += mk.Center.Y / 4
		meanEdge += mk.EdgeLength() / 4
	}

	var quad geom.Quad
	for i, mk := range corners {
		quad[i] = outermost(mk, center)
	}

	grow := m.cfg.BorderMarkerFraction * meanEdge
	c := quad.Centroid()
	for i := range quad {
		dx := quad[i].X - c.X
		dy := quad[i].Y - c.Y
		if norm := math.Hypot(dx, dy); norm > 0 {
			quad[i].X += dx / norm * grow
			quad[i].Y += dy / norm * grow
		}
		quad[i].Y = c.Y + (quad[i].Y-c.Y)*(1+m.cfg.VerticalPaddingFraction)
	}
	return quad
}

// outermost picks the marker corner farthest from the arena center.
func outermost(mk vision.Marker, center geom.Point) geom.Point {
	best := mk.Corners[0]
	bestDist := -1.0
	for _, p := range mk.Corners {
		d := math.Hypot(p.X-center.X, p.Y-center.Y)
		if d > bestDist {
			bestDist = d
			best = p
		}
	}
	return best
}

// PoseOf returns the arena pose of id. Markers that are not currently
// mapped, or whose origin fell outside the arena, report the sentinel pose
// and false.
func (m *Mapper) PoseOf(id int) (Pose, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.poses[id]
	if !ok || p == NotVisible {
		return NotVisible, false
	}
	return p, true
}

// Seen reports whether id has ever been mapped since startup.
func (m *Mapper) Seen(id int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[id]
}

// Calibrated reports whether a transform pair is available.
func (m *Mapper) Calibrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cal != nil
}

// ToCrop maps markers from image space to crop space so annotations can be
// drawn on the warped frame. Returns nil until calibrated.
func (m *Mapper) ToCrop(markers []vision.Marker) []vision.Marker {
	m.mu.RLock()
	cal := m.cal
	m.mu.RUnlock()
	if cal == nil {
		return nil
	}

	out := make([]vision.Marker, len(markers))
	for i, mk := range markers {
		out[i] = vision.Marker{
			ID:      mk.ID,
			Corners: cal.imgToCrop.ApplyQuad(mk.Corners),
			Center:  cal.imgToCrop.Apply(mk.Center),
		}
	}
	return out
}

// CropSource returns the source-image quad the crop is warped from.
func (m *Mapper) CropSource() (geom.Quad, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cal == nil {
		return geom.Quad{}, false
	}
	return m.cal.cropSrc, true
}
