package vision

import (
	"image"
	"image/color"

	"arenad/internal/geom"
)

// Params tunes the detection pipeline. Zero values are not usable; start
// from DefaultParams.
type Params struct {
	// Adaptive threshold window sizes, tried smallest to largest. Each size
	// gets a full detection pass and the first sighting of an id wins.
	AdaptiveWinMin  int
	AdaptiveWinMax  int
	AdaptiveWinStep int
	// AdaptiveC is subtracted from the local mean before comparing.
	AdaptiveC float64
	// MinSide rejects components whose bounding box is smaller than this in
	// either dimension.
	MinSide int
	// MaxSideFrac rejects components wider or taller than this fraction of
	// the frame.
	MaxSideFrac float64
	// MinContrast is the minimum gray spread across the 36 sampled cells.
	MinContrast float64
}

// DefaultParams returns the tuning used in production.
func DefaultParams() Params {
	return Params{
		AdaptiveWinMin:  3,
		AdaptiveWinMax:  23,
		AdaptiveWinStep: 10,
		AdaptiveC:       7,
		MinSide:         12,
		MaxSideFrac:     0.5,
		MinContrast:     40,
	}
}

// Detector finds dictionary markers in frames. It is stateless and safe for
// concurrent use.
type Detector struct {
	dict   *Dictionary
	params Params
}

// NewDetector creates a detector over the given dictionary.
func NewDetector(dict *Dictionary, params Params) *Detector {
	return &Detector{dict: dict, params: params}
}

// Detect returns every marker found in the frame, at most one per id. When
// the same id appears twice the first sighting is kept.
func (d *Detector) Detect(img image.Image) []Marker {
	g := toGray(img)
	if g.w < d.params.MinSide || g.h < d.params.MinSide {
		return nil
	}
	integral := g.integral()

	var markers []Marker
	seen := make(map[int]bool)

	for win := d.params.AdaptiveWinMin; win <= d.params.AdaptiveWinMax; win += d.params.AdaptiveWinStep {
		dark := g.adaptiveDark(integral, win, d.params.AdaptiveC)
		for _, cand := range d.findQuads(g, dark) {
			m, ok := d.decode(g, cand)
			if !ok || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			markers = append(markers, m)
		}
	}
	return markers
}

// grayFrame is a tightly packed 8-bit luma image.
type grayFrame struct {
	pix  []uint8
	w, h int
}

func toGray(img image.Image) *grayFrame {
	b := img.Bounds()
	g := &grayFrame{
		pix: make([]uint8, b.Dx()*b.Dy()),
		w:   b.Dx(),
		h:   b.Dy(),
	}

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.h; y++ {
			copy(g.pix[y*g.w:(y+1)*g.w], src.Pix[y*src.Stride:y*src.Stride+g.w])
		}
	case *image.RGBA:
		for y := 0; y < g.h; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < g.w; x++ {
				r := uint32(row[x*4])
				gr := uint32(row[x*4+1])
				bl := uint32(row[x*4+2])
				g.pix[y*g.w+x] = uint8((299*r + 587*gr + 114*bl) / 1000)
			}
		}
	default:
		for y := 0; y < g.h; y++ {
			for x := 0; x < g.w; x++ {
				c := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray)
				g.pix[y*g.w+x] = c.Y
			}
		}
	}
	return g
}

// integral returns the summed-area table with a zero first row and column.
func (g *grayFrame) integral() []uint64 {
	w1 := g.w + 1
	sat := make([]uint64, w1*(g.h+1))
	for y := 0; y < g.h; y++ {
		var rowSum uint64
		for x := 0; x < g.w; x++ {
			rowSum += uint64(g.pix[y*g.w+x])
			sat[(y+1)*w1+x+1] = sat[y*w1+x+1] + rowSum
		}
	}
	return sat
}

// adaptiveDark marks pixels darker than their local mean minus c. Windows
// are clamped at the frame edge.
func (g *grayFrame) adaptiveDark(sat []uint64, win int, c float64) []bool {
	r := win / 2
	w1 := g.w + 1
	dark := make([]bool, g.w*g.h)

	for y := 0; y < g.h; y++ {
		y0 := max(0, y-r)
		y1 := min(g.h, y+r+1)
		for x := 0; x < g.w; x++ {
			x0 := max(0, x-r)
			x1 := min(g.w, x+r+1)
			sum := sat[y1*w1+x1] - sat[y0*w1+x1] - sat[y1*w1+x0] + sat[y0*w1+x0]
			mean := float64(sum) / float64((y1-y0)*(x1-x0))
			dark[y*g.w+x] = float64(g.pix[y*g.w+x]) < mean-c
		}
	}
	return dark
}

// bilinear samples the luma at a fractional position, clamping at the edge.
func (g *grayFrame) bilinear(x, y float64) float64 {
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	maxX := float64(g.w - 1)
	maxY := float64(g.h - 1)
	if x > maxX {
		x = maxX
	}
	if y > maxY {
		y = maxY
	}

	x0 := int(x)
	y0 := int(y)
	x1 := min(x0+1, g.w-1)
	y1 := min(y0+1, g.h-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	p00 := float64(g.pix[y0*g.w+x0])
	p01 := float64(g.pix[y0*g.w+x1])
	p10 := float64(g.pix[y1*g.w+x0])
	p11 := float64(g.pix[y1*g.w+x1])

	top := p00*(1-fx) + p01*fx
	bot := p10*(1-fx) + p11*fx
	return top*(1-fy) + bot*fy
}

// findQuads labels connected dark regions and keeps those shaped like a
// filled quadrilateral of plausible size. Corners come from the extreme
// pixels of x+y and x-y, which pins the four outermost points of a roughly
// axis-aligned square.
func (d *Detector) findQuads(g *grayFrame, dark []bool) []geom.Quad {
	visited := make([]bool, len(dark))
	queue := make([]int, 0, 1024)
	var quads []geom.Quad

	maxW := int(d.params.MaxSideFrac * float64(g.w))
	maxH := int(d.params.MaxSideFrac * float64(g.h))

	for start := range dark {
		if !dark[start] || visited[start] {
			continue
		}

		// BFS over the 8-connected component, tracking the bounding box and
		// the diagonal extremes.
		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true

		sx, sy := start%g.w, start/g.w
		minX, maxX, minY, maxY := sx, sx, sy, sy
		tl, tr, br, bl := [2]int{sx, sy}, [2]int{sx, sy}, [2]int{sx, sy}, [2]int{sx, sy}

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%g.w, idx/g.w

			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
			if x+y < tl[0]+tl[1] {
				tl = [2]int{x, y}
			}
			if x+y > br[0]+br[1] {
				br = [2]int{x, y}
			}
			if x-y > tr[0]-tr[1] {
				tr = [2]int{x, y}
			}
			if x-y < bl[0]-bl[1] {
				bl = [2]int{x, y}
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= g.w || ny >= g.h {
						continue
					}
					n := ny*g.w + nx
					if dark[n] && !visited[n] {
						visited[n] = true
						queue = append(queue, n)
					}
				}
			}
		}

		bw := maxX - minX + 1
		bh := maxY - minY + 1
		if bw < d.params.MinSide || bh < d.params.MinSide || bw > maxW || bh > maxH {
			continue
		}

		quad := geom.Quad{
			{X: float64(tl[0]), Y: float64(tl[1])},
			{X: float64(tr[0]), Y: float64(tr[1])},
			{X: float64(br[0]), Y: float64(br[1])},
			{X: float64(bl[0]), Y: float64(bl[1])},
		}
		// A square rotated 45 degrees fills half its bounding box; anything
		// much thinner is an edge or a scribble, not a marker.
		if quad.Area() < 0.4*float64(bw*bh) {
			continue
		}
		quads = append(quads, quad)
	}
	return quads
}

var unitSquare = geom.Quad{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}

// decode samples the 6x6 cell grid inside the quad, validates the black
// border, and matches the payload against the dictionary. Corners of the
// returned marker are reordered so index 0 is the marker's own top-left.
func (d *Detector) decode(g *grayFrame, quad geom.Quad) (Marker, bool) {
	h, err := geom.NewHomography(unitSquare, quad)
	if err != nil {
		return Marker{}, false
	}

	var samples [6][6]float64
	lo, hi := 255.0, 0.0
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			p := h.Apply(geom.Point{X: (float64(c) + 0.5) / 6, Y: (float64(r) + 0.5) / 6})
			v := g.bilinear(p.X, p.Y)
			samples[r][c] = v
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if hi-lo < d.params.MinContrast {
		return Marker{}, false
	}

	thresh := (lo + hi) / 2
	var code uint16
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			white := samples[r][c] > thresh
			if r == 0 || r == 5 || c == 0 || c == 5 {
				if white {
					return Marker{}, false // border must be solid black
				}
				continue
			}
			if white {
				code |= 1 << uint((r-1)*4+c-1)
			}
		}
	}

	id, rot, ok := d.dict.Identify(code)
	if !ok {
		return Marker{}, false
	}

	// rot is where the marker's top-left corner landed in image order, so
	// rotating the quad by rot restores the marker's own corner order.
	var corners geom.Quad
	for i := 0; i < 4; i++ {
		corners[i] = quad[(rot+i)%4]
	}
	return Marker{ID: id, Corners: corners, Center: quad.Centroid()}, true
}
