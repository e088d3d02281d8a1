package arena

import (
	"image"

	"arenad/internal/geom"
)

// Crop warps the calibrated arena region out of src into a rectified
// OutputWidth x OutputHeight image. Returns nil until calibrated. Pixels
// that map outside src come out black.
func (m *Mapper) Crop(src *image.RGBA) *image.RGBA {
	m.mu.RLock()
	cal := m.cal
	m.mu.RUnlock()
	if cal == nil || src == nil {
		return nil
	}

	w := m.cfg.OutputWidth
	h := m.cfg.OutputHeight
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	sb := src.Bounds()
	sw := sb.Dx()
	sh := sb.Dy()

	for y := 0; y < h; y++ {
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			p := cal.cropToImg.Apply(geom.Point{X: float64(x), Y: float64(y)})
			r, g, b, ok := bilinearRGB(src, sw, sh, p.X, p.Y)
			if ok {
				row[x*4] = r
				row[x*4+1] = g
				row[x*4+2] = b
			}
			row[x*4+3] = 0xFF
		}
	}
	return out
}

// bilinearRGB samples src at a fractional position. ok is false outside the
// image.
func bilinearRGB(src *image.RGBA, w, h int, x, y float64) (r, g, b uint8, ok bool) {
	if x < 0 || y < 0 || x > float64(w-1) || y > float64(h-1) {
		return 0, 0, 0, false
	}

	x0 := int(x)
	y0 := int(y)
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > w-1 {
		x1 = w - 1
	}
	if y1 > h-1 {
		y1 = h - 1
	}
	fx := x - float64(x0)
	fy := y - float64(y0)

	min := src.Bounds().Min
	at := func(px, py int) (float64, float64, float64) {
		i := src.PixOffset(px+min.X, py+min.Y)
		return float64(src.Pix[i]), float64(src.Pix[i+1]), float64(src.Pix[i+2])
	}

	r00, g00, b00 := at(x0, y0)
	r01, g01, b01 := at(x1, y0)
	r10, g10, b10 := at(x0, y1)
	r11, g11, b11 := at(x1, y1)

	lerp2 := func(a, b, c, d float64) float64 {
		top := a*(1-fx) + b*fx
		bot := c*(1-fx) + d*fx
		return top*(1-fy) + bot*fy
	}
	return uint8(lerp2(r00, r01, r10, r11) + 0.5),
		uint8(lerp2(g00, g01, g10, g11) + 0.5),
		uint8(lerp2(b00, b01, b10, b11) + 0.5),
		true
}
