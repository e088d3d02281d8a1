package vision

import (
	"fmt"
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// cellGrid is the full 6x6 marker pattern including the border.
type cellGrid [6][6]bool

// grid expands id into its cell pattern. Returns an error for unknown ids.
func (d *Dictionary) grid(id int) (cellGrid, error) {
	code, err := d.Code(id)
	if err != nil {
		return cellGrid{}, err
	}
	var g cellGrid
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			g[r+1][c+1] = code&(1<<uint(r*4+c)) != 0
		}
	}
	return g, nil
}

func (g cellGrid) rotateCW() cellGrid {
	var out cellGrid
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			out[r][c] = g[5-c][r]
		}
	}
	return out
}

// RenderMarker draws marker id at cellPx pixels per cell with no quiet
// zone. rot applies that many clockwise quarter turns.
func (d *Dictionary) RenderMarker(id, cellPx, rot int) (*image.Gray, error) {
	g, err := d.grid(id)
	if err != nil {
		return nil, err
	}
	for i := 0; i < rot%4; i++ {
		g = g.rotateCW()
	}

	side := 6 * cellPx
	img := image.NewGray(image.Rect(0, 0, side, side))
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			v := uint8(0)
			if g[r][c] {
				v = 255
			}
			for y := r * cellPx; y < (r+1)*cellPx; y++ {
				for x := c * cellPx; x < (c+1)*cellPx; x++ {
					img.Pix[y*img.Stride+x] = v
				}
			}
		}
	}
	return img, nil
}

// DrawMarker blits marker id into dst with its top-left cell at (x, y).
func (d *Dictionary) DrawMarker(dst draw.Image, id, x, y, cellPx, rot int) error {
	m, err := d.RenderMarker(id, cellPx, rot)
	if err != nil {
		return err
	}
	draw.Draw(dst, m.Bounds().Add(image.Pt(x, y)), m, image.Point{}, draw.Src)
	return nil
}

// RenderSheet lays the given ids on a white page in a printable grid, each
// marker labelled underneath. quietCells is the white margin around each
// marker in cell widths.
func (d *Dictionary) RenderSheet(ids []int, cols, cellPx, quietCells int) (*image.Gray, error) {
	if cols < 1 {
		return nil, fmt.Errorf("sheet needs at least one column, got %d", cols)
	}
	rows := (len(ids) + cols - 1) / cols

	marker := 6 * cellPx
	quiet := quietCells * cellPx
	labelH := basicfont.Face7x13.Height + 4
	cellW := marker + 2*quiet
	cellH := marker + 2*quiet + labelH

	sheet := image.NewGray(image.Rect(0, 0, cols*cellW, rows*cellH))
	draw.Draw(sheet, sheet.Bounds(), image.White, image.Point{}, draw.Src)

	for i, id := range ids {
		ox := (i % cols) * cellW
		oy := (i / cols) * cellH
		if err := d.DrawMarker(sheet, id, ox+quiet, oy+quiet, cellPx, 0); err != nil {
			return nil, err
		}

		label := fmt.Sprintf("%d", id)
		drawer := font.Drawer{
			Dst:  sheet,
			Src:  image.Black,
			Face: basicfont.Face7x13,
		}
		w := drawer.MeasureString(label).Ceil()
		drawer.Dot = fixed.P(ox+(cellW-w)/2, oy+quiet+marker+quiet/2+basicfont.Face7x13.Ascent)
		drawer.DrawString(label)
	}
	return sheet, nil
}
