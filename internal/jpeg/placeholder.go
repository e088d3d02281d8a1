package jpeg

import (
	"bytes"
	"image"
	"image/color"
	stdjpeg "image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Placeholder renders a 320x240 black JPEG with a centered caption. It is
// what an MJPEG client sees before the corresponding stream has produced a
// real frame.
func Placeholder(caption string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	white := color.RGBA{255, 255, 255, 255}

	textWidth := len(caption) * basicfont.Face7x13.Advance
	x := (320 - textWidth) / 2
	if x < 4 {
		x = 4
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(white),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(120)},
	}
	d.DrawString(caption)

	var buf bytes.Buffer
	if err := stdjpeg.Encode(&buf, img, &stdjpeg.Options{Quality: 80}); err != nil {
		return nil
	}
	return buf.Bytes()
}
