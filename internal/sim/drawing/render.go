package drawing

import (
	"image"
	"image/color"
)

// Render paints the permutation: canvas position i shows the palette color of
// the source pixel assignments[i]. Out-of-range entries are left transparent.
func Render(assignments []int, sidelen int, colors []Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, sidelen, sidelen))
	n := sidelen * sidelen
	for pos := 0; pos < n && pos < len(assignments); pos++ {
		src := assignments[pos]
		if src < 0 || src >= n {
			continue
		}
		ci := canvasIndex(uint16(src%sidelen), uint16(src/sidelen))
		if ci >= len(colors) {
			continue
		}
		c := colors[ci].RGB()
		img.SetRGBA(pos%sidelen, pos/sidelen, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
	}
	return img
}
