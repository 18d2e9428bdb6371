// Package imageprep turns a raw RGBA target image into the per-position
// target colors and importance weights an assignment run optimizes against.
package imageprep

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"pixelmorph.ai/internal/sim/heuristic"
)

var ErrInvalidImage = errors.New("invalid source image")

// RawImage is an undecoded RGBA8 buffer, row-major, 4 bytes per pixel.
type RawImage struct {
	Width  uint32
	Height uint32
	Pix    []byte
}

type Prepared struct {
	Sidelen int
	Targets []heuristic.RGB
	Weights []int64
}

func (r RawImage) Validate() error {
	if r.Width == 0 || r.Height == 0 {
		return fmt.Errorf("%w: empty %dx%d", ErrInvalidImage, r.Width, r.Height)
	}
	want := uint64(r.Width) * uint64(r.Height) * 4
	if uint64(len(r.Pix)) != want {
		return fmt.Errorf("%w: %dx%d needs %d bytes, got %d", ErrInvalidImage, r.Width, r.Height, want, len(r.Pix))
	}
	return nil
}

// At returns the pixel at (x,y) of the image. The caller keeps x,y in range.
func (r RawImage) At(x, y int) heuristic.RGB {
	i := (y*int(r.Width) + x) * 4
	return heuristic.RGB{R: r.Pix[i], G: r.Pix[i+1], B: r.Pix[i+2]}
}

// Prepare resamples the image onto a sidelen x sidelen grid (nearest neighbor)
// and derives one weight per position. Weights are at least 1 and grow with
// local luminance contrast so edges dominate flat areas.
func Prepare(src RawImage, sidelen int) (Prepared, error) {
	if err := src.Validate(); err != nil {
		return Prepared{}, err
	}
	if sidelen <= 0 {
		return Prepared{}, fmt.Errorf("imageprep: bad sidelen %d", sidelen)
	}
	n := sidelen * sidelen
	out := Prepared{
		Sidelen: sidelen,
		Targets: make([]heuristic.RGB, n),
		Weights: make([]int64, n),
	}
	for y := 0; y < sidelen; y++ {
		sy := y * int(src.Height) / sidelen
		for x := 0; x < sidelen; x++ {
			sx := x * int(src.Width) / sidelen
			out.Targets[y*sidelen+x] = src.At(sx, sy)
		}
	}
	lum := make([]int64, n)
	for i, c := range out.Targets {
		lum[i] = Luma(c)
	}
	for y := 0; y < sidelen; y++ {
		for x := 0; x < sidelen; x++ {
			i := y*sidelen + x
			var contrast int64
			if x+1 < sidelen {
				contrast += abs64(lum[i] - lum[i+1])
			}
			if y+1 < sidelen {
				contrast += abs64(lum[i] - lum[i+sidelen])
			}
			out.Weights[i] = 1 + contrast/32
		}
	}
	return out, nil
}

// Luma is the integer Rec. 601 luminance in 0..255.
func Luma(c heuristic.RGB) int64 {
	return (299*int64(c.R) + 587*int64(c.G) + 114*int64(c.B)) / 1000
}

// DecodeFile reads a PNG or JPEG file into a RawImage.
func DecodeFile(path string) (RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawImage{}, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return RawImage{}, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}
	return FromImage(img), nil
}

func FromImage(img image.Image) RawImage {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return RawImage{
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Pix:    rgba.Pix,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
