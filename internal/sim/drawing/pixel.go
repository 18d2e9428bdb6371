package drawing

import "pixelmorph.ai/internal/sim/heuristic"

// Pixel is the source pixel currently placed at one canvas position, with its
// cached base cost there. The cohesion term is never cached because it
// depends on live stroke data.
type Pixel struct {
	SrcX uint16
	SrcY uint16
	H    int64
}

func (p Pixel) source() heuristic.Point {
	return heuristic.Point{X: p.SrcX, Y: p.SrcY}
}

func (p Pixel) cell(cells []Cell) Cell {
	return cells[canvasIndex(p.SrcX, p.SrcY)]
}

func (p Pixel) color(colors []Color) heuristic.RGB {
	return colors[canvasIndex(p.SrcX, p.SrcY)].RGB()
}

// TotalCost sums the cached base costs.
func TotalCost(pixels []Pixel) int64 {
	var sum int64
	for _, p := range pixels {
		sum += p.H
	}
	return sum
}
