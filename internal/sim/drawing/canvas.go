package drawing

import "pixelmorph.ai/internal/sim/heuristic"

// CanvasSize is the side length of the shared palette and cell tables. Source
// coordinates address both tables with this stride.
const CanvasSize = 128

// Cell records which stroke last claimed a canvas position and when. The
// painter owns these; the optimizer only reads snapshots.
type Cell struct {
	StrokeID   uint32 `json:"stroke_id"`
	LastEdited uint32 `json:"last_edited"`
}

func InitCanvas(frame uint32) []Cell {
	cells := make([]Cell, CanvasSize*CanvasSize)
	for i := range cells {
		cells[i] = Cell{StrokeID: 0, LastEdited: frame}
	}
	return cells
}

// Age is the number of frames since lastEdited, zero when the edit is newer
// than frame (a snapshot taken before the paint landed).
func Age(frame, lastEdited uint32) uint32 {
	if lastEdited >= frame {
		return 0
	}
	return frame - lastEdited
}

// Color is a palette entry, RGBA in 0..1.
type Color [4]float32

// RGB quantizes to 8 bits per channel, saturating at 255.
func (c Color) RGB() heuristic.RGB {
	return heuristic.RGB{R: quantize(c[0]), G: quantize(c[1]), B: quantize(c[2])}
}

func quantize(v float32) uint8 {
	f := v * 256
	switch {
	case f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return uint8(f)
	}
}

func ColorFromRGB(c heuristic.RGB) Color {
	return Color{float32(c.R) / 255, float32(c.G) / 255, float32(c.B) / 255, 1}
}

func canvasIndex(x, y uint16) int {
	return int(y)*CanvasSize + int(x)
}
