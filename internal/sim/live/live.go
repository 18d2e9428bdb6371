// Package live holds the state shared between the painter and optimizer
// workers: the source palette, the canvas cells and the frame counter.
package live

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/heuristic"
)

var ErrOutOfCanvas = errors.New("position outside canvas")

type Color = drawing.Color

// State is safe for concurrent use. Readers get private copies.
type State struct {
	colorsMu sync.RWMutex
	colors   []Color

	cellsMu sync.RWMutex
	cells   []drawing.Cell

	frame      atomic.Uint32
	nextStroke atomic.Uint32
}

// New starts with every palette entry set to fill and a blank canvas
// stamped with frame.
func New(frame uint32, fill Color) *State {
	colors := make([]Color, drawing.CanvasSize*drawing.CanvasSize)
	for i := range colors {
		colors[i] = fill
	}
	s := &State{colors: colors, cells: drawing.InitCanvas(frame)}
	s.frame.Store(frame)
	return s
}

func (s *State) Colors() []Color {
	s.colorsMu.RLock()
	defer s.colorsMu.RUnlock()
	return append([]Color(nil), s.colors...)
}

func (s *State) Cells() []drawing.Cell {
	s.cellsMu.RLock()
	defer s.cellsMu.RUnlock()
	return append([]drawing.Cell(nil), s.cells...)
}

func (s *State) Frame() uint32 { return s.frame.Load() }

// AdvanceFrame bumps the frame counter and returns the new value.
func (s *State) AdvanceFrame() uint32 { return s.frame.Add(1) }

// SetColors replaces the palette table wholesale.
func (s *State) SetColors(colors []Color) error {
	if len(colors) != drawing.CanvasSize*drawing.CanvasSize {
		return fmt.Errorf("live: palette has %d entries, need %d", len(colors), drawing.CanvasSize*drawing.CanvasSize)
	}
	cp := append([]Color(nil), colors...)
	s.colorsMu.Lock()
	s.colors = cp
	s.colorsMu.Unlock()
	return nil
}

// NextStrokeID hands out stroke ids starting at 1. Zero is the blank canvas.
func (s *State) NextStrokeID() uint32 { return s.nextStroke.Add(1) }

// PaintStroke claims the cells at positions (y*CanvasSize+x) for stroke id,
// stamping them with frame. The frame counter moves forward to frame if it
// is behind. Nothing is written when any position is out of range.
func (s *State) PaintStroke(id uint32, positions []int, frame uint32) error {
	for _, p := range positions {
		if p < 0 || p >= drawing.CanvasSize*drawing.CanvasSize {
			return fmt.Errorf("%w: %d", ErrOutOfCanvas, p)
		}
	}
	s.cellsMu.Lock()
	for _, p := range positions {
		s.cells[p] = drawing.Cell{StrokeID: id, LastEdited: frame}
	}
	s.cellsMu.Unlock()

	for {
		cur := s.frame.Load()
		if cur >= frame || s.frame.CompareAndSwap(cur, frame) {
			return nil
		}
	}
}

// ColorsFromImage builds a full palette from img: source pixel (x,y) maps to
// entry y*CanvasSize+x. Pixels outside the image stay transparent black.
func ColorsFromImage(img image.Image) []Color {
	colors := make([]Color, drawing.CanvasSize*drawing.CanvasSize)
	b := img.Bounds()
	for y := 0; y < drawing.CanvasSize && y < b.Dy(); y++ {
		for x := 0; x < drawing.CanvasSize && x < b.Dx(); x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			c := drawing.ColorFromRGB(heuristic.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8)})
			c[3] = float32(a>>8) / 255
			colors[y*drawing.CanvasSize+x] = c
		}
	}
	return colors
}
