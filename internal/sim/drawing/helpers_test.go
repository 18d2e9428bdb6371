package drawing

import (
	"math/rand"
	"sort"
	"testing"

	"pixelmorph.ai/internal/sim/heuristic"
)

var (
	black = heuristic.RGB{}
	white = heuristic.RGB{R: 255, G: 255, B: 255}
)

func rgb(r, g, b uint8) heuristic.RGB { return heuristic.RGB{R: r, G: g, B: b} }

func fullPalette(fill heuristic.RGB) []Color {
	colors := make([]Color, CanvasSize*CanvasSize)
	for i := range colors {
		colors[i] = ColorFromRGB(fill)
	}
	return colors
}

// setSource sets the palette color of source pixel (x,y).
func setSource(colors []Color, x, y int, c heuristic.RGB) {
	colors[y*CanvasSize+x] = ColorFromRGB(c)
}

func setStroke(cells []Cell, x, y int, id uint32) {
	cells[y*CanvasSize+x].StrokeID = id
}

func uniqueStrokes(cells []Cell) {
	for i := range cells {
		cells[i].StrokeID = uint32(1000 + i)
	}
}

func identityPixels(sidelen int) []Pixel {
	px := make([]Pixel, sidelen*sidelen)
	for i := range px {
		px[i] = Pixel{SrcX: uint16(i % sidelen), SrcY: uint16(i / sidelen)}
	}
	return px
}

func uniformWeights(n int) []int64 {
	w := make([]int64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

// randomRun builds a state with random palette, targets and strokes.
func randomRun(t *testing.T, sidelen int, seed int64, params Params) (*State, Inputs) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	colors := fullPalette(black)
	for y := 0; y < sidelen; y++ {
		for x := 0; x < sidelen; x++ {
			setSource(colors, x, y, rgb(uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256))))
		}
	}
	n := sidelen * sidelen
	targets := make([]heuristic.RGB, n)
	weights := make([]int64, n)
	for i := range targets {
		targets[i] = rgb(uint8(r.Intn(256)), uint8(r.Intn(256)), uint8(r.Intn(256)))
		weights[i] = int64(1 + r.Intn(4))
	}
	cells := InitCanvas(0)
	for y := 0; y < sidelen; y++ {
		for x := 0; x < sidelen; x++ {
			cells[y*CanvasSize+x] = Cell{StrokeID: uint32(r.Intn(4)), LastEdited: uint32(r.Intn(200))}
		}
	}
	s := newState(Settings{Sidelen: sidelen, ProximityImportance: 1, Seed: seed}, params, targets, weights, colors)
	return s, Inputs{Colors: colors, Cells: cells, Frame: 150}
}

func assertPermutation(t *testing.T, assignments []int, n int) {
	t.Helper()
	if len(assignments) != n {
		t.Fatalf("assignment length %d want %d", len(assignments), n)
	}
	sorted := append([]int(nil), assignments...)
	sort.Ints(sorted)
	for i, v := range sorted {
		if v != i {
			t.Fatalf("not a permutation: sorted[%d]=%d", i, v)
		}
	}
}

// adjacent reports whether two positions of a sidelen grid are 4-neighbors.
func adjacent(a, b, sidelen int) bool {
	dx := abs(a%sidelen - b%sidelen)
	dy := abs(a/sidelen - b/sidelen)
	return dx+dy == 1
}
