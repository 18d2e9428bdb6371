package drawing

import (
	"errors"
	"fmt"
	"math/rand"

	"pixelmorph.ai/internal/sim/heuristic"
	"pixelmorph.ai/internal/sim/imageprep"
)

// DefaultSeed keeps runs reproducible unless the caller picks another seed.
const DefaultSeed int64 = 12345

var ErrInvalidSettings = errors.New("invalid drawing settings")

// Settings is the slice of run configuration the engine reads.
type Settings struct {
	Sidelen             int
	ProximityImportance int64
	Seed                int64
}

// Inputs is the read-only view of shared state a batch evaluates against.
// Colors and Cells use the CanvasSize stride.
type Inputs struct {
	Colors []Color
	Cells  []Cell
	Frame  uint32
}

// State owns one permutation of source pixels over the canvas and everything
// needed to score it. It is not safe for concurrent use.
type State struct {
	pixels   []Pixel
	rng      *rand.Rand
	settings Settings
	params   Params
	targets  []heuristic.RGB
	weights  []int64
}

// New prepares the target image and places every source pixel at its own
// coordinates, caching the base cost of that placement.
func New(source imageprep.RawImage, settings Settings, colors []Color, params Params) (*State, error) {
	if settings.Sidelen <= 0 || settings.Sidelen > CanvasSize {
		return nil, fmt.Errorf("%w: sidelen %d not in 1..%d", ErrInvalidSettings, settings.Sidelen, CanvasSize)
	}
	if settings.ProximityImportance < 0 || settings.ProximityImportance > heuristic.MaxProximityImportance {
		return nil, fmt.Errorf("%w: proximity importance %d not in 0..%d", ErrInvalidSettings, settings.ProximityImportance, heuristic.MaxProximityImportance)
	}
	if len(colors) < CanvasSize*CanvasSize {
		return nil, fmt.Errorf("%w: palette has %d colors, need %d", ErrInvalidSettings, len(colors), CanvasSize*CanvasSize)
	}
	prep, err := imageprep.Prepare(source, settings.Sidelen)
	if err != nil {
		return nil, err
	}
	return newState(settings, params, prep.Targets, prep.Weights, colors), nil
}

func newState(settings Settings, params Params, targets []heuristic.RGB, weights []int64, colors []Color) *State {
	s := &State{
		pixels:   make([]Pixel, len(targets)),
		rng:      rand.New(rand.NewSource(settings.Seed)),
		settings: settings,
		params:   params,
		targets:  targets,
		weights:  weights,
	}
	for i := range s.pixels {
		x := uint16(i % settings.Sidelen)
		y := uint16(i / settings.Sidelen)
		p := Pixel{SrcX: x, SrcY: y}
		p.H = s.cost(p, i, colors)
		s.pixels[i] = p
	}
	return s
}

// Step runs one batch of up to maxSwaps attempts. It returns the new
// assignment and true when at least one swap was accepted.
func (s *State) Step(in Inputs, maxSwaps int) ([]int, bool) {
	if runBatch(s, in, maxSwaps) == 0 {
		return nil, false
	}
	return s.Assignments(), true
}

// Assignments lists, per canvas position in scan order, the source index
// (srcY*sidelen+srcX) placed there.
func (s *State) Assignments() []int {
	out := make([]int, len(s.pixels))
	for i, p := range s.pixels {
		out[i] = int(p.SrcY)*s.settings.Sidelen + int(p.SrcX)
	}
	return out
}

func (s *State) Settings() Settings { return s.settings }
func (s *State) Params() Params     { return s.params }

// cost is the base heuristic of p sitting at canvas position pos.
func (s *State) cost(p Pixel, pos int, colors []Color) int64 {
	dst := heuristic.Point{
		X: uint16(pos % s.settings.Sidelen),
		Y: uint16(pos / s.settings.Sidelen),
	}
	return heuristic.Cost(p.source(), dst, p.color(colors), s.targets[pos], s.weights[pos], s.settings.ProximityImportance)
}
