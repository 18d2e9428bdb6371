package drawing

import "math"

// DecayInterval is how many frames of age make one MaxDist decay step.
const DecayInterval = 30

// Params tunes one assignment run.
type Params struct {
	// StrokeReward is added to a pixel's cost when a 4-neighbor shares its
	// stroke. Negative values pull strokes together.
	StrokeReward int64   `json:"stroke_reward"`
	MaxDistBase  uint32  `json:"max_dist_base"`
	MaxDistDecay float32 `json:"max_dist_decay"`
	MaxDistMin   uint32  `json:"max_dist_min"`
}

// MaxDist is the swap radius allowed for a cell of the given age. It shrinks
// geometrically every DecayInterval frames and never drops below MaxDistMin.
func (p Params) MaxDist(age uint32) uint32 {
	steps := age / DecayInterval
	raw := math.Round(float64(p.MaxDistBase) * math.Pow(float64(p.MaxDistDecay), float64(steps)))
	if raw < float64(p.MaxDistMin) {
		return p.MaxDistMin
	}
	if raw > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(raw)
}
