package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/heuristic"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	Sidelen                    int   `yaml:"sidelen"`
	ProximityImportance        int64 `yaml:"proximity_importance"`
	SwapsPerGenerationPerPixel int   `yaml:"swaps_per_generation_per_pixel"`
	Seed                       int64 `yaml:"seed"`
	ProgressBuffer             int   `yaml:"progress_buffer"`
	FrameRateHz                int   `yaml:"frame_rate_hz"`

	Drawing Drawing `yaml:"drawing"`
	Preview Preview `yaml:"preview"`
}

type Drawing struct {
	StrokeReward int64   `yaml:"stroke_reward"`
	MaxDistBase  uint32  `yaml:"max_dist_base"`
	MaxDistDecay float32 `yaml:"max_dist_decay"`
	MaxDistMin   uint32  `yaml:"max_dist_min"`
}

type Preview struct {
	MaxSubscribers int `yaml:"max_subscribers"`
	// SendQueue is the per-subscriber buffer; the oldest frame is dropped
	// when it is full.
	SendQueue int `yaml:"send_queue"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:            "1.0",
		Sidelen:                    drawing.CanvasSize,
		ProximityImportance:        13,
		SwapsPerGenerationPerPixel: drawing.DefaultSwapsPerPixel,
		Seed:                       drawing.DefaultSeed,
		ProgressBuffer:             4,
		FrameRateHz:                30,
		Drawing: Drawing{
			StrokeReward: -20000,
			MaxDistBase:  10,
			MaxDistDecay: 0.5,
			MaxDistMin:   2,
		},
		Preview: Preview{
			MaxSubscribers: 32,
			SendQueue:      4,
		},
	}
}

// Load reads path over Defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Sidelen < 1 || t.Sidelen > drawing.CanvasSize {
		return fmt.Errorf("sidelen %d not in 1..%d", t.Sidelen, drawing.CanvasSize)
	}
	if t.ProximityImportance < 0 || t.ProximityImportance > heuristic.MaxProximityImportance {
		return fmt.Errorf("proximity_importance %d not in 0..%d", t.ProximityImportance, heuristic.MaxProximityImportance)
	}
	if t.SwapsPerGenerationPerPixel <= 0 {
		return fmt.Errorf("swaps_per_generation_per_pixel must be > 0")
	}
	if t.ProgressBuffer < 0 {
		return fmt.Errorf("progress_buffer must be >= 0")
	}
	if t.FrameRateHz <= 0 {
		return fmt.Errorf("frame_rate_hz must be > 0")
	}
	d := t.Drawing
	if d.MaxDistDecay <= 0 || d.MaxDistDecay > 1 {
		return fmt.Errorf("drawing.max_dist_decay %v not in (0,1]", d.MaxDistDecay)
	}
	if d.MaxDistMin > d.MaxDistBase {
		return fmt.Errorf("drawing.max_dist_min %d exceeds max_dist_base %d", d.MaxDistMin, d.MaxDistBase)
	}
	if t.Preview.MaxSubscribers <= 0 || t.Preview.SendQueue <= 0 {
		return fmt.Errorf("preview.max_subscribers and preview.send_queue must be > 0")
	}
	return nil
}

func (t Tuning) Settings() drawing.Settings {
	return drawing.Settings{
		Sidelen:             t.Sidelen,
		ProximityImportance: t.ProximityImportance,
		Seed:                t.Seed,
	}
}

func (t Tuning) Params() drawing.Params {
	return drawing.Params{
		StrokeReward: t.Drawing.StrokeReward,
		MaxDistBase:  t.Drawing.MaxDistBase,
		MaxDistDecay: t.Drawing.MaxDistDecay,
		MaxDistMin:   t.Drawing.MaxDistMin,
	}
}
