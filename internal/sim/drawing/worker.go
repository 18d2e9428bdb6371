package drawing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pixelmorph.ai/internal/sim/imageprep"
)

// DefaultSwapsPerPixel scales batch size with the canvas: one batch makes
// this many attempts per pixel.
const DefaultSwapsPerPixel = 128

// ErrConsumerGone means nobody is receiving progress any more. It is fatal
// for the worker.
var ErrConsumerGone = errors.New("progress consumer gone")

// Snapshotter is the live shared state a worker copies at each batch start.
// Each method must return a private copy.
type Snapshotter interface {
	Colors() []Color
	Cells() []Cell
	Frame() uint32
}

// GenerationSource reports the currently authoritative run.
type GenerationSource interface {
	Current() uint32
}

type BatchLogger interface {
	WriteBatch(entry BatchLogEntry) error
}

// BatchLogEntry is the telemetry for one completed batch.
type BatchLogEntry struct {
	RunID      string  `json:"run_id,omitempty"`
	Generation uint32  `json:"generation"`
	Batch      uint64  `json:"batch"`
	Frame      uint32  `json:"frame"`
	Attempts   int     `json:"attempts"`
	Swaps      int     `json:"swaps"`
	Cost       int64   `json:"cost"`
	DurationMS float64 `json:"duration_ms"`
}

type WorkerConfig struct {
	RunID         string
	Source        imageprep.RawImage
	Settings      Settings
	Params        Params
	SwapsPerPixel int

	Live       Snapshotter
	Generation GenerationSource
	// Stamp is the generation this worker was launched for.
	Stamp uint32
	Out   chan<- Progress

	// Optional.
	BatchLogger BatchLogger
	Logger      *log.Logger
}

// Worker drives a State forever against live shared state until it sees a
// newer generation.
type Worker struct {
	cfg   WorkerConfig
	state *State
	batch uint64
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Live == nil || cfg.Generation == nil || cfg.Out == nil {
		return nil, fmt.Errorf("%w: worker needs live state, generation source and output channel", ErrInvalidSettings)
	}
	if cfg.SwapsPerPixel <= 0 {
		cfg.SwapsPerPixel = DefaultSwapsPerPixel
	}
	state, err := New(cfg.Source, cfg.Settings, cfg.Live.Colors(), cfg.Params)
	if err != nil {
		return nil, err
	}
	return &Worker{cfg: cfg, state: state}, nil
}

// Run loops batch after batch. It returns nil after publishing Cancelled once
// the live generation moves past the stamp, or ErrConsumerGone when ctx ends
// while a publish is blocked. Supersession is only checked between batches.
func (w *Worker) Run(ctx context.Context) error {
	attempts := w.cfg.SwapsPerPixel * len(w.state.pixels)
	w.logf("gen=%d run=%s started sidelen=%d attempts_per_batch=%d", w.cfg.Stamp, w.cfg.RunID, w.cfg.Settings.Sidelen, attempts)

	for {
		start := time.Now()
		in := Inputs{
			Colors: w.cfg.Live.Colors(),
			Cells:  w.cfg.Live.Cells(),
			Frame:  w.cfg.Live.Frame(),
		}
		swaps := runBatch(w.state, in, attempts)
		w.batch++

		if swaps > 0 {
			msg := AssignmentsUpdated{
				Generation:  w.cfg.Stamp,
				Batch:       w.batch,
				Assignments: w.state.Assignments(),
			}
			if err := w.publish(ctx, msg); err != nil {
				return err
			}
		}
		w.record(in.Frame, attempts, swaps, time.Since(start))

		if w.cfg.Generation.Current() != w.cfg.Stamp {
			if err := w.publish(ctx, Cancelled{Generation: w.cfg.Stamp}); err != nil {
				return err
			}
			w.logf("gen=%d superseded after %d batches", w.cfg.Stamp, w.batch)
			return nil
		}
	}
}

func (w *Worker) publish(ctx context.Context, msg Progress) error {
	select {
	case w.cfg.Out <- msg:
		return nil
	case <-ctx.Done():
		w.logf("gen=%d consumer gone: %v", w.cfg.Stamp, ctx.Err())
		return fmt.Errorf("%w: %v", ErrConsumerGone, ctx.Err())
	}
}

func (w *Worker) record(frame uint32, attempts, swaps int, took time.Duration) {
	if w.cfg.BatchLogger == nil {
		return
	}
	err := w.cfg.BatchLogger.WriteBatch(BatchLogEntry{
		RunID:      w.cfg.RunID,
		Generation: w.cfg.Stamp,
		Batch:      w.batch,
		Frame:      frame,
		Attempts:   attempts,
		Swaps:      swaps,
		Cost:       TotalCost(w.state.pixels),
		DurationMS: float64(took.Microseconds()) / 1000,
	})
	if err != nil {
		w.logf("gen=%d batch log: %v", w.cfg.Stamp, err)
	}
}

func (w *Worker) logf(format string, args ...any) {
	if w.cfg.Logger == nil {
		return
	}
	w.cfg.Logger.Printf(format, args...)
}

// RunInfo describes one worker launch. EndedAt and Reason are set once the
// worker has returned.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	Generation uint32    `json:"generation"`
	Sidelen    int       `json:"sidelen"`
	Seed       int64     `json:"seed"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}
