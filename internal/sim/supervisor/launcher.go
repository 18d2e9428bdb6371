// Package supervisor launches optimizer workers and retires superseded ones.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/imageprep"
)

var ErrStopped = errors.New("launcher stopped")

// RunRecorder receives a row when a run starts and again when it ends.
type RunRecorder interface {
	RecordRun(info drawing.RunInfo) error
}

type Config struct {
	Source        imageprep.RawImage
	Settings      drawing.Settings
	Params        drawing.Params
	SwapsPerPixel int
	// Buffer is the capacity of each worker's progress channel.
	Buffer int

	Live drawing.Snapshotter
	// Out receives every worker's messages, old generations included.
	Out chan<- drawing.Progress

	BatchLogger drawing.BatchLogger
	Runs        RunRecorder
	Logger      *log.Logger
}

type Launcher struct {
	cfg Config
	gen Generation

	mu      sync.Mutex
	stopped bool
	current drawing.RunInfo
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewLauncher(cfg Config) (*Launcher, error) {
	if cfg.Live == nil || cfg.Out == nil {
		return nil, fmt.Errorf("supervisor: live state and output channel are required")
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	return &Launcher{cfg: cfg, cancels: map[string]context.CancelFunc{}}, nil
}

func (l *Launcher) Generation() *Generation { return &l.gen }

// Current is the most recently launched run.
func (l *Launcher) Current() drawing.RunInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Restart supersedes the running worker (if any) and starts a fresh one
// against the current palette. The old worker finishes its batch, reports
// Cancelled and exits on its own. ctx bounds the new worker's sends.
func (l *Launcher) Restart(ctx context.Context) (drawing.RunInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return drawing.RunInfo{}, ErrStopped
	}

	info := drawing.RunInfo{
		RunID:      uuid.NewString(),
		Generation: l.gen.Current() + 1,
		Sidelen:    l.cfg.Settings.Sidelen,
		Seed:       l.cfg.Settings.Seed,
		StartedAt:  time.Now().UTC(),
	}
	ch := make(chan drawing.Progress, l.cfg.Buffer)
	w, err := drawing.NewWorker(drawing.WorkerConfig{
		RunID:         info.RunID,
		Source:        l.cfg.Source,
		Settings:      l.cfg.Settings,
		Params:        l.cfg.Params,
		SwapsPerPixel: l.cfg.SwapsPerPixel,
		Live:          l.cfg.Live,
		Generation:    &l.gen,
		Stamp:         info.Generation,
		Out:           ch,
		BatchLogger:   l.cfg.BatchLogger,
		Logger:        l.cfg.Logger,
	})
	if err != nil {
		return drawing.RunInfo{}, err
	}
	// Only now is the previous worker superseded.
	l.gen.Advance()
	l.current = info
	l.record(info)

	runCtx, cancel := context.WithCancel(ctx)
	l.cancels[info.RunID] = cancel
	drained := make(chan struct{})
	l.wg.Add(2)
	go l.forward(runCtx, ch, drained)
	go l.run(runCtx, w, ch, drained, info)
	return info, nil
}

func (l *Launcher) run(ctx context.Context, w *drawing.Worker, ch chan drawing.Progress, drained <-chan struct{}, info drawing.RunInfo) {
	defer l.wg.Done()
	err := w.Run(ctx)
	close(ch)
	// The run context stays live until the final Cancelled is relayed.
	<-drained

	info.EndedAt = time.Now().UTC()
	switch {
	case err == nil:
		info.Reason = "superseded"
	case errors.Is(err, drawing.ErrConsumerGone):
		info.Reason = "consumer_gone"
	default:
		info.Reason = err.Error()
	}
	l.record(info)

	l.mu.Lock()
	if cancel := l.cancels[info.RunID]; cancel != nil {
		cancel()
		delete(l.cancels, info.RunID)
	}
	l.mu.Unlock()
}

// forward relays one worker's messages to the shared output until the
// worker closes its channel or ctx ends.
func (l *Launcher) forward(ctx context.Context, ch <-chan drawing.Progress, drained chan<- struct{}) {
	defer l.wg.Done()
	defer close(drained)
	for msg := range ch {
		select {
		case l.cfg.Out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Stop supersedes the current worker, cancels every run and waits for all
// goroutines to exit. Restart fails afterwards.
func (l *Launcher) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.wg.Wait()
		return
	}
	l.stopped = true
	l.gen.Advance()
	for _, cancel := range l.cancels {
		cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Launcher) record(info drawing.RunInfo) {
	if l.cfg.Runs == nil {
		return
	}
	if err := l.cfg.Runs.RecordRun(info); err != nil && l.cfg.Logger != nil {
		l.cfg.Logger.Printf("run %s: record: %v", info.RunID, err)
	}
}
