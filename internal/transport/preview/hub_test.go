package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"pixelmorph.ai/internal/protocol"
	"pixelmorph.ai/internal/sim/drawing"
	"pixelmorph.ai/internal/sim/heuristic"
)

type fixedGen struct{ v atomic.Uint32 }

func (g *fixedGen) Current() uint32 { return g.v.Load() }

type countingStats struct {
	stale, dropped atomic.Int32
	subs           atomic.Int32
}

func (c *countingStats) StaleDropped()        { c.stale.Add(1) }
func (c *countingStats) SubscriberDropped()   { c.dropped.Add(1) }
func (c *countingStats) SetSubscribers(n int) { c.subs.Store(int32(n)) }

func palette() []drawing.Color {
	colors := make([]drawing.Color, drawing.CanvasSize*drawing.CanvasSize)
	colors[0] = drawing.ColorFromRGB(heuristic.RGB{R: 255})
	colors[1] = drawing.ColorFromRGB(heuristic.RGB{G: 255})
	colors[drawing.CanvasSize] = drawing.ColorFromRGB(heuristic.RGB{B: 255})
	colors[drawing.CanvasSize+1] = drawing.ColorFromRGB(heuristic.RGB{R: 255, G: 255, B: 255})
	return colors
}

func newTestHub(t *testing.T, gen *fixedGen, stats Stats) *Hub {
	t.Helper()
	h, err := NewHub(HubConfig{
		Sidelen:        2,
		Colors:         palette,
		Generation:     gen,
		MaxSubscribers: 2,
		SendQueue:      2,
		Stats:          stats,
	})
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	return h
}

func TestHub_DropsStaleGenerations(t *testing.T) {
	gen := &fixedGen{}
	gen.v.Store(2)
	stats := &countingStats{}
	h := newTestHub(t, gen, stats)

	h.handle(drawing.AssignmentsUpdated{Generation: 2, Batch: 1, Assignments: []int{3, 2, 1, 0}})
	h.handle(drawing.AssignmentsUpdated{Generation: 1, Batch: 9, Assignments: []int{0, 1, 2, 3}})

	g, b, a := h.Latest()
	if g != 2 || b != 1 || a[0] != 3 {
		t.Fatalf("latest = gen %d batch %d %v", g, b, a)
	}
	if stats.stale.Load() != 1 {
		t.Fatalf("stale drops = %d", stats.stale.Load())
	}
}

func TestHub_LatestIsIdentityBeforeUpdates(t *testing.T) {
	h := newTestHub(t, &fixedGen{}, nil)
	g, b, a := h.Latest()
	if g != 0 || b != 0 || len(a) != 4 || a[0] != 0 || a[3] != 3 {
		t.Fatalf("latest = gen %d batch %d %v", g, b, a)
	}
	// Latest returns a copy.
	a[0] = 99
	if _, _, again := h.Latest(); again[0] != 0 {
		t.Fatalf("Latest leaked internal slice")
	}
}

func TestHub_SubscribersGetUpdatesAndCancels(t *testing.T) {
	gen := &fixedGen{}
	gen.v.Store(1)
	stats := &countingStats{}
	h := newTestHub(t, gen, stats)

	_, full, err := h.Subscribe(true)
	if err != nil {
		t.Fatal(err)
	}
	_, lite, err := h.Subscribe(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.Subscribe(true); !errors.Is(err, ErrBusy) {
		t.Fatalf("third subscriber: %v", err)
	}
	if stats.subs.Load() != 2 {
		t.Fatalf("subscriber gauge = %d", stats.subs.Load())
	}

	h.handle(drawing.AssignmentsUpdated{Generation: 1, Batch: 4, Assignments: []int{1, 0, 2, 3}})
	var am protocol.AssignmentsMsg
	if err := json.Unmarshal(<-full, &am); err != nil || am.Type != protocol.TypeAssignments || len(am.Assignments) != 4 || am.Batch != 4 {
		t.Fatalf("full subscriber got %+v (%v)", am, err)
	}
	raw := <-lite
	if err := protocol.Validate(protocol.SchemaAssignments, raw); err != nil {
		t.Fatalf("lite message invalid: %v", err)
	}
	am = protocol.AssignmentsMsg{}
	_ = json.Unmarshal(raw, &am)
	if am.Assignments != nil || am.Sidelen != 2 {
		t.Fatalf("lite subscriber got %+v", am)
	}

	gen.v.Store(2)
	h.handle(drawing.Cancelled{Generation: 1})
	var cm protocol.CancelledMsg
	if err := json.Unmarshal(<-full, &cm); err != nil || cm.Type != protocol.TypeCancelled || cm.Generation != 1 {
		t.Fatalf("cancelled = %+v (%v)", cm, err)
	}
}

func TestHub_LateSubscriberGetsLatest(t *testing.T) {
	gen := &fixedGen{}
	h := newTestHub(t, gen, nil)
	h.handle(drawing.AssignmentsUpdated{Generation: 0, Batch: 2, Assignments: []int{0, 2, 1, 3}})

	_, out, err := h.Subscribe(true)
	if err != nil {
		t.Fatal(err)
	}
	var am protocol.AssignmentsMsg
	select {
	case b := <-out:
		_ = json.Unmarshal(b, &am)
	default:
		t.Fatalf("no initial frame queued")
	}
	if am.Batch != 2 || am.Assignments[1] != 2 {
		t.Fatalf("initial = %+v", am)
	}
}

func TestHub_SlowSubscriberKeepsNewest(t *testing.T) {
	gen := &fixedGen{}
	stats := &countingStats{}
	h := newTestHub(t, gen, stats)
	_, out, _ := h.Subscribe(true)

	for batch := uint64(1); batch <= 5; batch++ {
		h.handle(drawing.AssignmentsUpdated{Generation: 0, Batch: batch, Assignments: []int{0, 1, 2, 3}})
	}
	var last protocol.AssignmentsMsg
	for len(out) > 0 {
		_ = json.Unmarshal(<-out, &last)
	}
	if last.Batch != 5 {
		t.Fatalf("newest frame lost, last batch = %d", last.Batch)
	}
	if stats.dropped.Load() != 3 {
		t.Fatalf("drops = %d", stats.dropped.Load())
	}
}

func TestHub_PNG(t *testing.T) {
	h := newTestHub(t, &fixedGen{}, nil)
	h.handle(drawing.AssignmentsUpdated{Generation: 0, Batch: 1, Assignments: []int{3, 2, 1, 0}})

	var buf bytes.Buffer
	if err := h.WritePNG(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	// Position 0 shows source 3, the white pixel at (1,1).
	r, g, b, _ := img.At(0, 0).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Fatalf("pixel (0,0) = %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestHub_RunClosesSubscribersOnShutdown(t *testing.T) {
	gen := &fixedGen{}
	h := newTestHub(t, gen, nil)
	_, out, _ := h.Subscribe(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	h.Input() <- drawing.AssignmentsUpdated{Generation: 0, Batch: 1, Assignments: []int{1, 0, 3, 2}}
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatalf("no update through Run")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := <-out; ok {
		t.Fatalf("subscriber channel should be closed")
	}
	if _, _, err := h.Subscribe(false); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after stop: %v", err)
	}
}
