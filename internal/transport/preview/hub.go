// Package preview turns optimizer progress into a live preview: the newest
// permutation, PNG renders of it and a websocket stream.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"pixelmorph.ai/internal/protocol"
	"pixelmorph.ai/internal/sim/drawing"
)

var (
	ErrBusy   = errors.New("preview: too many subscribers")
	ErrClosed = errors.New("preview: hub stopped")
)

// Stats is the subset of metrics the hub reports to.
type Stats interface {
	StaleDropped()
	SubscriberDropped()
	SetSubscribers(n int)
}

type HubConfig struct {
	Sidelen int
	// Colors returns the palette used for PNG renders.
	Colors func() []drawing.Color
	// Generation decides which messages are stale.
	Generation drawing.GenerationSource

	// Input is the channel workers publish on. NewHub makes one with
	// InputBuffer capacity when nil.
	Input          chan drawing.Progress
	InputBuffer    int
	MaxSubscribers int
	SendQueue      int

	Stats  Stats
	Logger *log.Logger
}

// Hub is the progress consumer. One goroutine runs Run; subscribers and
// HTTP handlers read its state concurrently.
type Hub struct {
	cfg HubConfig
	in  chan drawing.Progress

	mu          sync.RWMutex
	generation  uint32
	batch       uint64
	assignments []int
	image       *image.RGBA
	subs        map[string]*subscriber
	closed      bool

	nextID atomic.Uint64
}

type subscriber struct {
	assignments bool
	out         chan []byte
}

func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Sidelen <= 0 || cfg.Sidelen > drawing.CanvasSize {
		return nil, fmt.Errorf("preview: bad sidelen %d", cfg.Sidelen)
	}
	if cfg.Colors == nil || cfg.Generation == nil {
		return nil, fmt.Errorf("preview: palette and generation source are required")
	}
	if cfg.MaxSubscribers <= 0 {
		cfg.MaxSubscribers = 32
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 4
	}
	in := cfg.Input
	if in == nil {
		in = make(chan drawing.Progress, cfg.InputBuffer)
	}
	return &Hub{
		cfg:         cfg,
		in:          in,
		assignments: identity(cfg.Sidelen),
		subs:        map[string]*subscriber{},
	}, nil
}

// Input is where workers publish.
func (h *Hub) Input() chan<- drawing.Progress { return h.in }

func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case msg := <-h.in:
			h.handle(msg)
		}
	}
}

func (h *Hub) handle(msg drawing.Progress) {
	current := h.cfg.Generation.Current()
	switch m := msg.(type) {
	case drawing.AssignmentsUpdated:
		if m.Generation != current {
			h.stale(msg)
			return
		}
		h.mu.Lock()
		h.generation, h.batch = m.Generation, m.Batch
		h.assignments = append(h.assignments[:0:0], m.Assignments...)
		h.image = nil
		h.mu.Unlock()
		h.broadcast(m)

	case drawing.PreviewUpdated:
		if m.Generation != current {
			h.stale(msg)
			return
		}
		h.mu.Lock()
		h.generation, h.image = m.Generation, m.Image
		h.mu.Unlock()

	case drawing.Done:
		if m.Generation != current {
			h.stale(msg)
			return
		}
		h.broadcast(m)

	case drawing.Cancelled:
		// Always stale by construction; subscribers still see the run end.
		h.logf("gen=%d cancelled", m.Generation)
		h.broadcast(m)
	}
}

func (h *Hub) stale(msg drawing.Progress) {
	if h.cfg.Stats != nil {
		h.cfg.Stats.StaleDropped()
	}
	h.logf("dropped stale %s", msg)
}

// Latest is the newest accepted permutation (identity before any update).
func (h *Hub) Latest() (generation uint32, batch uint64, assignments []int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.generation, h.batch, append([]int(nil), h.assignments...)
}

// Snapshot renders the newest state with the current palette.
func (h *Hub) Snapshot() *image.RGBA {
	h.mu.RLock()
	img, assignments := h.image, h.assignments
	h.mu.RUnlock()
	if img != nil {
		return img
	}
	return drawing.Render(assignments, h.cfg.Sidelen, h.cfg.Colors())
}

func (h *Hub) WritePNG(w io.Writer) error {
	return png.Encode(w, h.Snapshot())
}

// Subscribe registers a stream of encoded protocol messages. The newest
// ASSIGNMENTS is queued right away when the subscriber asked for them.
func (h *Hub) Subscribe(assignments bool) (string, <-chan []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrClosed
	}
	if len(h.subs) >= h.cfg.MaxSubscribers {
		return "", nil, ErrBusy
	}
	id := fmt.Sprintf("S%d", h.nextID.Add(1))
	sub := &subscriber{assignments: assignments, out: make(chan []byte, h.cfg.SendQueue)}
	h.subs[id] = sub
	if assignments && h.batch > 0 {
		if b, err := json.Marshal(h.assignmentsMsg(h.generation, h.batch, h.assignments, true)); err == nil {
			sub.out <- b
		}
	}
	h.reportSubscribers()
	h.logf("subscriber %s joined (assignments=%v)", id, assignments)
	return id, sub.out, nil
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id]; !ok {
		return
	}
	delete(h.subs, id)
	h.reportSubscribers()
	h.logf("subscriber %s left", id)
}

func (h *Hub) Generation() uint32 { return h.cfg.Generation.Current() }
func (h *Hub) Sidelen() int       { return h.cfg.Sidelen }

func (h *Hub) broadcast(msg drawing.Progress) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.subs) == 0 {
		return
	}

	var full, lite []byte
	switch m := msg.(type) {
	case drawing.AssignmentsUpdated:
		full, _ = json.Marshal(h.assignmentsMsg(m.Generation, m.Batch, m.Assignments, true))
		lite, _ = json.Marshal(h.assignmentsMsg(m.Generation, m.Batch, nil, false))
	case drawing.Cancelled:
		full, _ = json.Marshal(protocol.CancelledMsg{Type: protocol.TypeCancelled, ProtocolVersion: protocol.Version, Generation: m.Generation})
		lite = full
	case drawing.Done:
		full, _ = json.Marshal(protocol.DoneMsg{Type: protocol.TypeDone, ProtocolVersion: protocol.Version, Generation: m.Generation, Location: m.Location})
		lite = full
	default:
		return
	}
	for _, sub := range h.subs {
		b := lite
		if sub.assignments {
			b = full
		}
		if !sendLatest(sub.out, b) && h.cfg.Stats != nil {
			h.cfg.Stats.SubscriberDropped()
		}
	}
}

func (h *Hub) assignmentsMsg(gen uint32, batch uint64, assignments []int, withData bool) protocol.AssignmentsMsg {
	m := protocol.AssignmentsMsg{
		Type:            protocol.TypeAssignments,
		ProtocolVersion: protocol.Version,
		Generation:      gen,
		Batch:           batch,
		Sidelen:         h.cfg.Sidelen,
	}
	if withData {
		m.Assignments = assignments
	}
	return m
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		close(sub.out)
		delete(h.subs, id)
	}
	h.reportSubscribers()
}

// reportSubscribers expects h.mu held.
func (h *Hub) reportSubscribers() {
	if h.cfg.Stats != nil {
		h.cfg.Stats.SetSubscribers(len(h.subs))
	}
}

func (h *Hub) logf(format string, args ...any) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Printf(format, args...)
	}
}

// sendLatest queues b, dropping the oldest queued frame when ch is full. It
// reports false when something was dropped.
func sendLatest(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
	return false
}

func identity(sidelen int) []int {
	out := make([]int, sidelen*sidelen)
	for i := range out {
		out[i] = i
	}
	return out
}
