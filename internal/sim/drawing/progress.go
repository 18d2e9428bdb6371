package drawing

import (
	"fmt"
	"image"
)

// Progress is a message published by an optimization worker. Every message
// carries the generation of the run that produced it so consumers can drop
// output from superseded runs.
type Progress interface {
	fmt.Stringer
	GenerationID() uint32
}

// AssignmentsUpdated carries the full permutation after a batch that
// accepted at least one swap.
type AssignmentsUpdated struct {
	Generation  uint32
	Batch       uint64
	Assignments []int
}

// PreviewUpdated carries a rendered frame. The continuous worker never sends
// it.
type PreviewUpdated struct {
	Generation uint32
	Image      *image.RGBA
}

// Done reports where a converged run stored its result.
type Done struct {
	Generation uint32
	Location   string
}

// Cancelled is the last message of a worker that saw it was superseded.
type Cancelled struct {
	Generation uint32
}

func (m AssignmentsUpdated) GenerationID() uint32 { return m.Generation }
func (m PreviewUpdated) GenerationID() uint32     { return m.Generation }
func (m Done) GenerationID() uint32               { return m.Generation }
func (m Cancelled) GenerationID() uint32          { return m.Generation }

func (m AssignmentsUpdated) String() string {
	return fmt.Sprintf("assignments updated (gen %d, batch %d, %d cells)", m.Generation, m.Batch, len(m.Assignments))
}

func (m PreviewUpdated) String() string {
	if m.Image == nil {
		return fmt.Sprintf("preview updated (gen %d)", m.Generation)
	}
	b := m.Image.Bounds()
	return fmt.Sprintf("preview updated (gen %d, %dx%d)", m.Generation, b.Dx(), b.Dy())
}

func (m Done) String() string {
	return fmt.Sprintf("done (gen %d) -> %s", m.Generation, m.Location)
}

func (m Cancelled) String() string {
	return fmt.Sprintf("cancelled (gen %d)", m.Generation)
}
