package supervisor

import "sync/atomic"

// Generation is the process-wide run token. A worker stamped with an older
// value stops after its current batch.
type Generation struct {
	v atomic.Uint32
}

func (g *Generation) Current() uint32 { return g.v.Load() }

// Advance moves the token forward and returns the new value.
func (g *Generation) Advance() uint32 { return g.v.Add(1) }
