// Package admission bounds how many requests may be in flight at once.
package admission

import (
	"sync"
	"sync/atomic"
)

// Gate is a lock-free counter of in-flight requests bounded by a fixed
// capacity. Rejection is immediate, callers are never queued.
type Gate struct {
	capacity int64
	inFlight atomic.Int64
}

func NewGate(capacity int) *Gate {
	if capacity < 0 {
		capacity = 0
	}
	return &Gate{capacity: int64(capacity)}
}

// TryAcquire takes one unit of capacity if any is free.
func (g *Gate) TryAcquire() bool {
	for {
		cur := g.inFlight.Load()
		if cur >= g.capacity {
			return false
		}
		if g.inFlight.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release gives one unit of capacity back. It never drops below zero.
func (g *Gate) Release() {
	for {
		cur := g.inFlight.Load()
		if cur <= 0 {
			return
		}
		if g.inFlight.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// Acquire is TryAcquire returning a Slot that can only be released once.
func (g *Gate) Acquire() (*Slot, bool) {
	if !g.TryAcquire() {
		return nil, false
	}
	return &Slot{gate: g}, true
}

func (g *Gate) Capacity() int { return int(g.capacity) }
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }
func (g *Gate) Free() int     { return int(g.capacity - g.inFlight.Load()) }

// Slot is one unit of capacity held by an accepted request.
type Slot struct {
	gate *Gate
	once sync.Once
}

// Release returns the slot to its gate. Calls after the first are no-ops.
func (s *Slot) Release() {
	s.once.Do(s.gate.Release)
}
