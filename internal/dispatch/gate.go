// Package dispatch runs the outbound call dispatch loop.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ringdove/outcall/internal/vapi"
)

// CallLister is the slice of the call-service client the gate needs.
type CallLister interface {
	ListRecentCalls(ctx context.Context) ([]vapi.Call, error)
}

// Gate tracks how many calls the external service has in flight and compares
// the count against a fixed ceiling. The local count is an estimate bridging
// the window between placing a call and the service's listing reflecting it;
// the listing refreshed by IsSaturated is always authoritative.
type Gate struct {
	lister  CallLister
	ceiling int

	mu     sync.Mutex
	active int
}

// NewGate creates a gate with the given concurrency ceiling.
func NewGate(lister CallLister, ceiling int) *Gate {
	return &Gate{lister: lister, ceiling: ceiling}
}

// IsSaturated refreshes the active-call count from the service and reports
// whether it has reached the ceiling. Any listing failure, including a
// malformed body, reads as saturated: when the service's state is unknown we
// must not over-dispatch.
func (g *Gate) IsSaturated(ctx context.Context) bool {
	calls, err := g.lister.ListRecentCalls(ctx)
	if err != nil {
		slog.Warn("call-service listing failed, treating as saturated", "error", err)
		return true
	}

	active := 0
	for _, c := range calls {
		if c.OccupiesLine() {
			active++
		}
	}

	g.mu.Lock()
	g.active = active
	saturated := active >= g.ceiling
	g.mu.Unlock()

	recordActiveCalls(active)
	return saturated
}

// NoteCallPlaced bumps the local estimate so the very next saturation check
// reflects a call placed before the service lists it.
func (g *Gate) NoteCallPlaced() {
	g.mu.Lock()
	g.active++
	recordActiveCalls(g.active)
	g.mu.Unlock()
}

// NoteCallEnded decrements the local estimate, flooring at zero.
func (g *Gate) NoteCallEnded() {
	g.mu.Lock()
	if g.active > 0 {
		g.active--
	}
	recordActiveCalls(g.active)
	g.mu.Unlock()
}

// ActiveCalls returns the current local estimate.
func (g *Gate) ActiveCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
