package interaction

import (
	"errors"
	"sync"

	"github.com/sujalbistaa/whispr/internal/models"
)

// ErrPending is returned by Apply when an earlier update is still waiting
// for the server.
var ErrPending = errors.New("interaction: update already in flight")

// View is what a client renders for one confession.
type View struct {
	State  State  `json:"state"`
	Counts Counts `json:"counts"`
}

// Optimistic applies a transition locally before the server confirms it and
// keeps the pre-update snapshot so a failed call can be reverted.
type Optimistic struct {
	mu       sync.Mutex
	current  View
	snapshot *View
}

// NewOptimistic starts from the server-provided view.
func NewOptimistic(v View) *Optimistic {
	return &Optimistic{current: v}
}

// View returns what should be displayed right now.
func (o *Optimistic) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Pending reports whether an update awaits Commit or Rollback.
func (o *Optimistic) Pending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshot != nil
}

// Apply moves the local view forward as if the server accepted action.
// Only one update may be in flight at a time.
func (o *Optimistic) Apply(action models.InteractionType) (View, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snapshot != nil {
		return o.current, ErrPending
	}
	next, delta, err := Transition(o.current.State, action)
	if err != nil {
		return o.current, err
	}

	snap := o.current
	o.snapshot = &snap
	o.current = View{State: next, Counts: o.current.Counts.Apply(delta)}
	return o.current, nil
}

// Commit accepts the in-flight update. When the server returned its own view,
// that view replaces the local one.
func (o *Optimistic) Commit(server *View) View {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.snapshot = nil
	if server != nil {
		o.current = *server
	}
	return o.current
}

// Rollback restores the view captured before the last Apply.
func (o *Optimistic) Rollback() View {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snapshot != nil {
		o.current = *o.snapshot
		o.snapshot = nil
	}
	return o.current
}
