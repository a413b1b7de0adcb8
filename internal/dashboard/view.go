package dashboard

import (
	"context"
	"sync"
)

// State is what the dashboard section renders.
type State struct {
	Snapshot *Snapshot `json:"snapshot"`
	Error    string    `json:"error,omitempty"`
	Loaded   bool      `json:"loaded"`
}

// View is one operator's dashboard. It keeps the last good snapshot visible
// when a refresh fails completely, and drops responses that arrive after a
// newer refresh was started.
type View struct {
	service *Service

	mu      sync.Mutex
	seq     uint64
	applied uint64
	current *Snapshot
	errMsg  string
}

// NewView creates an empty dashboard view.
func NewView(service *Service) *View {
	return &View{service: service}
}

// Refresh fetches a new snapshot and returns the resulting state.
func (v *View) Refresh(ctx context.Context) State {
	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.mu.Unlock()

	snap, err := v.service.Fetch(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq <= v.applied {
		return v.stateLocked()
	}
	v.applied = seq

	if err != nil {
		v.errMsg = "failed to load dashboard"
		return v.stateLocked()
	}
	v.current = &snap
	v.errMsg = ""
	return v.stateLocked()
}

// Ensure returns the current state, fetching first if nothing was loaded yet.
func (v *View) Ensure(ctx context.Context) State {
	v.mu.Lock()
	loaded := v.applied > 0
	v.mu.Unlock()
	if loaded {
		return v.State()
	}
	return v.Refresh(ctx)
}

// State returns the current state without fetching.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *View) stateLocked() State {
	st := State{Error: v.errMsg, Loaded: v.applied > 0}
	if v.current != nil {
		snap := v.current.clone()
		st.Snapshot = &snap
	}
	return st
}
