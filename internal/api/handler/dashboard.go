package handler

import (
	"net/http"
)

// DashboardHandler serves the dashboard section.
type DashboardHandler struct {
	shell WorkspaceProvider
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(shell WorkspaceProvider) *DashboardHandler {
	return &DashboardHandler{shell: shell}
}

// Get handles GET /v1/dashboard, fetching the snapshot on first use.
// Partial and total failures are part of the returned state.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	writeJSON(w, r, ws.Dashboard.Ensure(r.Context()))
}

// Refresh handles POST /v1/dashboard/refresh.
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspace(w, r, h.shell)
	if !ok {
		return
	}
	writeJSON(w, r, ws.Dashboard.Refresh(r.Context()))
}
