package handler

import (
	"context"
	"net/http"

	"github.com/openrag/opsconsole/internal/api/response"
	"github.com/openrag/opsconsole/internal/health"
)

// CycleRunner runs and publishes health cycles.
type CycleRunner interface {
	Latest() health.Cycle
	RunCycle(ctx context.Context) health.Cycle
}

// ServicesHandler serves the service health section.
type ServicesHandler struct {
	monitor CycleRunner
}

// NewServicesHandler creates a new ServicesHandler.
func NewServicesHandler(monitor CycleRunner) *ServicesHandler {
	return &ServicesHandler{monitor: monitor}
}

// List handles GET /v1/services. Before the first cycle completes every
// service is reported as pending.
func (h *ServicesHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.monitor.Latest())
}

// Refresh handles POST /v1/services/refresh. The cycle runs to completion
// even if the caller disconnects, so the published result is never a
// cancelled one.
func (h *ServicesHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cycle := h.monitor.RunCycle(context.WithoutCancel(r.Context()))
	response.JSON(w, r, http.StatusOK, cycle)
}
